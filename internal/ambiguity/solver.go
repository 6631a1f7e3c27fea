// Package ambiguity turns a turn whose free word could not be attached to an
// attribute into a short list of explicit "Find ..." phrases for the user to
// pick from.
package ambiguity

import (
	"strings"

	"github.com/chatidea/chatidea/internal/fuzzy"
	"github.com/chatidea/chatidea/internal/nlu"
	"github.com/chatidea/chatidea/internal/schema"
)

const phraseVerb = "Find"

type Solver struct {
	registry *schema.Registry
	matcher  fuzzy.Matcher
}

func New(registry *schema.Registry, matcher fuzzy.Matcher) *Solver {
	return &Solver{registry: registry, matcher: matcher}
}

// NeedsSolving reports whether entities carry a word or number that could be
// attached to some attribute. Turns without one go straight to a find.
func NeedsSolving(entities []nlu.Entity) bool {
	for _, entity := range entities {
		if isValue(entity) {
			return true
		}
	}
	return false
}

// Candidates returns deduplicated phrases in discovery order. The literal
// word is always offered last when nothing better was produced.
func (s *Solver) Candidates(entities []nlu.Entity) []string {
	entities = append([]nlu.Entity(nil), entities...)
	set := newPhraseSet()

	element, hasElement := first(entities, nlu.RoleElement)
	value, hasValue := firstValue(entities)
	if !hasValue {
		return nil
	}

	var concepts []string
	if hasElement {
		concepts = s.resolveConcepts(element.Value)
	}

	switch {
	case len(concepts) == 1 && s.registry.IndexOf(concepts[0]) == value.Tag.ConceptIndex:
		set.add(s.autocomplete(concepts[0], entities))
	case len(concepts) > 0 && !value.Tag.HasConcept():
		for _, concept := range concepts {
			set.add(s.autocomplete(concept, entities))
		}
	default:
		rest := withoutRole(entities, nlu.RoleElement)
		for _, slot := range s.registry.SimilarSlots(value.Tag.Slot()) {
			conceptIndex, attributeIndex, ok := parseSlot(slot)
			if !ok {
				continue
			}
			concept, ok := s.registry.ConceptAt(conceptIndex)
			if !ok {
				continue
			}
			set.add(s.autocomplete(concept.Name, retag(rest, conceptIndex, attributeIndex)))
		}
		for _, concept := range concepts {
			set.add(s.autocomplete(concept, entities))
		}
	}

	if set.len() == 0 {
		set.add(phraseVerb + " " + value.Value)
	}
	return set.items
}

// resolveConcepts returns the single closest primary concept for word or,
// when nothing is close enough, every concept whose vocabulary lies within
// the wider alternative search.
func (s *Solver) resolveConcepts(word string) []string {
	vocabulary := s.registry.Vocabulary()
	if matched, ok := s.matcher.Closest(word, vocabulary); ok {
		if name, ok := s.registry.CanonicalName(matched); ok {
			return []string{name}
		}
	}
	wide := fuzzy.New(s.matcher.Threshold * 2)
	names := make([]string, 0)
	seen := map[string]bool{}
	for _, match := range wide.Alternatives(word, vocabulary) {
		name, ok := s.registry.CanonicalName(match.Value)
		if ok && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// autocomplete renders "Find <concept> <keyword?> <value>", inferring the
// attribute keyword from the value's tag when the user named none.
func (s *Solver) autocomplete(conceptName string, entities []nlu.Entity) string {
	parts := []string{phraseVerb, conceptName}
	value, ok := firstValue(entities)
	if !ok {
		return strings.Join(parts, " ")
	}
	if attribute, ok := first(entities, nlu.RoleAttribute); ok {
		parts = append(parts, attribute.Value)
	} else if keyword := s.inferKeyword(conceptName, value.Tag); keyword != "" {
		parts = append(parts, keyword)
	}
	parts = append(parts, value.Value)
	return strings.Join(parts, " ")
}

func (s *Solver) inferKeyword(conceptName string, tag nlu.RoleTag) string {
	if !tag.HasAttribute() || s.registry.IndexOf(conceptName) != tag.ConceptIndex {
		return ""
	}
	concept, ok := s.registry.Concept(conceptName)
	if !ok || tag.AttributeIndex > len(concept.Attributes) {
		return ""
	}
	return concept.Attributes[tag.AttributeIndex-1].Keyword
}

func isValue(entity nlu.Entity) bool {
	return entity.Tag.Role == nlu.RoleWord || entity.Tag.Role == nlu.RoleNumber
}

func first(entities []nlu.Entity, role nlu.Role) (nlu.Entity, bool) {
	for _, entity := range entities {
		if entity.Tag.Role == role {
			return entity, true
		}
	}
	return nlu.Entity{}, false
}

func firstValue(entities []nlu.Entity) (nlu.Entity, bool) {
	for _, entity := range entities {
		if isValue(entity) {
			return entity, true
		}
	}
	return nlu.Entity{}, false
}

func withoutRole(entities []nlu.Entity, role nlu.Role) []nlu.Entity {
	out := make([]nlu.Entity, 0, len(entities))
	for _, entity := range entities {
		if entity.Tag.Role != role {
			out = append(out, entity)
		}
	}
	return out
}

// retag points every value entity at another concept/attribute slot. Numbers
// become words since the slot may hold text.
func retag(entities []nlu.Entity, conceptIndex, attributeIndex int) []nlu.Entity {
	out := make([]nlu.Entity, len(entities))
	for i, entity := range entities {
		if isValue(entity) {
			entity = entity.WithTag(nlu.Tag(nlu.RoleWord, conceptIndex, attributeIndex))
		}
		out[i] = entity
	}
	return out
}

func parseSlot(slot string) (int, int, bool) {
	tag := nlu.ParseRoleTag(string(nlu.RoleWord) + "_" + slot)
	return tag.ConceptIndex, tag.AttributeIndex, tag.Role == nlu.RoleWord && tag.HasConcept()
}

type phraseSet struct {
	items []string
	seen  map[string]bool
}

func newPhraseSet() *phraseSet {
	return &phraseSet{seen: map[string]bool{}}
}

func (p *phraseSet) add(phrase string) {
	if phrase == "" || p.seen[phrase] {
		return
	}
	p.seen[phrase] = true
	p.items = append(p.items, phrase)
}

func (p *phraseSet) len() int {
	return len(p.items)
}
