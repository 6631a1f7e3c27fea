// Package schema holds the read-only description of the explored database:
// concepts, physical tables, display views and similar-slot groups. A
// Registry is built once at startup and never mutated afterwards, so it is
// safe for concurrent readers.
package schema

import (
	"sort"
	"strings"
)

type Documents struct {
	Concepts []Concept
	Tables   map[string]Table
	Views    map[string]View
	Similars [][]string
}

type Registry struct {
	concepts []Concept
	byName   map[string]int
	primary  []int
	tables   map[string]Table
	views    map[string]View
	similars [][]string
}

// New validates docs and builds a Registry. Any referential problem is
// reported as ErrInvalidConfig.
func New(docs Documents) (*Registry, error) {
	for i := range docs.Concepts {
		normalizeConcept(&docs.Concepts[i])
	}
	if err := validate(docs); err != nil {
		return nil, err
	}

	r := &Registry{
		concepts: docs.Concepts,
		byName:   make(map[string]int, len(docs.Concepts)),
		tables:   docs.Tables,
		views:    docs.Views,
		similars: docs.Similars,
	}
	if r.views == nil {
		r.views = map[string]View{}
	}
	for i, concept := range docs.Concepts {
		r.byName[concept.Name] = i
		if concept.Kind == KindPrimary {
			r.primary = append(r.primary, i)
		}
	}
	return r, nil
}

func normalizeConcept(concept *Concept) {
	concept.Name = strings.TrimSpace(concept.Name)
	if concept.Kind == "" {
		concept.Kind = KindPrimary
	}
	for i := range concept.Attributes {
		if parsed, ok := ParseValueType(string(concept.Attributes[i].Type)); ok {
			concept.Attributes[i].Type = parsed
		}
	}
}

func (r *Registry) Concepts() []Concept {
	return append([]Concept(nil), r.concepts...)
}

func (r *Registry) Concept(name string) (Concept, bool) {
	index, ok := r.byName[name]
	if !ok {
		return Concept{}, false
	}
	return r.concepts[index], true
}

func (r *Registry) PrimaryConcepts() []Concept {
	out := make([]Concept, 0, len(r.primary))
	for _, index := range r.primary {
		out = append(out, r.concepts[index])
	}
	return out
}

func (r *Registry) PrimaryNames() []string {
	names := make([]string, 0, len(r.primary))
	for _, index := range r.primary {
		names = append(names, r.concepts[index].Name)
	}
	return names
}

func (r *Registry) IsPrimary(name string) bool {
	concept, ok := r.Concept(name)
	return ok && concept.Kind == KindPrimary
}

// ConceptAt resolves the 1-based concept index used by classifier role tags.
func (r *Registry) ConceptAt(index int) (Concept, bool) {
	if index < 1 || index > len(r.primary) {
		return Concept{}, false
	}
	return r.concepts[r.primary[index-1]], true
}

// IndexOf is the inverse of ConceptAt; zero means not a primary concept.
func (r *Registry) IndexOf(name string) int {
	for i, index := range r.primary {
		if r.concepts[index].Name == name {
			return i + 1
		}
	}
	return 0
}

// Vocabulary lists names, plurals and aliases of the primary concepts.
func (r *Registry) Vocabulary() []string {
	words := make([]string, 0)
	for _, concept := range r.PrimaryConcepts() {
		words = append(words, concept.Name, concept.PluralName())
		words = append(words, concept.Aliases...)
	}
	return words
}

// CanonicalName maps a vocabulary word back to its concept name.
func (r *Registry) CanonicalName(word string) (string, bool) {
	for _, concept := range r.PrimaryConcepts() {
		if word == concept.Name || word == concept.PluralName() {
			return concept.Name, true
		}
		for _, alias := range concept.Aliases {
			if word == alias {
				return concept.Name, true
			}
		}
	}
	return "", false
}

func (r *Registry) ConceptByTable(table string) (Concept, bool) {
	for _, concept := range r.concepts {
		if concept.Table == table {
			return concept, true
		}
	}
	return Concept{}, false
}

// TableNames lists the physical tables in name order.
func (r *Registry) TableNames() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Table(name string) (Table, bool) {
	table, ok := r.tables[name]
	return table, ok
}

// View returns the configured display view of a table, or one derived from
// the table's columns and column aliases when none is configured.
func (r *Registry) View(table string) View {
	if view, ok := r.views[table]; ok {
		return view
	}
	schemaTable, ok := r.tables[table]
	if !ok {
		return View{}
	}
	view := View{Columns: make([]ViewColumn, 0, len(schemaTable.Columns))}
	for _, column := range schemaTable.Columns {
		display := column
		if alias, ok := schemaTable.ColumnAliases[column]; ok && alias != "" {
			display = alias
		}
		view.Columns = append(view.Columns, ViewColumn{Attribute: column, Display: display})
	}
	return view
}

// SimilarSlots returns the group of "concept_attribute" slots that share
// vocabulary with slot, or just slot when no group mentions it.
func (r *Registry) SimilarSlots(slot string) []string {
	group := []string{slot}
	for _, candidate := range r.similars {
		for _, member := range candidate {
			if member == slot {
				group = candidate
			}
		}
	}
	return append([]string(nil), group...)
}
