package binder

import (
	"fmt"

	"github.com/chatidea/chatidea/internal/fuzzy"
	"github.com/chatidea/chatidea/internal/schema"
)

const orderKeyword = "order by"

var orderAliases = []string{"order by", "ordered by", "sort by", "sorted by"}

// UnrecognizedAttributeError reports a named attribute (or ordering column)
// that matches nothing the concept declares.
type UnrecognizedAttributeError struct {
	Concept string
	Text    string
}

func (e *UnrecognizedAttributeError) Error() string {
	return fmt.Sprintf("there is no attribute %s for %s", e.Text, e.Concept)
}

type Binder struct {
	registry *schema.Registry
	matcher  fuzzy.Matcher
}

func New(registry *schema.Registry, matcher fuzzy.Matcher) *Binder {
	return &Binder{registry: registry, matcher: matcher}
}

// Bind maps ordered records onto the concept's attributes. A record whose
// type disagrees with its matched attribute is dropped; a named keyword
// that matches nothing fails the whole turn.
func (b *Binder) Bind(concept schema.Concept, records []Record) ([]schema.BoundAttribute, error) {
	vocabulary := append(concept.Keywords(), orderAliases...)
	bound := make([]schema.BoundAttribute, 0, len(records))
	for _, record := range records {
		attribute, value, ok, err := b.resolve(concept, vocabulary, record)
		if err != nil {
			return nil, err
		}
		if !ok || attribute.Type != record.Type {
			continue
		}
		bound = append(bound, schema.Bind(attribute, value, record.Operator, record.Conjunction))
	}
	return bound, nil
}

func (b *Binder) resolve(concept schema.Concept, vocabulary []string, record Record) (schema.Attribute, string, bool, error) {
	if record.Attribute == "" {
		if attribute, ok := concept.ImplicitAttribute(record.Type); ok {
			return attribute, record.Value, true, nil
		}
		if record.Type != schema.TypeColumns {
			return schema.Attribute{}, "", false, nil
		}
		column, ok := b.ResolveColumn(concept, record.Value)
		if !ok {
			return schema.Attribute{}, "", false, nil
		}
		return orderAttribute(column), column, true, nil
	}

	keyword, ok := b.matcher.Closest(record.Attribute, vocabulary)
	if !ok {
		return schema.Attribute{}, "", false, &UnrecognizedAttributeError{Concept: concept.Name, Text: record.Attribute}
	}
	if attribute, ok := concept.AttributeByKeyword(keyword); ok {
		return attribute, record.Value, true, nil
	}
	column, ok := b.ResolveColumn(concept, record.Value)
	if !ok {
		return schema.Attribute{}, "", false, &UnrecognizedAttributeError{Concept: concept.Name, Text: record.Value}
	}
	return orderAttribute(column), column, true, nil
}

func orderAttribute(column string) schema.Attribute {
	return schema.Attribute{Keyword: orderKeyword, Type: schema.TypeColumns, Columns: []string{column}}
}

// ResolveConcept maps a user word onto a primary concept through its name,
// plural or aliases.
func (b *Binder) ResolveConcept(word string) (schema.Concept, bool) {
	matched, ok := b.matcher.Closest(word, b.registry.Vocabulary())
	if !ok {
		return schema.Concept{}, false
	}
	name, ok := b.registry.CanonicalName(matched)
	if !ok {
		return schema.Concept{}, false
	}
	return b.registry.Concept(name)
}

func (b *Binder) ResolveRelation(concept schema.Concept, word string) (schema.Relation, bool) {
	keywords := make([]string, 0, len(concept.Relations))
	for _, relation := range concept.Relations {
		keywords = append(keywords, relation.Keyword)
	}
	matched, ok := b.matcher.Closest(word, keywords)
	if !ok {
		return schema.Relation{}, false
	}
	return concept.Relation(matched)
}

// ResolveColumn maps a word onto a column of the concept's display view,
// trying raw column names before display names.
func (b *Binder) ResolveColumn(concept schema.Concept, word string) (string, bool) {
	view := b.registry.View(concept.Table)
	names := make([]string, 0, len(view.Columns))
	displays := make([]string, 0, len(view.Columns))
	for _, column := range view.Columns {
		names = append(names, column.Attribute)
		displays = append(displays, column.Display)
	}
	if matched, ok := b.matcher.Closest(word, names); ok {
		return matched, true
	}
	matched, ok := b.matcher.Closest(word, displays)
	if !ok {
		return "", false
	}
	for _, column := range view.Columns {
		if column.Display == matched {
			return column.Attribute, true
		}
	}
	return "", false
}

func (b *Binder) Registry() *schema.Registry {
	return b.registry
}
