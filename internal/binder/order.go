// Package binder turns the classifier's bag of typed entities into bound
// attributes of one concept: operators, conjunctions and schema columns.
package binder

import (
	"strings"

	"github.com/chatidea/chatidea/internal/fuzzy"
	"github.com/chatidea/chatidea/internal/nlu"
	"github.com/chatidea/chatidea/internal/schema"
)

const (
	hintLessThan = "less than"
	hintMoreThan = "more than"
)

// comparison hints are short phrases, so they tolerate a wider distance
// than attribute keywords.
var comparisonHints = fuzzy.New(6)

var negations = map[string]bool{
	"not":            true,
	"is not":         true,
	"isn't":          true,
	"different from": true,
	"except":         true,
	"without":        true,
}

// Record is one recognized value token with its operator, the keyword that
// governs it and the conjunction linking it to the next record.
type Record struct {
	Type        schema.ValueType
	Operator    schema.Operator
	Value       string
	Attribute   string
	Conjunction schema.Conjunction
	Tag         nlu.RoleTag
}

// Order scans entities left to right and emits one record per word, number
// or columns token. An attribute keyword governs every value after it until
// the next keyword; the same holds for a numeric comparison hint.
func Order(entities []nlu.Entity) []Record {
	records := make([]Record, 0, len(entities))
	governing := ""
	hint := ""
	negated := hasNegation(entities)
	orderBy := ""
	for _, entity := range entities {
		if entity.Tag.Role == nlu.RoleOrderBy {
			orderBy = entity.Value
			break
		}
	}

	for i, entity := range entities {
		if i > 0 {
			switch previous := entities[i-1]; previous.Tag.Role {
			case nlu.RoleAttribute:
				governing = previous.Value
			case nlu.RoleOpNumber:
				hint = previous.Value
			}
		}

		record := Record{Value: entity.Value, Tag: entity.Tag, Operator: schema.OpEqual}
		switch entity.Tag.Role {
		case nlu.RoleWord:
			record.Type = schema.TypeWord
			record.Operator = schema.OpLike
			if negated {
				record.Operator = schema.OpNotEqual
			}
			record.Attribute = governing
		case nlu.RoleNumber:
			record.Type = schema.TypeNumber
			record.Operator = comparisonOperator(hint)
			record.Attribute = governing
		case nlu.RoleColumns:
			record.Type = schema.TypeColumns
			record.Operator = schema.OpOrderBy
			record.Attribute = orderBy
		default:
			continue
		}

		if i+1 < len(entities) {
			switch entities[i+1].Tag.Role {
			case nlu.RoleOr:
				record.Conjunction = schema.ConjunctionOr
			case nlu.RoleAnd, nlu.RoleAttribute:
				record.Conjunction = schema.ConjunctionAnd
			}
		}
		records = append(records, record)
	}
	return records
}

func comparisonOperator(hint string) schema.Operator {
	matched, ok := comparisonHints.Closest(hint, []string{hintLessThan, hintMoreThan})
	if !ok {
		return schema.OpEqual
	}
	if matched == hintLessThan {
		return schema.OpLess
	}
	return schema.OpGreater
}

func hasNegation(entities []nlu.Entity) bool {
	for _, entity := range entities {
		if entity.Tag.Role != nlu.RoleOpWord {
			continue
		}
		value := strings.ToLower(strings.TrimSpace(entity.Value))
		// "ne" covers the legacy operator vocabulary (ne, none).
		if negations[value] || strings.HasSuffix(value, "ne") {
			return true
		}
	}
	return false
}
