package schema

import (
	"fmt"
	"strings"
	"time"
)

type Operator string

const (
	OpEqual    Operator = "="
	OpNotEqual Operator = "<>"
	OpLess     Operator = "<"
	OpGreater  Operator = ">"
	OpLike     Operator = "LIKE"
	OpOrderBy  Operator = "ORDER BY"
)

// Conjunction links a bound attribute to the one that follows it.
type Conjunction string

const (
	ConjunctionNone Conjunction = ""
	ConjunctionAnd  Conjunction = "and"
	ConjunctionOr   Conjunction = "or"
)

// BoundAttribute is an attribute bound to a concrete value for one query.
type BoundAttribute struct {
	Keyword     string      `json:"keyword,omitempty"`
	Type        ValueType   `json:"type"`
	Columns     []string    `json:"columns"`
	By          []Reference `json:"by,omitempty"`
	Value       string      `json:"value"`
	Operator    Operator    `json:"operator"`
	Conjunction Conjunction `json:"conjunction,omitempty"`
}

func Bind(attribute Attribute, value string, operator Operator, conjunction Conjunction) BoundAttribute {
	return BoundAttribute{
		Keyword:     attribute.Keyword,
		Type:        attribute.Type,
		Columns:     append([]string(nil), attribute.Columns...),
		By:          append([]Reference(nil), attribute.By...),
		Value:       value,
		Operator:    operator,
		Conjunction: conjunction,
	}
}

func (b BoundAttribute) OwnerTable(base string) string {
	if len(b.By) == 0 {
		return base
	}
	return b.By[len(b.By)-1].ToTable
}

// Describe renders attributes as `keyword [op] value, ...` for history labels.
func Describe(attributes []BoundAttribute) string {
	parts := make([]string, 0, len(attributes))
	for _, attribute := range attributes {
		var b strings.Builder
		if attribute.Keyword != "" {
			b.WriteString(attribute.Keyword)
			b.WriteString(" ")
		}
		if attribute.Type == TypeNumber {
			b.WriteString(string(attribute.Operator))
			b.WriteString(" ")
		}
		b.WriteString(attribute.Value)
		parts = append(parts, b.String())
	}
	return strings.Join(parts, ", ")
}

// FormatValue renders a driver value for display. Times use the layout
// encoding/json writes them with, so a cell reads the same before and after a
// session store round trip.
func FormatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "None"
	case string:
		return typed
	case time.Time:
		return typed.Format(time.RFC3339Nano)
	case []byte:
		return string(typed)
	case float64:
		if typed == float64(int64(typed)) {
			return fmt.Sprintf("%d", int64(typed))
		}
		return fmt.Sprintf("%g", typed)
	default:
		return fmt.Sprint(typed)
	}
}
