package schema

import (
	"regexp"
	"strings"
)

type ValueType string

const (
	TypeWord    ValueType = "word"
	TypeNumber  ValueType = "num"
	TypeColumns ValueType = "columns"
)

func ParseValueType(raw string) (ValueType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "word":
		return TypeWord, true
	case "num", "number":
		return TypeNumber, true
	case "columns":
		return TypeColumns, true
	default:
		return "", false
	}
}

type ConceptKind string

const (
	KindPrimary   ConceptKind = "primary"
	KindSecondary ConceptKind = "secondary"
	KindCrossable ConceptKind = "crossable"
)

// Reference is one foreign-key hop. FromColumns and ToColumns are parallel.
type Reference struct {
	FromTable   string   `json:"from_table_name" yaml:"from_table_name"`
	FromColumns []string `json:"from_columns" yaml:"from_columns"`
	ToTable     string   `json:"to_table_name" yaml:"to_table_name"`
	ToColumns   []string `json:"to_columns" yaml:"to_columns"`
}

func (r Reference) Reversed() Reference {
	return Reference{
		FromTable:   r.ToTable,
		FromColumns: append([]string(nil), r.ToColumns...),
		ToTable:     r.FromTable,
		ToColumns:   append([]string(nil), r.FromColumns...),
	}
}

// ReverseChain walks a reference chain backwards, swapping every hop.
func ReverseChain(chain []Reference) []Reference {
	reversed := make([]Reference, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		reversed = append(reversed, chain[i].Reversed())
	}
	return reversed
}

type Attribute struct {
	Keyword string      `json:"keyword" yaml:"keyword"`
	Type    ValueType   `json:"type" yaml:"type"`
	Columns []string    `json:"columns" yaml:"columns"`
	By      []Reference `json:"by,omitempty" yaml:"by,omitempty"`
}

// Implicit attributes have no keyword and bind values the user did not label.
func (a Attribute) Implicit() bool {
	return strings.TrimSpace(a.Keyword) == ""
}

// OwnerTable is the table holding the attribute's columns.
func (a Attribute) OwnerTable(base string) string {
	if len(a.By) == 0 {
		return base
	}
	return a.By[len(a.By)-1].ToTable
}

type Relation struct {
	Keyword string      `json:"keyword" yaml:"keyword"`
	Concept string      `json:"element_name" yaml:"element_name"`
	By      []Reference `json:"by" yaml:"by"`
}

type Category struct {
	Column  string `json:"column" yaml:"column"`
	Alias   string `json:"alias" yaml:"alias"`
	Keyword string `json:"keyword" yaml:"keyword"`
}

func (c Category) Label() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Column
}

type ShowColumn struct {
	Keyword string   `json:"keyword" yaml:"keyword"`
	Columns []string `json:"columns" yaml:"columns"`
}

type Concept struct {
	Name        string       `json:"element_name" yaml:"element_name"`
	Plural      string       `json:"plural_name,omitempty" yaml:"plural_name,omitempty"`
	Aliases     []string     `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Kind        ConceptKind  `json:"type" yaml:"type"`
	Table       string       `json:"table_name" yaml:"table_name"`
	ShowColumns []ShowColumn `json:"show_columns,omitempty" yaml:"show_columns,omitempty"`
	Categories  []Category   `json:"category,omitempty" yaml:"category,omitempty"`
	Attributes  []Attribute  `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Relations   []Relation   `json:"relations,omitempty" yaml:"relations,omitempty"`
}

func (c Concept) PluralName() string {
	if c.Plural != "" {
		return c.Plural
	}
	return c.Name + "s"
}

func (c Concept) AttributeByKeyword(keyword string) (Attribute, bool) {
	for _, attribute := range c.Attributes {
		if attribute.Keyword == keyword {
			return attribute, true
		}
	}
	return Attribute{}, false
}

// ImplicitAttribute returns the first keyword-less attribute of the given type.
func (c Concept) ImplicitAttribute(valueType ValueType) (Attribute, bool) {
	for _, attribute := range c.Attributes {
		if attribute.Implicit() && attribute.Type == valueType {
			return attribute, true
		}
	}
	return Attribute{}, false
}

func (c Concept) Keywords() []string {
	keywords := make([]string, 0, len(c.Attributes))
	for _, attribute := range c.Attributes {
		if !attribute.Implicit() {
			keywords = append(keywords, attribute.Keyword)
		}
	}
	return keywords
}

func (c Concept) Relation(keyword string) (Relation, bool) {
	for _, relation := range c.Relations {
		if relation.Keyword == keyword {
			return relation, true
		}
	}
	return Relation{}, false
}

func (c Concept) Category(column string) (Category, bool) {
	for _, category := range c.Categories {
		if category.Column == column {
			return category, true
		}
	}
	return Category{}, false
}

// DisplayColumns lists the base-table columns used to summarise one row.
func (c Concept) DisplayColumns() []string {
	columns := make([]string, 0)
	seen := map[string]bool{}
	for _, show := range c.ShowColumns {
		for _, column := range show.Columns {
			if !seen[column] {
				seen[column] = true
				columns = append(columns, column)
			}
		}
	}
	return columns
}

var markupPattern = regexp.MustCompile(`<.*?>`)

// Summary renders one row the way it appears in lists and selection buttons.
func (c Concept) Summary(row map[string]any) string {
	parts := make([]string, 0, len(c.ShowColumns))
	for _, show := range c.ShowColumns {
		values := make([]string, 0, len(show.Columns))
		for _, column := range show.Columns {
			values = append(values, FormatValue(row[column]))
		}
		part := strings.Join(values, " ")
		if show.Keyword != "" {
			part = show.Keyword + ": " + part
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}

// StripMarkup removes HTML tags, keeping line breaks.
func StripMarkup(value string) string {
	value = strings.ReplaceAll(value, "<br />", "\n")
	return markupPattern.ReplaceAllString(value, "")
}

type ForeignKey struct {
	ToTable    string `json:"to_table" yaml:"to_table"`
	FromColumn string `json:"from_attribute" yaml:"from_attribute"`
	ToColumn   string `json:"to_attribute" yaml:"to_attribute"`
	ShowColumn string `json:"show_attribute" yaml:"show_attribute"`
}

type Table struct {
	Columns       []string          `json:"column_list" yaml:"column_list"`
	PrimaryKey    []string          `json:"primary_key_list" yaml:"primary_key_list"`
	ColumnAliases map[string]string `json:"column_alias_list,omitempty" yaml:"column_alias_list,omitempty"`
	References    []ForeignKey      `json:"references,omitempty" yaml:"references,omitempty"`
}

func (t Table) HasColumn(column string) bool {
	for _, candidate := range t.Columns {
		if candidate == column {
			return true
		}
	}
	return false
}

// ForeignKey returns the reference that unfolds column into a readable value
// of the target table. References without a show column are not unfolded.
func (t Table) ForeignKey(column string) (ForeignKey, bool) {
	for _, reference := range t.References {
		if reference.FromColumn == column && reference.ShowColumn != "" {
			return reference, true
		}
	}
	return ForeignKey{}, false
}

type ViewColumn struct {
	Attribute string `json:"attribute" yaml:"attribute"`
	Display   string `json:"display" yaml:"display"`
}

type View struct {
	Columns []ViewColumn `json:"column_list" yaml:"column_list"`
}

func (v View) Display(column string) (string, bool) {
	for _, entry := range v.Columns {
		if entry.Attribute == column {
			return entry.Display, true
		}
	}
	return "", false
}
