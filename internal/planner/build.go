package planner

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chatidea/chatidea/internal/schema"
)

const DefaultLimit = 100

var ErrMissingKey = errors.New("row is missing a primary key value")

type Builder struct {
	registry *schema.Registry
	limit    int
}

func New(registry *schema.Registry, limit int) *Builder {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Builder{registry: registry, limit: limit}
}

type draft struct {
	registry *schema.Registry
	base     string
	joins    *joinSet
	columns  []Column
	orderBy  []OrderTerm
}

func (b *Builder) newDraft(table string) (*draft, error) {
	schemaTable, ok := b.registry.Table(table)
	if !ok {
		return nil, fmt.Errorf("unknown table %s", table)
	}
	d := &draft{registry: b.registry, base: table, joins: newJoinSet()}
	for _, column := range schemaTable.Columns {
		fk, isForeign := schemaTable.ForeignKey(column)
		if !isForeign {
			d.columns = append(d.columns, Column{Key: column, Table: table, Name: column})
			continue
		}
		d.columns = append(d.columns, Column{Key: column, Table: fk.ToTable, Name: fk.ShowColumn})
		d.joins.add(schema.Reference{
			FromTable:   table,
			FromColumns: []string{fk.FromColumn},
			ToTable:     fk.ToTable,
			ToColumns:   []string{fk.ToColumn},
		}, JoinLeft)
	}
	return d, nil
}

func (d *draft) chain(references []schema.Reference) {
	for _, reference := range references {
		d.joins.add(reference, JoinInner)
	}
}

// order adds an ORDER BY term. Unfolded foreign keys order by their shown
// value; columns outside the projection get a hidden one so that DISTINCT
// stays valid.
func (d *draft) order(table, column string) {
	for _, projected := range d.columns {
		if !projected.Count && projected.Table == table && projected.Name == column {
			d.orderBy = append(d.orderBy, OrderTerm{Table: table, Column: column})
			return
		}
	}
	if table == d.base {
		if schemaTable, ok := d.registry.Table(table); ok {
			if fk, ok := schemaTable.ForeignKey(column); ok {
				d.orderBy = append(d.orderBy, OrderTerm{Table: fk.ToTable, Column: fk.ShowColumn})
				return
			}
		}
	}
	d.columns = append(d.columns, Column{
		Key:    fmt.Sprintf("_order_%d", len(d.orderBy)),
		Table:  table,
		Name:   column,
		Hidden: true,
	})
	d.orderBy = append(d.orderBy, OrderTerm{Table: table, Column: column})
}

func (d *draft) defaultOrder(concept schema.Concept) {
	for _, column := range concept.DisplayColumns() {
		d.order(d.base, column)
	}
}

func (d *draft) plan(where Criterion, limit int) (Plan, error) {
	joins, labels, err := d.joins.resolve(d.base)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Base:     d.base,
		Distinct: true,
		Columns:  d.columns,
		Joins:    joins,
		Where:    where,
		OrderBy:  d.orderBy,
		Limit:    limit,
		Labels:   labels,
	}, nil
}

// BuildFind plans a search over the concept's table. Each stage is one round
// of refinement: inside a stage attributes form OR-separated groups of
// AND-joined predicates, and stages are AND-combined.
func (b *Builder) BuildFind(concept schema.Concept, stages [][]schema.BoundAttribute) (Plan, error) {
	d, err := b.newDraft(concept.Table)
	if err != nil {
		return Plan{}, err
	}
	criteria := d.stages(concept, stages)
	return d.plan(All(criteria...), b.limit)
}

// stages chains every attribute's joins, applies explicit orderings (or the
// concept's default one) and returns one criterion per stage.
func (d *draft) stages(concept schema.Concept, stages [][]schema.BoundAttribute) []Criterion {
	criteria := make([]Criterion, 0, len(stages))
	ordered := false
	for _, stage := range stages {
		for _, attribute := range stage {
			d.chain(attribute.By)
			if attribute.Operator == schema.OpOrderBy {
				owner := attribute.OwnerTable(d.base)
				for _, column := range attribute.Columns {
					d.order(owner, column)
				}
				ordered = true
			}
		}
		criteria = append(criteria, stageCriterion(d.base, stage))
	}
	if !ordered {
		d.defaultOrder(concept)
	}
	return criteria
}

func stageCriterion(base string, stage []schema.BoundAttribute) Criterion {
	groups := make([]Criterion, 0)
	current := make([]Criterion, 0)
	for _, attribute := range stage {
		if attribute.Operator != schema.OpOrderBy {
			current = append(current, attributeCriterion(base, attribute))
		}
		if attribute.Conjunction != schema.ConjunctionAnd {
			groups = append(groups, All(current...))
			current = current[:0:0]
		}
	}
	groups = append(groups, All(current...))
	return Any(groups...)
}

// attributeCriterion matches when any of the attribute's columns matches.
func attributeCriterion(base string, attribute schema.BoundAttribute) Criterion {
	owner := attribute.OwnerTable(base)
	value := bindValue(attribute)
	leaves := make([]Criterion, 0, len(attribute.Columns))
	for _, column := range attribute.Columns {
		leaves = append(leaves, Leaf(Predicate{Table: owner, Column: column, Operator: attribute.Operator, Value: value}))
	}
	return Any(leaves...)
}

// BuildRelation plans the rows of the relation's target concept that are
// linked to one row of source, walking the relation chain backwards from the
// target table to the source row's primary key. Optional stages refine the
// target rows the same way BuildFind does.
func (b *Builder) BuildRelation(source schema.Concept, row map[string]any, relation schema.Relation, stages ...[]schema.BoundAttribute) (Plan, schema.Concept, error) {
	target, ok := b.registry.Concept(relation.Concept)
	if !ok {
		return Plan{}, schema.Concept{}, fmt.Errorf("unknown concept %s", relation.Concept)
	}
	keys, err := b.KeyOf(source, row)
	if err != nil {
		return Plan{}, schema.Concept{}, err
	}
	d, err := b.newDraft(target.Table)
	if err != nil {
		return Plan{}, schema.Concept{}, err
	}
	d.chain(schema.ReverseChain(relation.By))

	criteria := make([]Criterion, 0, len(keys)+len(stages))
	for _, column := range sortedKeys(keys) {
		criteria = append(criteria, Leaf(Predicate{Table: source.Table, Column: column, Operator: schema.OpEqual, Value: keys[column]}))
	}
	criteria = append(criteria, d.stages(target, stages)...)
	plan, err := d.plan(All(criteria...), b.limit)
	return plan, target, err
}

// KeyOf extracts the primary key values of a source row.
func (b *Builder) KeyOf(concept schema.Concept, row map[string]any) (map[string]any, error) {
	table, ok := b.registry.Table(concept.Table)
	if !ok {
		return nil, fmt.Errorf("unknown table %s", concept.Table)
	}
	keys := make(map[string]any, len(table.PrimaryKey))
	for _, column := range table.PrimaryKey {
		value, ok := row[column]
		if !ok || value == nil {
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingKey, concept.Table, column)
		}
		keys[column] = value
	}
	return keys, nil
}

func sortedKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// BuildCategory plans a count of the concept's rows per category value,
// largest first. Foreign-key categories count by the referenced show value.
func (b *Builder) BuildCategory(concept schema.Concept, category schema.Category) (Plan, error) {
	schemaTable, ok := b.registry.Table(concept.Table)
	if !ok {
		return Plan{}, fmt.Errorf("unknown table %s", concept.Table)
	}
	joins := newJoinSet()
	value := Column{Key: "category", Table: concept.Table, Name: category.Column}
	groupBy := []Column{value}
	if fk, ok := schemaTable.ForeignKey(category.Column); ok {
		joins.add(schema.Reference{
			FromTable:   concept.Table,
			FromColumns: []string{fk.FromColumn},
			ToTable:     fk.ToTable,
			ToColumns:   []string{fk.ToColumn},
		}, JoinLeft)
		value = Column{Key: "category", Table: fk.ToTable, Name: fk.ShowColumn}
		groupBy = append(groupBy, value)
	}
	resolved, labels, err := joins.resolve(concept.Table)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Base:    concept.Table,
		Columns: []Column{value, {Key: "count", Count: true}},
		Joins:   resolved,
		GroupBy: groupBy,
		OrderBy: []OrderTerm{{Count: true, Descending: true}},
		Labels:  labels,
	}, nil
}

// CategoryAttribute binds a category value as a LIKE attribute. Foreign-key
// categories match on the referenced show column.
func (b *Builder) CategoryAttribute(concept schema.Concept, category schema.Category, value string) (schema.BoundAttribute, error) {
	schemaTable, ok := b.registry.Table(concept.Table)
	if !ok {
		return schema.BoundAttribute{}, fmt.Errorf("unknown table %s", concept.Table)
	}
	attribute := schema.BoundAttribute{
		Keyword:  category.Keyword,
		Type:     schema.TypeWord,
		Columns:  []string{category.Column},
		Value:    value,
		Operator: schema.OpLike,
	}
	if fk, ok := schemaTable.ForeignKey(category.Column); ok {
		attribute.Columns = []string{fk.ShowColumn}
		attribute.By = []schema.Reference{{
			FromTable:   concept.Table,
			FromColumns: []string{fk.FromColumn},
			ToTable:     fk.ToTable,
			ToColumns:   []string{fk.ToColumn},
		}}
	}
	return attribute, nil
}

// BuildCategoryValue plans the concept's rows whose category matches value.
func (b *Builder) BuildCategoryValue(concept schema.Concept, category schema.Category, value string) (Plan, error) {
	attribute, err := b.CategoryAttribute(concept, category, value)
	if err != nil {
		return Plan{}, err
	}
	return b.BuildFind(concept, [][]schema.BoundAttribute{{attribute}})
}

// BuildExamples plans distinct sample values of an attribute, read directly
// from the table owning its columns.
func (b *Builder) BuildExamples(concept schema.Concept, attribute schema.Attribute) (Plan, error) {
	owner := attribute.OwnerTable(concept.Table)
	if _, ok := b.registry.Table(owner); !ok {
		return Plan{}, fmt.Errorf("unknown table %s", owner)
	}
	columns := make([]Column, 0, len(attribute.Columns))
	order := make([]OrderTerm, 0, len(attribute.Columns))
	for _, column := range attribute.Columns {
		columns = append(columns, Column{Key: column, Table: owner, Name: column})
		order = append(order, OrderTerm{Table: owner, Column: column})
	}
	return Plan{
		Base:     owner,
		Distinct: true,
		Columns:  columns,
		OrderBy:  order,
		Limit:    b.limit,
		Labels:   map[string]string{owner: label(0)},
	}, nil
}
