package schema

import (
	"errors"
	"fmt"

	"github.com/chatidea/chatidea/internal/joingraph"
)

var ErrInvalidConfig = errors.New("invalid schema configuration")

func validate(docs Documents) error {
	problems := make([]error, 0)
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if len(docs.Concepts) == 0 {
		report("no concepts defined")
	}
	for tableName, table := range docs.Tables {
		for _, key := range table.PrimaryKey {
			if !table.HasColumn(key) {
				report("table %s: primary key column %q does not exist", tableName, key)
			}
		}
		for _, fk := range table.References {
			target, ok := docs.Tables[fk.ToTable]
			switch {
			case !ok:
				report("table %s: reference to unknown table %q", tableName, fk.ToTable)
			case !table.HasColumn(fk.FromColumn):
				report("table %s: reference column %q does not exist", tableName, fk.FromColumn)
			case !target.HasColumn(fk.ToColumn):
				report("table %s: referenced column %s.%s does not exist", tableName, fk.ToTable, fk.ToColumn)
			case fk.ShowColumn != "" && !target.HasColumn(fk.ShowColumn):
				report("table %s: show column %s.%s does not exist", tableName, fk.ToTable, fk.ShowColumn)
			}
		}
	}
	for tableName, view := range docs.Views {
		table, ok := docs.Tables[tableName]
		if !ok {
			report("view for unknown table %q", tableName)
			continue
		}
		for _, column := range view.Columns {
			if !table.HasColumn(column.Attribute) {
				report("view %s: column %q does not exist", tableName, column.Attribute)
			}
		}
	}

	names := map[string]bool{}
	for _, concept := range docs.Concepts {
		if concept.Name == "" {
			report("concept without element_name")
			continue
		}
		if names[concept.Name] {
			report("concept %s: defined twice", concept.Name)
		}
		names[concept.Name] = true
	}

	for _, concept := range docs.Concepts {
		if concept.Name == "" {
			continue
		}
		switch concept.Kind {
		case KindPrimary, KindSecondary, KindCrossable:
		default:
			report("concept %s: unknown type %q", concept.Name, concept.Kind)
		}
		table, ok := docs.Tables[concept.Table]
		if !ok {
			report("concept %s: unknown table %q", concept.Name, concept.Table)
			continue
		}
		for _, show := range concept.ShowColumns {
			for _, column := range show.Columns {
				if !table.HasColumn(column) {
					report("concept %s: show column %q does not exist in %s", concept.Name, column, concept.Table)
				}
			}
		}
		for _, category := range concept.Categories {
			if !table.HasColumn(category.Column) {
				report("concept %s: category column %q does not exist in %s", concept.Name, category.Column, concept.Table)
			}
		}

		edges := baseEdges(concept.Table, table)
		for _, attribute := range concept.Attributes {
			label := attribute.Keyword
			if label == "" {
				label = "(implicit)"
			}
			if _, ok := ParseValueType(string(attribute.Type)); !ok {
				report("concept %s: attribute %s has unknown type %q", concept.Name, label, attribute.Type)
			}
			if len(attribute.Columns) == 0 {
				report("concept %s: attribute %s has no columns", concept.Name, label)
			}
			if err := checkChain(docs.Tables, concept.Table, attribute.By); err != nil {
				report("concept %s: attribute %s: %v", concept.Name, label, err)
				continue
			}
			owner, ok := docs.Tables[attribute.OwnerTable(concept.Table)]
			if !ok {
				continue
			}
			for _, column := range attribute.Columns {
				if !owner.HasColumn(column) {
					report("concept %s: attribute %s column %q does not exist in %s", concept.Name, label, column, attribute.OwnerTable(concept.Table))
				}
			}
			edges = append(edges, chainEdges(attribute.By)...)
		}
		if _, err := joingraph.Sort(concept.Table, edges); err != nil {
			report("concept %s: %w", concept.Name, err)
		}

		for _, relation := range concept.Relations {
			target, ok := findConcept(docs.Concepts, relation.Concept)
			if !ok {
				report("concept %s: relation %s targets unknown concept %q", concept.Name, relation.Keyword, relation.Concept)
				continue
			}
			if len(relation.By) == 0 {
				report("concept %s: relation %s has no reference chain", concept.Name, relation.Keyword)
				continue
			}
			if err := checkChain(docs.Tables, concept.Table, relation.By); err != nil {
				report("concept %s: relation %s: %v", concept.Name, relation.Keyword, err)
				continue
			}
			if last := relation.By[len(relation.By)-1].ToTable; last != target.Table {
				report("concept %s: relation %s ends at %s, not at %s", concept.Name, relation.Keyword, last, target.Table)
				continue
			}
			targetTable := docs.Tables[target.Table]
			relationEdges := append(baseEdges(target.Table, targetTable), chainEdges(ReverseChain(relation.By))...)
			if _, err := joingraph.Sort(target.Table, relationEdges); err != nil {
				report("concept %s: relation %s: %w", concept.Name, relation.Keyword, err)
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
}

func checkChain(tables map[string]Table, start string, chain []Reference) error {
	current := start
	for i, hop := range chain {
		if hop.FromTable != current {
			return fmt.Errorf("hop %d starts at %s, expected %s", i+1, hop.FromTable, current)
		}
		if len(hop.FromColumns) == 0 || len(hop.FromColumns) != len(hop.ToColumns) {
			return fmt.Errorf("hop %d has mismatched key columns", i+1)
		}
		from, ok := tables[hop.FromTable]
		if !ok {
			return fmt.Errorf("hop %d: unknown table %q", i+1, hop.FromTable)
		}
		to, ok := tables[hop.ToTable]
		if !ok {
			return fmt.Errorf("hop %d: unknown table %q", i+1, hop.ToTable)
		}
		for j := range hop.FromColumns {
			if !from.HasColumn(hop.FromColumns[j]) {
				return fmt.Errorf("hop %d: column %s.%s does not exist", i+1, hop.FromTable, hop.FromColumns[j])
			}
			if !to.HasColumn(hop.ToColumns[j]) {
				return fmt.Errorf("hop %d: column %s.%s does not exist", i+1, hop.ToTable, hop.ToColumns[j])
			}
		}
		current = hop.ToTable
	}
	return nil
}

// baseEdges lists the unfolding joins of a base table. References without a
// show column are projected raw and never joined.
func baseEdges(name string, table Table) []joingraph.Edge {
	edges := make([]joingraph.Edge, 0, len(table.References))
	for _, fk := range table.References {
		if fk.ShowColumn == "" {
			continue
		}
		edges = append(edges, joingraph.Edge{Origin: name, Target: fk.ToTable})
	}
	return edges
}

func chainEdges(chain []Reference) []joingraph.Edge {
	edges := make([]joingraph.Edge, 0, len(chain))
	for _, hop := range chain {
		edges = append(edges, joingraph.Edge{Origin: hop.FromTable, Target: hop.ToTable})
	}
	return edges
}

func findConcept(concepts []Concept, name string) (Concept, bool) {
	for _, concept := range concepts {
		if concept.Name == name {
			return concept, true
		}
	}
	return Concept{}, false
}
