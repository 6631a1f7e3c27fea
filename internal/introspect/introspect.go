// Package introspect drafts the schema and view documents from the catalog
// of a live database.
package introspect

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/chatidea/chatidea/internal/query"
	"github.com/chatidea/chatidea/internal/schema"
)

const columnsSQL = `SELECT c.table_name, c.column_name
FROM information_schema.columns c
JOIN information_schema.tables t ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = current_schema() AND t.table_type = 'BASE TABLE'
ORDER BY c.table_name, c.ordinal_position`

const primaryKeysSQL = `SELECT tc.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = current_schema()
ORDER BY tc.table_name, kcu.ordinal_position`

const foreignKeysSQL = `SELECT kcu.table_name, kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = current_schema()
ORDER BY kcu.table_name, kcu.ordinal_position`

type Result struct {
	Tables map[string]schema.Table
	Views  map[string]schema.View
}

// Inspect reads the tables of the current schema. A table without a primary
// key uses all of its columns as the key. Foreign keys are left without a
// show column; choosing one is an editorial decision.
func Inspect(ctx context.Context, engine query.Engine) (Result, error) {
	if engine == nil {
		return Result{}, fmt.Errorf("engine is required")
	}

	columns, err := engine.Execute(ctx, query.Request{SQL: columnsSQL})
	if err != nil {
		return Result{}, fmt.Errorf("read columns: %w", err)
	}
	tables := map[string]schema.Table{}
	for _, row := range columns.Rows {
		tableName, columnName, err := stringPair(row)
		if err != nil {
			return Result{}, fmt.Errorf("columns: %w", err)
		}
		table := tables[tableName]
		table.Columns = append(table.Columns, columnName)
		tables[tableName] = table
	}
	if len(tables) == 0 {
		return Result{}, fmt.Errorf("no tables found in the current schema")
	}

	keys, err := engine.Execute(ctx, query.Request{SQL: primaryKeysSQL})
	if err != nil {
		return Result{}, fmt.Errorf("read primary keys: %w", err)
	}
	for _, row := range keys.Rows {
		tableName, columnName, err := stringPair(row)
		if err != nil {
			return Result{}, fmt.Errorf("primary keys: %w", err)
		}
		table, ok := tables[tableName]
		if !ok {
			continue
		}
		table.PrimaryKey = append(table.PrimaryKey, columnName)
		tables[tableName] = table
	}

	references, err := engine.Execute(ctx, query.Request{SQL: foreignKeysSQL})
	if err != nil {
		return Result{}, fmt.Errorf("read foreign keys: %w", err)
	}
	for _, row := range references.Rows {
		if len(row) < 4 {
			return Result{}, fmt.Errorf("foreign keys: expected 4 columns, got %d", len(row))
		}
		fromTable, fromColumn, err := stringPair(row[:2])
		if err != nil {
			return Result{}, fmt.Errorf("foreign keys: %w", err)
		}
		toTable, toColumn, err := stringPair(row[2:])
		if err != nil {
			return Result{}, fmt.Errorf("foreign keys: %w", err)
		}
		table, ok := tables[fromTable]
		if !ok {
			continue
		}
		table.References = append(table.References, schema.ForeignKey{
			ToTable:    toTable,
			FromColumn: fromColumn,
			ToColumn:   toColumn,
		})
		tables[fromTable] = table
	}

	views := make(map[string]schema.View, len(tables))
	for name, table := range tables {
		if len(table.PrimaryKey) == 0 {
			table.PrimaryKey = append([]string(nil), table.Columns...)
			tables[name] = table
		}
		view := schema.View{Columns: make([]schema.ViewColumn, 0, len(table.Columns))}
		for _, column := range table.Columns {
			view.Columns = append(view.Columns, schema.ViewColumn{Attribute: column, Display: column})
		}
		views[name] = view
	}
	return Result{Tables: tables, Views: views}, nil
}

// TableNames returns the inspected tables in name order.
func (r Result) TableNames() []string {
	names := make([]string, 0, len(r.Tables))
	for name := range r.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SchemaYAML renders the tables as a schema document.
func (r Result) SchemaYAML() ([]byte, error) {
	return encodeYAML(r.Tables)
}

// ViewYAML renders the default views as a view document.
func (r Result) ViewYAML() ([]byte, error) {
	return encodeYAML(r.Views)
}

func encodeYAML(value any) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	encoder := yaml.NewEncoder(buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(value); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

func stringPair(row []any) (string, string, error) {
	if len(row) < 2 {
		return "", "", fmt.Errorf("expected 2 columns, got %d", len(row))
	}
	first, ok := row[0].(string)
	if !ok || first == "" {
		return "", "", fmt.Errorf("unexpected value %#v", row[0])
	}
	second, ok := row[1].(string)
	if !ok || second == "" {
		return "", "", fmt.Errorf("unexpected value %#v", row[1])
	}
	return first, second, nil
}
