package introspect

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gopkg.in/yaml.v3"

	pgengine "github.com/chatidea/chatidea/internal/query/postgres"
	"github.com/chatidea/chatidea/internal/schema"
)

func newMockEngine(t *testing.T) (*pgengine.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return pgengine.NewEngine(db, time.Second), mock
}

func expectCatalog(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("FROM information_schema.columns").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}).
			AddRow("teacher", "id").
			AddRow("teacher", "name").
			AddRow("teacher", "department_id").
			AddRow("department", "id").
			AddRow("department", "name").
			AddRow("teaches", "teacher_id").
			AddRow("teaches", "course_id"))
	mock.ExpectQuery("PRIMARY KEY").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}).
			AddRow("teacher", "id").
			AddRow("department", "id"))
	mock.ExpectQuery("FOREIGN KEY").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "table_name", "column_name"}).
			AddRow("teacher", "department_id", "department", "id").
			AddRow("view_only", "x", "teacher", "id"))
}

func TestInspectBuildsTablesAndViews(t *testing.T) {
	engine, mock := newMockEngine(t)
	expectCatalog(mock)

	result, err := Inspect(context.Background(), engine)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
	if got := strings.Join(result.TableNames(), ","); got != "department,teacher,teaches" {
		t.Fatalf("tables = %s", got)
	}

	teacher := result.Tables["teacher"]
	if strings.Join(teacher.Columns, ",") != "id,name,department_id" || strings.Join(teacher.PrimaryKey, ",") != "id" {
		t.Fatalf("unexpected teacher table %#v", teacher)
	}
	if len(teacher.References) != 1 || teacher.References[0].ToTable != "department" || teacher.References[0].ShowColumn != "" {
		t.Fatalf("unexpected teacher references %#v", teacher.References)
	}
	if got := strings.Join(result.Tables["teaches"].PrimaryKey, ","); got != "teacher_id,course_id" {
		t.Fatalf("keyless table should use all columns as key, got %s", got)
	}
	if _, ok := result.Tables["view_only"]; ok {
		t.Fatal("references from unknown tables must be ignored")
	}

	view := result.Views["department"]
	if len(view.Columns) != 2 || view.Columns[1].Attribute != "name" || view.Columns[1].Display != "name" {
		t.Fatalf("unexpected department view %#v", view)
	}
}

func TestInspectDocumentsLoadAsRegistryDocuments(t *testing.T) {
	engine, mock := newMockEngine(t)
	expectCatalog(mock)

	result, err := Inspect(context.Background(), engine)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	schemaDoc, err := result.SchemaYAML()
	if err != nil {
		t.Fatalf("SchemaYAML() error = %v", err)
	}
	viewDoc, err := result.ViewYAML()
	if err != nil {
		t.Fatalf("ViewYAML() error = %v", err)
	}

	var tables map[string]schema.Table
	if err := schema.Decode("schema.yaml", schemaDoc, &tables); err != nil {
		t.Fatalf("Decode(schema) error = %v", err)
	}
	if tables["teacher"].References[0].FromColumn != "department_id" {
		t.Fatalf("unexpected decoded schema %#v", tables["teacher"])
	}
	var raw map[string]map[string][]map[string]string
	if err := yaml.Unmarshal(viewDoc, &raw); err != nil {
		t.Fatalf("yaml.Unmarshal(view) error = %v", err)
	}
	if raw["teacher"]["column_list"][2]["attribute"] != "department_id" {
		t.Fatalf("unexpected view document %s", viewDoc)
	}
}

func TestInspectFailures(t *testing.T) {
	engine, mock := newMockEngine(t)
	mock.ExpectQuery("FROM information_schema.columns").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}))
	if _, err := Inspect(context.Background(), engine); err == nil || !strings.Contains(err.Error(), "no tables") {
		t.Fatalf("expected empty schema error, got %v", err)
	}

	engine, mock = newMockEngine(t)
	mock.ExpectQuery("FROM information_schema.columns").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}).AddRow("teacher", "id"))
	mock.ExpectQuery("PRIMARY KEY").WillReturnError(errors.New("permission denied"))
	if _, err := Inspect(context.Background(), engine); err == nil || !strings.Contains(err.Error(), "primary keys") {
		t.Fatalf("expected primary key error, got %v", err)
	}

	if _, err := Inspect(context.Background(), nil); err == nil {
		t.Fatal("expected nil engine error")
	}
}
