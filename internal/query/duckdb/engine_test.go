package duckdb

import (
	"bytes"
	"context"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/chatidea/chatidea/internal/planner"
	"github.com/chatidea/chatidea/internal/query"
	"github.com/chatidea/chatidea/internal/schema"
	"github.com/chatidea/chatidea/internal/schema/schematest"
	"github.com/chatidea/chatidea/internal/storage/storagetest"
)

type teacherRow struct {
	ID           int64  `parquet:"id"`
	Name         string `parquet:"name"`
	Surname      string `parquet:"surname"`
	Age          int64  `parquet:"age"`
	DepartmentID int64  `parquet:"department_id"`
}

type departmentRow struct {
	ID         int64  `parquet:"id"`
	Name       string `parquet:"name"`
	BuildingID int64  `parquet:"building_id"`
}

func buildParquet[T any](t *testing.T, rows []T) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[T](buf)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close parquet writer: %v", err)
	}
	return buf.Bytes()
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store := storagetest.NewMemoryStore()
	store.PutBytes("snapshots/teacher.parquet", buildParquet(t, []teacherRow{
		{ID: 1, Name: "Ada", Surname: "Lovelace", Age: 36, DepartmentID: 10},
		{ID: 2, Name: "Alan", Surname: "Turing", Age: 41, DepartmentID: 11},
		{ID: 3, Name: "Grace", Surname: "Hopper", Age: 85, DepartmentID: 10},
	}))
	store.PutBytes("snapshots/department.parquet", buildParquet(t, []departmentRow{
		{ID: 10, Name: "Mathematics", BuildingID: 1},
		{ID: 11, Name: "Computing", BuildingID: 1},
	}))

	engine, err := Open(context.Background(), store, Config{TablePrefix: "snapshots", Tables: []string{"teacher", "department"}})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func TestExecuteRendersPlanAgainstSnapshots(t *testing.T) {
	engine := newTestEngine(t)
	registry := schematest.Registry(t)
	teacher, _ := registry.Concept("teacher")
	attribute, _ := teacher.AttributeByKeyword("in department")

	plan, err := planner.New(registry, 0).BuildFind(teacher, [][]schema.BoundAttribute{{
		schema.Bind(attribute, "math", schema.OpLike, schema.ConjunctionNone),
	}})
	if err != nil {
		t.Fatalf("BuildFind() error = %v", err)
	}
	sqlText, args := plan.Render(planner.DuckDB)

	result, err := engine.Execute(context.Background(), query.Request{SQL: sqlText, Args: args, MaxRows: plan.Limit})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	records := result.Records()
	if len(records) != 2 {
		t.Fatalf("expected 2 teachers in mathematics, got %d", len(records))
	}
	if records[0]["name"] != "Ada" || records[1]["name"] != "Grace" {
		t.Fatalf("unexpected order %#v", records)
	}
	if records[0]["department_id"] != "Mathematics" {
		t.Fatalf("expected unfolded department, got %#v", records[0]["department_id"])
	}
}

func TestExecuteSupportsTrailingSemicolon(t *testing.T) {
	engine := newTestEngine(t)
	result, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT COUNT(*) AS c FROM teacher;"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 1 || result.Rows[0][0] != int64(3) {
		t.Fatalf("count = %#v", result.Rows)
	}
}

func TestOpenFailsOnMissingSnapshot(t *testing.T) {
	store := storagetest.NewMemoryStore()
	if _, err := Open(context.Background(), store, Config{TablePrefix: "snapshots", Tables: []string{"teacher"}}); err == nil {
		t.Fatal("expected missing snapshot error")
	}
}
