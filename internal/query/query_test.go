package query

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRunCollectsRowsWithArgs(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT a."name" AS "name" FROM "teacher" AS a WHERE a."name" ILIKE $1`)).
		WithArgs("%Ada%").
		WillReturnRows(sqlmock.NewRows([]string{"name", "age"}).
			AddRow([]byte("Ada"), int64(36)).
			AddRow("Alan", nil).
			AddRow("Grace", int64(85)))

	result, err := Run(context.Background(), db, 0, Request{
		SQL:     `SELECT a."name" AS "name" FROM "teacher" AS a WHERE a."name" ILIKE $1;`,
		Args:    []any{"%Ada%"},
		MaxRows: 2,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected MaxRows to cap rows, got %d", len(result.Rows))
	}
	records := result.Records()
	if records[0]["name"] != "Ada" {
		t.Fatalf("expected []byte normalized to string, got %#v", records[0]["name"])
	}
	if records[1]["age"] != nil {
		t.Fatalf("expected NULL to stay nil, got %#v", records[1]["age"])
	}
}

func TestRunWrapsDeadline(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("SELECT 1").WillReturnError(context.DeadlineExceeded)

	_, err = Run(context.Background(), db, 0, Request{SQL: "SELECT 1"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestRunRequiresSQL(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := Run(context.Background(), db, 0, Request{SQL: " ; "}); err == nil {
		t.Fatal("expected error for empty SQL")
	}
}
