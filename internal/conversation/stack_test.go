package conversation

import (
	"errors"
	"fmt"
	"testing"
)

func numberedRows(n int) []map[string]any {
	rows := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, map[string]any{"id": int64(i), "name": fmt.Sprintf("row %d", i)})
	}
	return rows
}

func rowName(row map[string]any) string {
	return fmt.Sprint(row["name"])
}

func TestAdvanceAndRetreatPaginateFocus(t *testing.T) {
	stack := NewStack(Limits{})
	stack.Append(NewRows("teacher", numberedRows(12), nil, "found", ActionFind))

	want := []Window{{0, 5}, {5, 10}, {10, 12}}
	for i, window := range want {
		if i > 0 {
			if err := stack.Advance(); err != nil {
				t.Fatalf("Advance() step %d error = %v", i, err)
			}
		}
		top, _ := stack.Top()
		if top.Show != window {
			t.Fatalf("Show after step %d = %+v, want %+v", i, top.Show, window)
		}
	}
	if err := stack.Advance(); !errors.Is(err, ErrNothingMore) {
		t.Fatalf("Advance() past end error = %v, want ErrNothingMore", err)
	}
	if err := stack.Retreat(); err != nil {
		t.Fatalf("Retreat() error = %v", err)
	}
	top, _ := stack.Top()
	if top.Show != (Window{5, 10}) {
		t.Fatalf("Show after retreat = %+v, want {5 10}", top.Show)
	}
	if err := stack.Retreat(); err != nil {
		t.Fatalf("Retreat() error = %v", err)
	}
	if err := stack.Retreat(); !errors.Is(err, ErrNothingMore) {
		t.Fatalf("Retreat() at start error = %v, want ErrNothingMore", err)
	}
}

func TestAdvanceRejectsSingleRow(t *testing.T) {
	stack := NewStack(Limits{})
	stack.Append(NewRows("teacher", numberedRows(1), nil, "found", ActionFind))
	if err := stack.Advance(); !errors.Is(err, ErrNothingMore) {
		t.Fatalf("Advance() error = %v, want ErrNothingMore", err)
	}
}

func TestAppendDropsOldestBeyondMaxLength(t *testing.T) {
	stack := NewStack(Limits{MaxLength: 3})
	for i := 0; i < 5; i++ {
		stack.Append(Element{Kind: KindStart, Concept: fmt.Sprintf("c%d", i)})
	}
	if stack.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", stack.Len())
	}
	if stack.Elements[0].Concept != "c2" {
		t.Fatalf("oldest element = %q, want c2", stack.Elements[0].Concept)
	}
}

func TestGoBackToTruncates(t *testing.T) {
	stack := NewStack(Limits{})
	for i := 1; i <= 6; i++ {
		stack.Append(NewRows(fmt.Sprintf("concept%d", i), numberedRows(2), nil, fmt.Sprintf("step %d", i), ActionFind))
	}
	if err := stack.GoBackTo(2); err != nil {
		t.Fatalf("GoBackTo() error = %v", err)
	}
	if stack.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", stack.Len())
	}
	top, _ := stack.Top()
	if top.Concept != "concept2" || top.Action != "step 2" {
		t.Fatalf("top = %q/%q, want the second element", top.Concept, top.Action)
	}
	if stack.Elements[0].Concept != "concept1" {
		t.Fatalf("bottom = %q, want concept1", stack.Elements[0].Concept)
	}
	if stack.History != (Window{0, 2}) {
		t.Fatalf("History = %+v, want {0 2}", stack.History)
	}
	if err := stack.GoBackTo(3); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("GoBackTo(3) error = %v, want ErrOutOfRange", err)
	}
	if err := stack.GoBackTo(0); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("GoBackTo(0) error = %v, want ErrOutOfRange", err)
	}
	if err := stack.GoBackTo(1); err != nil {
		t.Fatalf("GoBackTo(1) error = %v", err)
	}
	if top, _ := stack.Top(); stack.Len() != 1 || top.Concept != "concept1" {
		t.Fatalf("top = %q with Len() = %d, want concept1 alone", top.Concept, stack.Len())
	}
}

func TestAdvanceThenRetreatRestoresWindow(t *testing.T) {
	for _, n := range []int{0, 1, 4, 5, 6, 7, 10, 11, 12, 23} {
		for _, page := range []int{1, 2, 3, 5} {
			stack := NewStack(Limits{PageSize: page})
			stack.Append(NewRows("teacher", numberedRows(n), nil, "found", ActionFind))
			first, _ := stack.Top()
			original := first.Show
			if want := (Window{0, min(n, page)}); original != want {
				t.Fatalf("n=%d page=%d: initial Show = %+v, want %+v", n, page, original, want)
			}

			advanced := 0
			for stack.Advance() == nil {
				advanced++
				top, _ := stack.Top()
				if top.Show.From >= top.Show.To || top.Show.To > n {
					t.Fatalf("n=%d page=%d: Show after %d advances = %+v", n, page, advanced, top.Show)
				}
			}
			if want := max(0, (n-1)/page); n > 1 && advanced != want {
				t.Fatalf("n=%d page=%d: advanced %d times, want %d", n, page, advanced, want)
			}

			for i := 0; i < advanced; i++ {
				if err := stack.Retreat(); err != nil {
					t.Fatalf("n=%d page=%d: Retreat() %d error = %v", n, page, i+1, err)
				}
			}
			top, _ := stack.Top()
			if top.Show != original {
				t.Fatalf("n=%d page=%d: Show = %+v after %d advances and retreats, want %+v", n, page, top.Show, advanced, original)
			}
			if err := stack.Retreat(); !errors.Is(err, ErrNothingMore) {
				t.Fatalf("n=%d page=%d: Retreat() at start error = %v, want ErrNothingMore", n, page, err)
			}
		}
	}
}

func TestSelectRowPushesSingleton(t *testing.T) {
	stack := NewStack(Limits{})
	stack.Append(NewRows("teacher", numberedRows(3), nil, "found", ActionFind))

	if err := stack.SelectRow(2, "row 2", rowName); err != nil {
		t.Fatalf("SelectRow() error = %v", err)
	}
	top, _ := stack.Top()
	if !top.IsSingle() || top.Rows[0]["id"] != int64(2) {
		t.Fatalf("top = %+v, want singleton row 2", top)
	}
	if top.ActionType != ActionSelect {
		t.Fatalf("ActionType = %q, want select", top.ActionType)
	}
}

func TestSelectRowRejectsStaleTitle(t *testing.T) {
	stack := NewStack(Limits{})
	stack.Append(NewRows("teacher", numberedRows(3), nil, "found", ActionFind))
	before := stack.Clone()

	if err := stack.SelectRow(2, "row 3", rowName); !errors.Is(err, ErrStaleSelection) {
		t.Fatalf("SelectRow() error = %v, want ErrStaleSelection", err)
	}
	if err := stack.SelectRow(9, "row 9", rowName); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("SelectRow() error = %v, want ErrOutOfRange", err)
	}
	if stack.Len() != before.Len() {
		t.Fatalf("Len() = %d, want %d", stack.Len(), before.Len())
	}
}

func TestSelectionTitleCleansAndTruncates(t *testing.T) {
	got := SelectionTitle(`<b>O'Neil</b>; "Alexandria Ocasio Cortez the Third"  `)
	want := "ONeil Alexandria Ocasio Corte"
	if got != want {
		t.Fatalf("SelectionTitle() = %q, want %q", got, want)
	}
}

func TestSortFocusPutsNullsLast(t *testing.T) {
	stack := NewStack(Limits{})
	stack.Append(NewRows("teacher", []map[string]any{
		{"name": "c", "age": nil},
		{"name": "a", "age": int64(50)},
		{"name": "b", "age": int64(30)},
		{"name": "d", "age": int64(30)},
	}, nil, "found", ActionFind))

	if err := stack.SortFocus("age"); err != nil {
		t.Fatalf("SortFocus() error = %v", err)
	}
	top, _ := stack.Top()
	got := ""
	for _, row := range top.Rows {
		got += row["name"].(string)
	}
	if got != "bdac" {
		t.Fatalf("sorted names = %q, want bdac", got)
	}
}

func TestHistoryWindowAndMoreHistory(t *testing.T) {
	stack := NewStack(Limits{})
	for i := 0; i < 6; i++ {
		stack.Append(Element{Kind: KindStart, Concept: fmt.Sprintf("c%d", i)})
	}
	_, positions := stack.HistoryWindow()
	if fmt.Sprint(positions) != "[6 5 4 3]" {
		t.Fatalf("positions = %v, want [6 5 4 3]", positions)
	}
	if err := stack.MoreHistory(); err != nil {
		t.Fatalf("MoreHistory() error = %v", err)
	}
	_, positions = stack.HistoryWindow()
	if fmt.Sprint(positions) != "[2 1]" {
		t.Fatalf("positions = %v, want [2 1]", positions)
	}
	if err := stack.MoreHistory(); !errors.Is(err, ErrNothingMore) {
		t.Fatalf("MoreHistory() error = %v, want ErrNothingMore", err)
	}
}
