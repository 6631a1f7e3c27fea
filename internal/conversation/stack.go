package conversation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/chatidea/chatidea/internal/schema"
)

var (
	ErrEmpty          = errors.New("conversation history is empty")
	ErrNothingMore    = errors.New("nothing more to show")
	ErrOutOfRange     = errors.New("position out of range")
	ErrStaleSelection = errors.New("selected row does not belong to the context")
	ErrNotList        = errors.New("focus element is not a list")
)

const (
	DefaultPageSize        = 5
	DefaultHistoryPageSize = 4
	DefaultMaxLength       = 16
)

type Limits struct {
	PageSize        int
	HistoryPageSize int
	MaxLength       int
}

func (l Limits) withDefaults() Limits {
	if l.PageSize <= 0 {
		l.PageSize = DefaultPageSize
	}
	if l.HistoryPageSize <= 0 {
		l.HistoryPageSize = DefaultHistoryPageSize
	}
	if l.MaxLength <= 0 {
		l.MaxLength = DefaultMaxLength
	}
	return l
}

// Stack is the ordered history of one session. History is a window over
// the stack itself, independent of the row window inside each element.
type Stack struct {
	Elements []Element `json:"elements"`
	History  Window    `json:"history"`
	limits   Limits
}

func NewStack(limits Limits) *Stack {
	return &Stack{Elements: []Element{}, limits: limits.withDefaults()}
}

func (s *Stack) Limits() Limits {
	return s.limits
}

func (s *Stack) Len() int {
	return len(s.Elements)
}

func (s *Stack) Top() (*Element, bool) {
	if len(s.Elements) == 0 {
		return nil, false
	}
	return &s.Elements[len(s.Elements)-1], true
}

// Append pushes e as the new focus with its row window on the first page.
// The oldest entry is dropped once the stack exceeds its maximum length.
func (s *Stack) Append(e Element) {
	if e.Kind == "" {
		e.Kind = KindRows
	}
	if e.Kind == KindRows {
		e.RealLength = len(e.Rows)
	} else if e.RealLength == 0 {
		e.RealLength = 1
	}
	e.Show = Window{From: 0, To: min(e.RealLength, s.limits.PageSize)}
	s.Elements = append(s.Elements, e)
	if overflow := len(s.Elements) - s.limits.MaxLength; overflow > 0 {
		s.Elements = append([]Element(nil), s.Elements[overflow:]...)
	}
	s.ResetHistory()
}

// Advance slides the focus row window one page forward.
func (s *Stack) Advance() error {
	top, ok := s.Top()
	if !ok || !top.IsList() || top.Show.To >= top.RealLength {
		return ErrNothingMore
	}
	top.Show.From += s.limits.PageSize
	top.Show.To = min(top.RealLength, top.Show.To+s.limits.PageSize)
	return nil
}

// Retreat slides the focus row window one page back. A partial last page
// folds back into a full page.
func (s *Stack) Retreat() error {
	top, ok := s.Top()
	if !ok || !top.IsList() || top.Show.From == 0 {
		return ErrNothingMore
	}
	top.Show.From = max(0, top.Show.From-s.limits.PageSize)
	top.Show.To = min(top.RealLength, top.Show.From+s.limits.PageSize)
	return nil
}

// GoBackTo truncates the stack to length position, 1 <= position <= Len.
func (s *Stack) GoBackTo(position int) error {
	if len(s.Elements) == 0 {
		return ErrEmpty
	}
	if position < 1 || position > len(s.Elements) {
		return fmt.Errorf("%w: %d of %d", ErrOutOfRange, position, len(s.Elements))
	}
	s.Elements = s.Elements[:position]
	s.ResetHistory()
	return nil
}

func (s *Stack) Reset() {
	s.Elements = []Element{}
	s.ResetHistory()
}

// SelectRow validates a row of the focus list against the title the client
// saw and pushes it as a singleton element. summary renders a row the way
// its selection button was built.
func (s *Stack) SelectRow(position int, title string, summary func(map[string]any) string) error {
	top, ok := s.Top()
	if !ok {
		return ErrEmpty
	}
	if !top.IsList() {
		return ErrNotList
	}
	if position < 1 || position > len(top.Rows) {
		return fmt.Errorf("%w: %d of %d", ErrOutOfRange, position, len(top.Rows))
	}
	row := top.Rows[position-1]
	if SelectionTitle(summary(row)) != title {
		return ErrStaleSelection
	}
	s.Append(Element{
		Kind:       KindRows,
		Concept:    top.Concept,
		Rows:       []map[string]any{row},
		Stages:     top.Stages,
		Action:     "...selected from:",
		ActionType: ActionSelect,
	})
	return nil
}

// SortFocus orders the focus rows by column, NULLs last. The sort is stable.
func (s *Stack) SortFocus(column string) error {
	top, ok := s.Top()
	if !ok {
		return ErrEmpty
	}
	if !top.IsRows() {
		return ErrNotList
	}
	rows := append([]map[string]any(nil), top.Rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		left, right := rows[i][column], rows[j][column]
		if left == nil || right == nil {
			return left != nil && right == nil
		}
		return compareValues(left, right) < 0
	})
	top.Rows = rows
	return nil
}

// MoreHistory slides the history window one page towards older entries.
func (s *Stack) MoreHistory() error {
	if len(s.Elements) == 0 {
		return ErrEmpty
	}
	if s.History.From == 0 {
		return ErrNothingMore
	}
	s.History.From = max(0, s.History.From-s.limits.HistoryPageSize)
	s.History.To -= s.limits.HistoryPageSize
	return nil
}

// HistoryWindow returns the visible history entries, newest first, paired
// with their 1-based stack positions.
func (s *Stack) HistoryWindow() ([]Element, []int) {
	from := clamp(s.History.From, 0, len(s.Elements))
	to := clamp(s.History.To, from, len(s.Elements))
	elements := make([]Element, 0, to-from)
	positions := make([]int, 0, to-from)
	for i := to - 1; i >= from; i-- {
		elements = append(elements, s.Elements[i])
		positions = append(positions, i+1)
	}
	return elements, positions
}

// ResetHistory moves the history window back onto the newest entries.
func (s *Stack) ResetHistory() {
	s.History = Window{From: max(0, len(s.Elements)-s.limits.HistoryPageSize), To: len(s.Elements)}
}

// Clone copies the stack so a failed turn can be discarded. Row maps are
// shared; they are never mutated in place.
func (s *Stack) Clone() *Stack {
	out := &Stack{Elements: make([]Element, len(s.Elements)), History: s.History, limits: s.limits}
	for i, element := range s.Elements {
		out.Elements[i] = element.clone()
	}
	return out
}

func (s *Stack) setLimits(limits Limits) {
	s.limits = limits.withDefaults()
	if s.Elements == nil {
		s.Elements = []Element{}
	}
}

func compareValues(left, right any) int {
	if l, ok := toFloat(left); ok {
		if r, ok := toFloat(right); ok {
			switch {
			case l < r:
				return -1
			case l > r:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(schema.FormatValue(left), schema.FormatValue(right))
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	default:
		return 0, false
	}
}
