// Package conversation keeps the per-session history of explored results:
// the context stack, its two pagination windows and the session stores.
package conversation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/chatidea/chatidea/internal/schema"
)

type Kind string

const (
	KindRows       Kind = "rows"
	KindStart      Kind = "start"
	KindExamples   Kind = "examples"
	KindCategories Kind = "categories"
)

type ActionType string

const (
	ActionFind     ActionType = "find"
	ActionFilter   ActionType = "filter"
	ActionCross    ActionType = "cross"
	ActionSelect   ActionType = "select"
	ActionCategory ActionType = "category"
)

// Window is a half-open [From, To) range.
type Window struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Element is one history entry. Rows elements hold a result set; the other
// kinds remember which assistant screen was shown for which concept.
type Element struct {
	Kind       Kind                      `json:"kind"`
	Concept    string                    `json:"concept,omitempty"`
	Rows       []map[string]any          `json:"rows,omitempty"`
	RealLength int                       `json:"real_length"`
	Show       Window                    `json:"show"`
	Stages     [][]schema.BoundAttribute `json:"stages,omitempty"`
	Action     string                    `json:"action,omitempty"`
	ActionType ActionType                `json:"action_type,omitempty"`
	Category   string                    `json:"category,omitempty"`
	Origin     *Origin                   `json:"origin,omitempty"`
}

// Origin records the row a relation was crossed from, so that later
// refinements keep the relation constraint.
type Origin struct {
	Concept  string         `json:"concept"`
	Key      map[string]any `json:"key"`
	Relation string         `json:"relation"`
}

func NewRows(concept string, rows []map[string]any, stages [][]schema.BoundAttribute, action string, actionType ActionType) Element {
	return Element{
		Kind:       KindRows,
		Concept:    concept,
		Rows:       rows,
		RealLength: len(rows),
		Stages:     stages,
		Action:     action,
		ActionType: actionType,
	}
}

func (e Element) IsRows() bool {
	return e.Kind == KindRows
}

func (e Element) IsSingle() bool {
	return e.Kind == KindRows && e.RealLength == 1
}

func (e Element) IsList() bool {
	return e.Kind == KindRows && e.RealLength > 1
}

// Visible returns the rows of the current window with their absolute
// 1-based positions.
func (e Element) Visible() ([]map[string]any, int) {
	from := clamp(e.Show.From, 0, len(e.Rows))
	to := clamp(e.Show.To, from, len(e.Rows))
	return e.Rows[from:to], from + 1
}

func (e Element) clone() Element {
	e.Rows = append([]map[string]any(nil), e.Rows...)
	return e
}

// TitleLimit is the number of runes a selection title may carry.
const TitleLimit = 29

var titleNoise = regexp.MustCompile(`["';{}]`)

// CleanTitle strips markup and the characters that would break a button
// payload.
func CleanTitle(title string) string {
	title = schema.StripMarkup(title)
	title = titleNoise.ReplaceAllString(title, "")
	return strings.TrimRightFunc(title, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

// SelectionTitle is the title a selection button carries for a row summary.
func SelectionTitle(summary string) string {
	return Truncate(CleanTitle(summary), TitleLimit)
}

func Truncate(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
