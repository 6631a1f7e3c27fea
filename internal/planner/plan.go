// Package planner turns bound attributes into query plans: it discovers and
// deduplicates the joins they need, orders them, builds the predicate tree
// and renders the result for a SQL dialect.
package planner

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/chatidea/chatidea/internal/joingraph"
	"github.com/chatidea/chatidea/internal/schema"
)

var ErrJoinCycle = errors.New("join graph has a cycle")

type JoinKind string

const (
	JoinInner JoinKind = "INNER"
	JoinLeft  JoinKind = "LEFT"
)

type Equality struct {
	OriginColumn string
	TargetColumn string
}

// Join is the single join between one (origin, target) table pair. Its ON
// clause conjoins every equality any attribute needed between the two.
type Join struct {
	Origin string
	Target string
	On     []Equality
	Kind   JoinKind
}

type Column struct {
	Key    string
	Table  string
	Name   string
	Count  bool
	Hidden bool
}

type Predicate struct {
	Table    string
	Column   string
	Operator schema.Operator
	Value    any
}

type Combinator string

const (
	CombineAll Combinator = "AND"
	CombineAny Combinator = "OR"
)

// Criterion is a predicate tree. A leaf carries a Predicate; an inner node
// combines its children.
type Criterion struct {
	Combinator Combinator
	Children   []Criterion
	Predicate  *Predicate
}

func Leaf(predicate Predicate) Criterion {
	return Criterion{Predicate: &predicate}
}

func All(children ...Criterion) Criterion {
	return combine(CombineAll, children)
}

func Any(children ...Criterion) Criterion {
	return combine(CombineAny, children)
}

func combine(combinator Combinator, children []Criterion) Criterion {
	kept := make([]Criterion, 0, len(children))
	for _, child := range children {
		if !child.Empty() {
			kept = append(kept, child)
		}
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return Criterion{Combinator: combinator, Children: kept}
}

func (c Criterion) Empty() bool {
	return c.Predicate == nil && len(c.Children) == 0
}

// Predicates lists the leaves in declaration order, which is also the order
// of the rendered parameters.
func (c Criterion) Predicates() []Predicate {
	if c.Predicate != nil {
		return []Predicate{*c.Predicate}
	}
	out := make([]Predicate, 0)
	for _, child := range c.Children {
		out = append(out, child.Predicates()...)
	}
	return out
}

type OrderTerm struct {
	Table      string
	Column     string
	Count      bool
	Descending bool
}

type Plan struct {
	Base     string
	Distinct bool
	Columns  []Column
	Joins    []Join
	Where    Criterion
	GroupBy  []Column
	OrderBy  []OrderTerm
	Limit    int
	// Labels maps every table of the plan to its alias letter, "a" being
	// the base table, in join order.
	Labels map[string]string
}

// HiddenKeys lists result keys added only to satisfy ordering.
func (p Plan) HiddenKeys() []string {
	keys := make([]string, 0)
	for _, column := range p.Columns {
		if column.Hidden {
			keys = append(keys, column.Key)
		}
	}
	return keys
}

func (p Plan) Args() []any {
	predicates := p.Where.Predicates()
	args := make([]any, 0, len(predicates))
	for _, predicate := range predicates {
		args = append(args, predicate.Value)
	}
	return args
}

type pairKey struct {
	origin string
	target string
}

type joinSet struct {
	order []pairKey
	joins map[pairKey]*Join
}

func newJoinSet() *joinSet {
	return &joinSet{joins: map[pairKey]*Join{}}
}

func (s *joinSet) add(reference schema.Reference, kind JoinKind) {
	key := pairKey{origin: reference.FromTable, target: reference.ToTable}
	join, ok := s.joins[key]
	if !ok {
		join = &Join{Origin: key.origin, Target: key.target, Kind: kind}
		s.joins[key] = join
		s.order = append(s.order, key)
	}
	if kind == JoinInner {
		join.Kind = JoinInner
	}
	for i := range reference.FromColumns {
		equality := Equality{OriginColumn: reference.FromColumns[i], TargetColumn: reference.ToColumns[i]}
		if !containsEquality(join.On, equality) {
			join.On = append(join.On, equality)
		}
	}
}

func containsEquality(list []Equality, equality Equality) bool {
	for _, candidate := range list {
		if candidate == equality {
			return true
		}
	}
	return false
}

// resolve orders the joins so that every origin is introduced before its
// target, and assigns alias letters in that order.
func (s *joinSet) resolve(base string) ([]Join, map[string]string, error) {
	edges := make([]joingraph.Edge, 0, len(s.order))
	for _, key := range s.order {
		edges = append(edges, joingraph.Edge{Origin: key.origin, Target: key.target})
	}
	tables, err := joingraph.Sort(base, edges)
	if err != nil {
		if errors.Is(err, joingraph.ErrCycle) {
			return nil, nil, fmt.Errorf("%w: %w", ErrJoinCycle, err)
		}
		return nil, nil, err
	}
	position := make(map[string]int, len(tables))
	labels := make(map[string]string, len(tables))
	for i, table := range tables {
		position[table] = i
		labels[table] = label(i)
	}

	joins := make([]Join, 0, len(s.order))
	for _, key := range s.order {
		joins = append(joins, *s.joins[key])
	}
	sort.SliceStable(joins, func(i, j int) bool {
		if position[joins[i].Target] != position[joins[j].Target] {
			return position[joins[i].Target] < position[joins[j].Target]
		}
		return position[joins[i].Origin] < position[joins[j].Origin]
	})
	return joins, labels, nil
}

func label(index int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	if index < len(letters) {
		return string(letters[index])
	}
	return string(letters[index%len(letters)]) + strconv.Itoa(index/len(letters))
}

// bindValue converts a bound value to its query parameter.
func bindValue(attribute schema.BoundAttribute) any {
	value := strings.TrimSpace(attribute.Value)
	if attribute.Operator == schema.OpLike {
		return "%" + value + "%"
	}
	if attribute.Type == schema.TypeNumber {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return value
}
