package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chatidea/chatidea/internal/ambiguity"
	"github.com/chatidea/chatidea/internal/binder"
	"github.com/chatidea/chatidea/internal/conversation"
	"github.com/chatidea/chatidea/internal/nlu"
	"github.com/chatidea/chatidea/internal/observability"
	"github.com/chatidea/chatidea/internal/planner"
	"github.com/chatidea/chatidea/internal/schema"
)

const breakdownSlices = 5

// bind orders and binds the turn's entities onto concept.
func (s *Service) bind(concept schema.Concept, turn nlu.Turn) ([]schema.BoundAttribute, error) {
	attributes, err := s.binder.Bind(concept, binder.Order(turn.Entities))
	var target *binder.UnrecognizedAttributeError
	if err != nil && !errors.As(err, &target) {
		return nil, planFailure(err)
	}
	return attributes, err
}

// unrecognized turns a binding failure on a named attribute into the
// answer shown to the user.
func unrecognized(err error, stack *conversation.Stack) (Response, bool) {
	var target *binder.UnrecognizedAttributeError
	if !errors.As(err, &target) {
		return Response{}, false
	}
	return reply("Sorry, " + target.Error()).with(baseButtons(stack)...), true
}

func (s *Service) findByAttribute(ctx context.Context, turn nlu.Turn, stack *conversation.Stack) (Response, error) {
	concept, ok := s.concept(turn)
	if !ok {
		if ambiguity.NeedsSolving(turn.Entities) {
			return s.solveAmbiguity(turn, stack), nil
		}
		return reply("I guess you want to find something, but I did not understand what!\n",
			conceptNames(s.registry.PrimaryNames())).with(baseButtons(stack)...), nil
	}

	attributes, err := s.bind(concept, turn)
	if response, ok := unrecognized(err, stack); ok {
		return response, nil
	}
	if err != nil {
		return Response{}, err
	}
	if len(attributes) == 0 {
		examples, err := s.findExamples(ctx, concept)
		if err != nil {
			return Response{}, err
		}
		return reply(fmt.Sprintf("Ok so you want to find some concepts of type %s, but you should "+
			"tell me something more, otherwise I can't help you explore!", concept.Name), examples).
			with(baseButtons(stack)...), nil
	}

	stages := [][]schema.BoundAttribute{attributes}
	plan, err := s.planner.BuildFind(concept, stages)
	if err != nil {
		return Response{}, planFailure(err)
	}
	rows, err := s.execute(ctx, "find", plan)
	if err != nil {
		return Response{}, err
	}
	if len(rows) == 0 {
		return reply(s.messages.NothingFound).with(baseButtons(stack)...), nil
	}
	stack.Append(conversation.NewRows(concept.Name, rows, stages,
		`...found with attribute(s) "`+schema.Describe(attributes)+`"`, conversation.ActionFind))
	return s.view(ctx, stack, false)
}

// filterByAttribute narrows the focus list with a new stage. A list reached
// through a relation keeps the relation constraint.
func (s *Service) filterByAttribute(ctx context.Context, turn nlu.Turn, stack *conversation.Stack) (Response, error) {
	top, ok := stack.Top()
	if !ok {
		return reply(s.messages.EmptyHistory), nil
	}
	if !top.IsList() {
		return reply("Filtering is not possible now, there is only one element under to view!").with(baseButtons(stack)...), nil
	}
	concept, ok := s.focusConcept(top)
	if !ok {
		return s.fallback(stack), nil
	}

	attributes, err := s.bind(concept, turn)
	if response, ok := unrecognized(err, stack); ok {
		return response, nil
	}
	if err != nil {
		return Response{}, err
	}
	if len(attributes) == 0 {
		return reply("I didn't understand for what do you want to filter by\n", filterHints(concept)).with(baseButtons(stack)...), nil
	}

	stages := make([][]schema.BoundAttribute, 0, len(top.Stages)+1)
	stages = append(stages, top.Stages...)
	stages = append(stages, attributes)

	var plan planner.Plan
	if top.Origin != nil {
		plan, err = s.originPlan(top.Origin, stages)
	} else {
		plan, err = s.planner.BuildFind(concept, stages)
	}
	if err != nil {
		return Response{}, planFailure(err)
	}
	rows, err := s.execute(ctx, "filter", plan)
	if err != nil {
		return Response{}, err
	}
	if len(rows) == 0 {
		return reply(fmt.Sprintf("Nothing as been found for %s %s", concept.Name, schema.Describe(attributes))).
			with(baseButtons(stack)...), nil
	}

	element := conversation.NewRows(concept.Name, rows, stages,
		`...by filtering with property(s) "`+schema.Describe(attributes)+`":`, conversation.ActionFilter)
	element.Origin = top.Origin
	stack.Append(element)
	view, err := s.view(ctx, stack, false)
	if err != nil {
		return Response{}, err
	}
	view.Messages = append([]string{s.messages.resultsFound(len(rows))}, view.Messages...)
	return view, nil
}

func (s *Service) originPlan(origin *conversation.Origin, stages [][]schema.BoundAttribute) (planner.Plan, error) {
	source, ok := s.registry.Concept(origin.Concept)
	if !ok {
		return planner.Plan{}, fmt.Errorf("unknown concept %s", origin.Concept)
	}
	relation, ok := source.Relation(origin.Relation)
	if !ok {
		return planner.Plan{}, fmt.Errorf("unknown relation %s of %s", origin.Relation, origin.Concept)
	}
	plan, _, err := s.planner.BuildRelation(source, origin.Key, relation, stages...)
	return plan, err
}

func (s *Service) crossRelation(ctx context.Context, turn nlu.Turn, stack *conversation.Stack) (Response, error) {
	top, ok := stack.Top()
	if !ok {
		return reply(s.messages.Error).with(showAllConceptsButton()), nil
	}
	concept, ok := s.focusConcept(top)
	if !ok || !top.IsSingle() {
		return reply(s.messages.Error).with(showAllConceptsButton()), nil
	}
	relation, ok := s.binder.ResolveRelation(concept, turn.Value(nlu.RoleRelation))
	if !ok {
		return reply(s.messages.Error).with(showAllConceptsButton()), nil
	}

	row := top.Rows[0]
	plan, target, err := s.planner.BuildRelation(concept, row, relation)
	if err != nil {
		return Response{}, planFailure(err)
	}
	key, err := s.planner.KeyOf(concept, row)
	if err != nil {
		return Response{}, planFailure(err)
	}
	rows, err := s.execute(ctx, "relation", plan)
	if err != nil {
		return Response{}, err
	}
	if len(rows) == 0 {
		return reply(s.messages.NothingFound).with(
			showAllConceptsButton(),
			viewElementButton("- GO BACK TO THE CONCEPT! -"),
			historyButton(),
		), nil
	}

	element := conversation.NewRows(target.Name, rows, nil,
		fmt.Sprintf("...reached with the relation %q, from %s:", relation.Keyword, concept.Name), conversation.ActionCross)
	element.Origin = &conversation.Origin{Concept: concept.Name, Key: key, Relation: relation.Keyword}
	stack.Append(element)
	return s.view(ctx, stack, false)
}

// categoryConcept resolves the concept of a category button, falling back
// to the categories entry on top of the history.
func (s *Service) categoryConcept(turn nlu.Turn, stack *conversation.Stack) (schema.Concept, bool) {
	if concept, ok := s.exampleConcept(turn); ok {
		return concept, true
	}
	if top, ok := stack.Top(); ok && top.Kind == conversation.KindCategories {
		return s.registry.Concept(top.Concept)
	}
	return schema.Concept{}, false
}

func (s *Service) showTableCategories(ctx context.Context, turn nlu.Turn, stack *conversation.Stack) (Response, error) {
	concept, ok := s.categoryConcept(turn, stack)
	if !ok {
		return reply(s.messages.NothingFound).with(baseButtons(stack)...), nil
	}
	category, ok := concept.Category(turn.Value(nlu.RoleCategory))
	if !ok {
		return reply(fmt.Sprintf("I cannot find more info about %s.", concept.PluralName())).with(baseButtons(stack)...), nil
	}
	stack.Append(conversation.Element{
		Kind:     conversation.KindCategories,
		Concept:  concept.Name,
		Category: category.Column,
		Action:   "show table categories",
	})
	return s.categoriesScreen(ctx, concept, category, stack)
}

type categoryCount struct {
	value string
	count int64
}

func (s *Service) categoriesScreen(ctx context.Context, concept schema.Concept, category schema.Category, stack *conversation.Stack) (Response, error) {
	plan, err := s.planner.BuildCategory(concept, category)
	if err != nil {
		return Response{}, planFailure(err)
	}
	rows, err := s.execute(ctx, "category", plan)
	if err != nil {
		return Response{}, err
	}
	counts := make([]categoryCount, 0, len(rows))
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		value := schema.FormatValue(row["category"])
		counts = append(counts, categoryCount{value: value, count: toCount(row["count"])})
		values = append(values, value)
	}
	return reply(
		fmt.Sprintf("The concepts of type %s can be categorized based on %s.", concept.Name, category.Label()),
		breakdown(category, counts),
		fmt.Sprintf("You can select %s related to a specific category by clicking on the related button.", concept.PluralName()),
	).with(categoryValueButtons(concept, category, values)...).with(baseButtons(stack)...), nil
}

// breakdown lists the largest categories with their share; the rest is
// summed up as Other.
func breakdown(category schema.Category, counts []categoryCount) string {
	var total int64
	for _, c := range counts {
		total += c.count
	}
	var b strings.Builder
	b.WriteString(strings.ToUpper(category.Label()))
	if total == 0 {
		return b.String()
	}
	shown := min(len(counts), breakdownSlices)
	for _, c := range counts[:shown] {
		fmt.Fprintf(&b, "\n- %s, %.1f %%", c.value, float64(c.count)*100/float64(total))
	}
	if shown < len(counts) {
		var other int64
		for _, c := range counts[shown:] {
			other += c.count
		}
		fmt.Fprintf(&b, "\n- Other, %.1f %%", float64(other)*100/float64(total))
	}
	return b.String()
}

func toCount(value any) int64 {
	switch typed := value.(type) {
	case int64:
		return typed
	case int32:
		return int64(typed)
	case int:
		return int64(typed)
	case uint64:
		return int64(typed)
	case float64:
		return int64(typed)
	default:
		n, _ := strconv.ParseInt(schema.FormatValue(value), 10, 64)
		return n
	}
}

func (s *Service) findByCategory(ctx context.Context, turn nlu.Turn, stack *conversation.Stack) (Response, error) {
	concept, ok := s.categoryConcept(turn, stack)
	if !ok {
		return s.fallback(stack), nil
	}
	category, ok := concept.Category(turn.Value(nlu.RoleCategory))
	value, _ := turn.Param(keyCategoryValue)
	if !ok || value == "" {
		return s.fallback(stack), nil
	}

	attribute, err := s.planner.CategoryAttribute(concept, category, value)
	if err != nil {
		return Response{}, planFailure(err)
	}
	stages := [][]schema.BoundAttribute{{attribute}}
	plan, err := s.planner.BuildFind(concept, stages)
	if err != nil {
		return Response{}, planFailure(err)
	}
	rows, err := s.execute(ctx, "find", plan)
	if err != nil {
		return Response{}, err
	}
	if len(rows) == 0 {
		return reply(s.messages.NothingFound).with(baseButtons(stack)...), nil
	}
	stack.Append(conversation.NewRows(concept.Name, rows, stages,
		fmt.Sprintf("...found from category %s of table %s", value, strings.ToUpper(concept.Name)), conversation.ActionCategory))
	return s.view(ctx, stack, false)
}

func (s *Service) ambiguitySolver(ctx context.Context, turn nlu.Turn, stack *conversation.Stack) (Response, error) {
	if !ambiguity.NeedsSolving(turn.Entities) {
		return s.findByAttribute(ctx, turn, stack)
	}
	return s.solveAmbiguity(turn, stack), nil
}

func (s *Service) solveAmbiguity(turn nlu.Turn, stack *conversation.Stack) Response {
	candidates := s.solver.Candidates(turn.Entities)
	observability.ObserveAmbiguity(len(candidates))
	return reply(s.messages.AmbiguityFound).
		with(phraseButtons(candidates)...).
		with(baseButtons(stack)...)
}
