// Package chat runs one conversation turn: it parses the user message,
// dispatches on the intent and answers with messages and quick-reply
// buttons while keeping the session's history consistent.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatidea/chatidea/internal/ambiguity"
	"github.com/chatidea/chatidea/internal/binder"
	"github.com/chatidea/chatidea/internal/conversation"
	"github.com/chatidea/chatidea/internal/fuzzy"
	"github.com/chatidea/chatidea/internal/nlu"
	"github.com/chatidea/chatidea/internal/observability"
	"github.com/chatidea/chatidea/internal/planner"
	"github.com/chatidea/chatidea/internal/query"
	"github.com/chatidea/chatidea/internal/schema"
)

type Dependencies struct {
	Registry *schema.Registry
	Parser   *nlu.Parser
	Engine   query.Engine
	Store    conversation.Store
	Dialect  planner.Dialect
	Matcher  fuzzy.Matcher
	RowLimit int
	Messages *Messages
	Logger   *slog.Logger
}

type handler func(ctx context.Context, turn nlu.Turn, stack *conversation.Stack) (Response, error)

type Service struct {
	registry *schema.Registry
	parser   *nlu.Parser
	binder   *binder.Binder
	planner  *planner.Builder
	solver   *ambiguity.Solver
	engine   query.Engine
	store    conversation.Store
	dialect  planner.Dialect
	messages Messages
	logger   *slog.Logger
	handlers map[string]handler
}

func NewService(deps Dependencies) (*Service, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("schema registry is required")
	}
	if deps.Parser == nil {
		return nil, fmt.Errorf("parser is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("query engine is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if deps.Dialect.Name == "" {
		deps.Dialect = planner.Postgres
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	messages := DefaultMessages()
	if deps.Messages != nil {
		messages = *deps.Messages
	}

	s := &Service{
		registry: deps.Registry,
		parser:   deps.Parser,
		binder:   binder.New(deps.Registry, deps.Matcher),
		planner:  planner.New(deps.Registry, deps.RowLimit),
		solver:   ambiguity.New(deps.Registry, deps.Matcher),
		engine:   deps.Engine,
		store:    deps.Store,
		dialect:  deps.Dialect,
		messages: messages,
		logger:   deps.Logger,
	}
	s.handlers = map[string]handler{
		nlu.IntentStart:                s.start,
		nlu.IntentHelp:                 s.help,
		nlu.IntentHelpElements:         s.helpElements,
		nlu.IntentHelpHistory:          s.helpHistory,
		nlu.IntentHelpGoBack:           s.helpGoBack,
		nlu.IntentMoreInfoFind:         s.moreInfoFind,
		nlu.IntentMoreInfoFilter:       s.moreInfoFilter,
		nlu.IntentFindByAttribute:      s.findByAttribute,
		nlu.IntentFilterByAttribute:    s.filterByAttribute,
		nlu.IntentCrossRelation:        s.crossRelation,
		nlu.IntentShowRelations:        s.showRelations,
		nlu.IntentShowMoreElements:     s.showMoreElements,
		nlu.IntentShowLessElements:     s.showLessElements,
		nlu.IntentSelectByPosition:     s.selectByPosition,
		nlu.IntentOrderBy:              s.orderBy,
		nlu.IntentOrderByAttribute:     s.orderByAttribute,
		nlu.IntentShowMoreExamples:     s.showMoreExamples,
		nlu.IntentShowMoreExamplesAttr: s.showMoreExamplesAttribute,
		nlu.IntentViewContextElement:   s.viewContextElement,
		nlu.IntentShowContext:          s.showContext,
		nlu.IntentShowMoreContext:      s.showMoreContext,
		nlu.IntentGoBackToPosition:     s.goBackToPosition,
		nlu.IntentShowTableCategories:  s.showTableCategories,
		nlu.IntentFindByCategory:       s.findByCategory,
		nlu.IntentAmbiguitySolver:      s.ambiguitySolver,
	}
	return s, nil
}

func (s *Service) Registry() *schema.Registry {
	return s.registry
}

// turnFailure is a planning or storage failure inside a turn. The turn's
// changes to the history are discarded and the user gets a generic answer.
type turnFailure struct {
	stage string
	err   error
}

func (e *turnFailure) Error() string {
	return fmt.Sprintf("%s failed: %v", e.stage, e.err)
}

func (e *turnFailure) Unwrap() error {
	return e.err
}

// Handle runs one turn of sessionID. Only session store failures are
// returned as errors; everything else becomes part of the response.
func (s *Service) Handle(ctx context.Context, sessionID, text string) (Response, error) {
	start := time.Now()
	ctx = observability.ContextWithSession(ctx, sessionID)
	turn, err := s.parser.Parse(ctx, text)
	if err != nil {
		s.logger.ErrorContext(ctx, "classification failed",
			slog.Any("error", err),
		)
		turn = nlu.Turn{Text: text, Intent: nlu.IntentFallback, Entities: []nlu.Entity{}}
	}

	var response Response
	depth := 0
	err = s.store.Update(ctx, sessionID, func(stack *conversation.Stack) error {
		depth = stack.Len()
		var handleErr error
		response, handleErr = s.dispatch(ctx, turn, stack)
		return handleErr
	})

	outcome := "ok"
	var failure *turnFailure
	switch {
	case errors.As(err, &failure):
		outcome = "failed"
		s.logger.ErrorContext(ctx, "turn failed",
			slog.String("intent", turn.Intent),
			slog.Any("error", err),
		)
		response = reply(s.messages.Failure).with(baseButtonsAt(depth)...)
	case err != nil:
		observability.ObserveTurn(turn.Intent, "error", time.Since(start))
		return Response{}, err
	case turn.Intent == nlu.IntentFallback:
		outcome = "fallback"
	}

	observability.ObserveTurn(turn.Intent, outcome, time.Since(start))
	s.logger.InfoContext(ctx, "chat turn",
		slog.String("intent", turn.Intent),
		slog.Float64("confidence", turn.Confidence),
		slog.String("outcome", outcome),
		slog.Int("buttons", len(response.Buttons)),
	)
	return response, nil
}

func (s *Service) dispatch(ctx context.Context, turn nlu.Turn, stack *conversation.Stack) (Response, error) {
	h, ok := s.handlers[turn.Intent]
	if !ok {
		return s.fallback(stack), nil
	}
	return h(ctx, turn, stack)
}

func (s *Service) fallback(stack *conversation.Stack) Response {
	return reply(s.messages.Error).with(baseButtons(stack)...)
}

// History lists the session's stack without modifying it.
func (s *Service) History(ctx context.Context, sessionID string) ([]conversation.Element, error) {
	var elements []conversation.Element
	err := conversation.View(ctx, s.store, sessionID, func(stack *conversation.Stack) error {
		elements = append(elements, stack.Elements...)
		return nil
	})
	return elements, err
}

func (s *Service) Reset(ctx context.Context, sessionID string) error {
	return s.store.Delete(ctx, sessionID)
}

// execute renders plan, runs it and strips the ordering-only columns.
func (s *Service) execute(ctx context.Context, kind string, plan planner.Plan) ([]map[string]any, error) {
	sqlText, args := plan.Render(s.dialect)
	result, err := s.engine.Execute(ctx, query.Request{SQL: sqlText, Args: args, MaxRows: plan.Limit})
	if err != nil {
		observability.IncrementQueryFailure(errors.Is(err, query.ErrTimeout))
		return nil, &turnFailure{stage: kind + " query", err: err}
	}
	observability.ObserveQuery(kind, len(result.Rows), result.Duration)
	s.logger.DebugContext(ctx, "query executed",
		slog.String("kind", kind),
		slog.String("sql", sqlText),
		slog.Int("rows", len(result.Rows)),
		slog.Duration("duration", result.Duration),
	)

	records := result.Records()
	hidden := plan.HiddenKeys()
	for _, record := range records {
		for _, key := range hidden {
			delete(record, key)
		}
	}
	return records, nil
}

func planFailure(err error) error {
	return &turnFailure{stage: "planning", err: err}
}

// concept resolves the element entity of turn onto a primary concept.
func (s *Service) concept(turn nlu.Turn) (schema.Concept, bool) {
	word := turn.Value(nlu.RoleElement)
	if word == "" {
		return schema.Concept{}, false
	}
	return s.binder.ResolveConcept(word)
}

func (s *Service) focusConcept(element *conversation.Element) (schema.Concept, bool) {
	return s.registry.Concept(element.Concept)
}
