package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/chatidea/chatidea/internal/conversation"
	"github.com/chatidea/chatidea/internal/nlu"
)

const nothingMore = "I am sorry, but there is nothing to show more..."

// view renders the focus of the history. showLess leaves out the
// selection prompt of a list's first page.
func (s *Service) view(ctx context.Context, stack *conversation.Stack, showLess bool) (Response, error) {
	top, ok := stack.Top()
	if !ok {
		return reply(s.messages.EmptyHistory).with(baseButtons(stack)...), nil
	}
	if top.Kind == conversation.KindStart {
		return s.startScreen(stack, false), nil
	}
	concept, ok := s.focusConcept(top)
	if !ok {
		return s.fallback(stack), nil
	}
	switch top.Kind {
	case conversation.KindExamples:
		return s.examplesScreen(ctx, concept, stack)
	case conversation.KindCategories:
		category, ok := concept.Category(top.Category)
		if !ok {
			return s.fallback(stack), nil
		}
		return s.categoriesScreen(ctx, concept, category, stack)
	}

	response := reply()
	if top.IsSingle() {
		response.Messages = append(response.Messages, rowListing(concept, s.registry.View(concept.Table), top.Rows[0]))
		if s.registry.IsPrimary(concept.Name) {
			response = response.with(s.relations(top)...)
			if len(response.Buttons) > 0 {
				response.Messages = append(response.Messages, "If you want more information, I can tell you:")
			}
		}
		return response.with(baseButtons(stack)...), nil
	}

	if top.Show.From == 0 && !showLess {
		response.Messages = append(response.Messages, s.messages.selectForInfo(concept.Name))
	}
	response.Messages = append(response.Messages,
		fmt.Sprintf("Shown results from %d to %d of %d", top.Show.From+1, top.Show.To, top.RealLength))
	return response.
		with(selectButtons(concept, top)...).
		with(pagingButtons(top)...).
		with(baseButtons(stack)...), nil
}

func (s *Service) relations(element *conversation.Element) []Button {
	concept, ok := s.focusConcept(element)
	if !ok {
		return nil
	}
	return relationButtons(concept)
}

func (s *Service) viewContextElement(ctx context.Context, _ nlu.Turn, stack *conversation.Stack) (Response, error) {
	return s.view(ctx, stack, false)
}

func (s *Service) showRelations(_ context.Context, _ nlu.Turn, stack *conversation.Stack) (Response, error) {
	top, ok := stack.Top()
	if !ok {
		return reply(s.messages.EmptyHistory), nil
	}
	buttons := s.relations(top)
	if !top.IsRows() || len(buttons) == 0 {
		return reply(), nil
	}
	return reply("If you want more information, I can tell you:").with(buttons...), nil
}

func (s *Service) showMoreElements(ctx context.Context, _ nlu.Turn, stack *conversation.Stack) (Response, error) {
	if err := stack.Advance(); err != nil {
		return reply(nothingMore), nil
	}
	return s.view(ctx, stack, false)
}

func (s *Service) showLessElements(ctx context.Context, _ nlu.Turn, stack *conversation.Stack) (Response, error) {
	if err := stack.Retreat(); err != nil {
		return reply("I am sorry, but there is nothing to show less..."), nil
	}
	return s.view(ctx, stack, true)
}

func (s *Service) selectByPosition(ctx context.Context, turn nlu.Turn, stack *conversation.Stack) (Response, error) {
	position, err := strconv.Atoi(turn.Value(nlu.RolePosition))
	if err != nil {
		return s.fallback(stack), nil
	}
	top, ok := stack.Top()
	if !ok {
		return reply(s.messages.EmptyHistory).with(baseButtons(stack)...), nil
	}
	if top.IsSingle() {
		view, err := s.view(ctx, stack, false)
		if err != nil {
			return Response{}, err
		}
		view.Messages = append([]string{"There is only one element!\n"}, view.Messages...)
		return view, nil
	}
	concept, ok := s.focusConcept(top)
	if !ok {
		return s.fallback(stack), nil
	}

	err = stack.SelectRow(position, turn.Value(nlu.RoleTitle), concept.Summary)
	switch {
	case errors.Is(err, conversation.ErrOutOfRange):
		return reply("Error! Out of range selection!").with(baseButtons(stack)...), nil
	case errors.Is(err, conversation.ErrStaleSelection):
		return reply("Error! The selected element not belonging to the context!").with(baseButtons(stack)...), nil
	case err != nil:
		return s.fallback(stack), nil
	}
	return s.view(ctx, stack, false)
}

func (s *Service) orderBy(_ context.Context, _ nlu.Turn, stack *conversation.Stack) (Response, error) {
	top, ok := stack.Top()
	if !ok || !top.IsRows() || len(top.Rows) == 0 {
		return reply("I am sorry, but there is nothing to order...").with(baseButtons(stack)...), nil
	}
	concept, ok := s.focusConcept(top)
	if !ok {
		return s.fallback(stack), nil
	}
	return reply("Choose the property you want to order").
		with(orderButtons(s.registry.View(concept.Table), top.Rows[0])...).
		with(baseButtons(stack)...), nil
}

// orderByAttribute sorts the focus rows. Buttons carry the column itself;
// a typed column name is resolved against the display view.
func (s *Service) orderByAttribute(ctx context.Context, turn nlu.Turn, stack *conversation.Stack) (Response, error) {
	top, ok := stack.Top()
	if !ok || !top.IsRows() {
		return reply("I am sorry, but there is nothing to order...").with(baseButtons(stack)...), nil
	}
	column := turn.Value(nlu.RolePosition)
	if column == "" {
		concept, ok := s.focusConcept(top)
		if !ok {
			return s.fallback(stack), nil
		}
		if column, ok = s.binder.ResolveColumn(concept, turn.Value(nlu.RoleColumns)); !ok {
			return s.orderBy(ctx, turn, stack)
		}
	}
	if err := stack.SortFocus(column); err != nil {
		return reply("I am sorry, but there is nothing to order...").with(baseButtons(stack)...), nil
	}
	return s.view(ctx, stack, false)
}

func (s *Service) showContext(_ context.Context, _ nlu.Turn, stack *conversation.Stack) (Response, error) {
	stack.ResetHistory()
	return s.history(stack), nil
}

func (s *Service) showMoreContext(_ context.Context, _ nlu.Turn, stack *conversation.Stack) (Response, error) {
	if err := stack.MoreHistory(); err != nil {
		return reply(nothingMore).with(baseButtons(stack)...), nil
	}
	return s.history(stack), nil
}

// history lists the visible history window, newest first. The newest
// entry re-renders the focus; older ones go back to their position.
func (s *Service) history(stack *conversation.Stack) Response {
	if stack.Len() == 0 {
		return reply(s.messages.EmptyHistory).with(baseButtons(stack)...)
	}
	response := reply()
	elements, positions := stack.HistoryWindow()
	for i, element := range elements {
		label := s.historyLabel(element)
		if positions[i] == stack.Len() {
			response.Messages = append(response.Messages, "Here is history, click on a button to see the related element")
			response = response.with(viewElementButton(label))
			continue
		}
		response = response.with(goBackButton(label, positions[i]))
	}
	response.Messages = append(response.Messages, s.messages.RememberReset)
	response = response.with(resetHistoryButton())
	if stack.History.From > 0 {
		response = response.with(moreHistoryButton())
	}
	return response.with(baseButtons(stack)...)
}

func (s *Service) historyLabel(element conversation.Element) string {
	switch {
	case element.Kind == conversation.KindStart:
		return "Start"
	case element.Kind == conversation.KindExamples:
		return fmt.Sprintf("Examples of %q", element.Concept)
	case element.Kind == conversation.KindCategories:
		return fmt.Sprintf("Categories of %q", element.Concept)
	case element.IsSingle():
		if concept, ok := s.registry.Concept(element.Concept); ok {
			return conversation.CleanTitle(concept.Summary(element.Rows[0]))
		}
	}
	return fmt.Sprintf("A list of type %q", element.Concept)
}

// goBackToPosition truncates the history. Without a position it goes back
// one step; the reset sentinel and position 0 empty the history.
func (s *Service) goBackToPosition(ctx context.Context, turn nlu.Turn, stack *conversation.Stack) (Response, error) {
	length := stack.Len()
	if length == 0 {
		return reply(s.messages.EmptyHistory).with(baseButtons(stack)...), nil
	}
	position := length - 1
	if raw := turn.Value(nlu.RolePosition); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return s.fallback(stack), nil
		}
		position = parsed
	}

	switch position {
	case resetPosition:
		stack.Reset()
		return reply(s.messages.HistoryReset).with(baseButtons(stack)...), nil
	case 0:
		stack.Reset()
		return reply(s.messages.NoGoBack).with(baseButtons(stack)...), nil
	}
	if err := stack.GoBackTo(position); err != nil {
		response := s.history(stack)
		response.Messages = append([]string{s.messages.BadPosition}, response.Messages...)
		return response, nil
	}
	view, err := s.view(ctx, stack, false)
	if err != nil {
		return Response{}, err
	}
	view.Messages = append([]string{resumed(length - position)}, view.Messages...)
	return view, nil
}
