package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/chatidea/chatidea/internal/conversation"
	"github.com/chatidea/chatidea/internal/nlu"
	"github.com/chatidea/chatidea/internal/schema"
)

const (
	moreExamplesLimit = 9
	missingSample     = "..."
)

func (s *Service) start(_ context.Context, _ nlu.Turn, stack *conversation.Stack) (Response, error) {
	stack.Append(conversation.Element{Kind: conversation.KindStart, Action: "start"})
	return s.startScreen(stack, true), nil
}

// startScreen is the greeting. Revisiting it from the history adds the
// base buttons.
func (s *Service) startScreen(stack *conversation.Stack, fresh bool) Response {
	names := s.registry.PrimaryNames()
	response := reply(s.messages.Greeting + "\n" + conceptNames(names)).with(tellMeMoreButtons(names)...)
	if !fresh {
		response = response.with(baseButtons(stack)...)
	}
	return response
}

func (s *Service) help(context.Context, nlu.Turn, *conversation.Stack) (Response, error) {
	return reply("For what do you need help?").with(helpButtons()...), nil
}

func (s *Service) helpElements(context.Context, nlu.Turn, *conversation.Stack) (Response, error) {
	names := s.registry.PrimaryNames()
	return reply(conceptNames(names)).with(tellMeMoreButtons(names)...), nil
}

func (s *Service) helpHistory(context.Context, nlu.Turn, *conversation.Stack) (Response, error) {
	return reply(s.messages.HelpHistory).with(showAllConceptsButton()), nil
}

func (s *Service) helpGoBack(context.Context, nlu.Turn, *conversation.Stack) (Response, error) {
	return reply(s.messages.HelpGoBack).with(showAllConceptsButton()), nil
}

func (s *Service) moreInfoFind(ctx context.Context, turn nlu.Turn, stack *conversation.Stack) (Response, error) {
	concept, ok := s.concept(turn)
	if !ok {
		return reply("I am sorry, I understood that you want more info, but not on what...").with(baseButtons(stack)...), nil
	}
	stack.Append(conversation.Element{Kind: conversation.KindExamples, Concept: concept.Name, Action: "more info find"})
	return s.examplesScreen(ctx, concept, stack)
}

func (s *Service) examplesScreen(ctx context.Context, concept schema.Concept, stack *conversation.Stack) (Response, error) {
	text, err := s.findExamples(ctx, concept)
	if err != nil {
		return Response{}, err
	}
	return reply(text).
		with(tableCategoryButtons(concept)...).
		with(moreExamplesButton(concept.Name)).
		with(baseButtons(stack)...), nil
}

func (s *Service) findExamples(ctx context.Context, concept schema.Concept) (string, error) {
	samples, err := s.samples(ctx, concept)
	if err != nil {
		return "", err
	}
	return findExamples(concept, samples), nil
}

// samples fetches one stored value per attribute of concept, parallel to
// concept.Attributes. Ordering attributes get a placeholder.
func (s *Service) samples(ctx context.Context, concept schema.Concept) ([]string, error) {
	samples := make([]string, len(concept.Attributes))
	for i, attribute := range concept.Attributes {
		samples[i] = missingSample
		if attribute.Type == schema.TypeColumns {
			continue
		}
		values, err := s.exampleValues(ctx, concept, attribute, 1)
		if err != nil {
			return nil, err
		}
		if len(values) > 0 {
			samples[i] = values[0]
		}
	}
	return samples, nil
}

// exampleValues lists up to limit distinct stored values of attribute.
func (s *Service) exampleValues(ctx context.Context, concept schema.Concept, attribute schema.Attribute, limit int) ([]string, error) {
	plan, err := s.planner.BuildExamples(concept, attribute)
	if err != nil {
		return nil, planFailure(err)
	}
	if limit > 0 {
		plan.Limit = limit
	}
	rows, err := s.execute(ctx, "examples", plan)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		parts := make([]string, 0, len(attribute.Columns))
		for _, column := range attribute.Columns {
			if row[column] == nil {
				continue
			}
			parts = append(parts, schema.StripMarkup(schema.FormatValue(row[column])))
		}
		if value := strings.TrimSpace(strings.Join(parts, " ")); value != "" {
			values = append(values, value)
		}
	}
	return values, nil
}

func (s *Service) moreInfoFilter(_ context.Context, turn nlu.Turn, stack *conversation.Stack) (Response, error) {
	if concept, ok := s.concept(turn); ok {
		return reply(filterHints(concept)).with(baseButtons(stack)...), nil
	}
	if top, ok := stack.Top(); ok && top.IsList() {
		if concept, ok := s.registry.Concept(top.Concept); ok {
			return reply(filterHints(concept)).with(baseButtons(stack)...), nil
		}
	}
	example := ""
	if names := s.registry.PrimaryNames(); len(names) > 0 {
		example = names[0]
	}
	return reply("I am sorry, but there is nothing to filter... You'd better tell on which element.\n" +
		fmt.Sprintf("Try, for instance, with \"how to filter %s\"", example)).with(baseButtons(stack)...), nil
}

// exampleConcept resolves the concept named by an examples button. Buttons
// carry canonical names; free text goes through the fuzzy matcher.
func (s *Service) exampleConcept(turn nlu.Turn) (schema.Concept, bool) {
	if concept, ok := s.registry.Concept(turn.Value(nlu.RoleElement)); ok {
		return concept, true
	}
	return s.concept(turn)
}

func (s *Service) showMoreExamples(_ context.Context, turn nlu.Turn, stack *conversation.Stack) (Response, error) {
	concept, ok := s.exampleConcept(turn)
	if !ok {
		return s.fallback(stack), nil
	}
	return reply(fmt.Sprintf("Select the property of %q you want to see examples of", concept.Name)).
		with(exampleAttributeButtons(concept)...).
		with(baseButtons(stack)...), nil
}

func (s *Service) showMoreExamplesAttribute(ctx context.Context, turn nlu.Turn, stack *conversation.Stack) (Response, error) {
	concept, ok := s.exampleConcept(turn)
	if !ok {
		return s.fallback(stack), nil
	}
	keyword, _ := turn.Param(keyExampleKeyword)
	attribute, ok := exampleAttribute(concept, keyword)
	if !ok {
		return s.fallback(stack), nil
	}
	values, err := s.exampleValues(ctx, concept, attribute, 0)
	if err != nil {
		return Response{}, err
	}
	if len(values) == 0 {
		return reply(s.messages.NothingFound).with(baseButtons(stack)...), nil
	}
	return reply(exampleLines(concept, attribute, values, moreExamplesLimit)).with(baseButtons(stack)...), nil
}

// exampleAttribute finds the attribute an examples button refers to. A blank
// keyword is the concept's first implicit attribute.
func exampleAttribute(concept schema.Concept, keyword string) (schema.Attribute, bool) {
	if strings.TrimSpace(keyword) != "" {
		return concept.AttributeByKeyword(keyword)
	}
	for _, attribute := range concept.Attributes {
		if attribute.Implicit() {
			return attribute, true
		}
	}
	return schema.Attribute{}, false
}
