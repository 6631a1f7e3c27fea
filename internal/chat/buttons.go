package chat

import (
	"strconv"
	"strings"

	"github.com/chatidea/chatidea/internal/conversation"
	"github.com/chatidea/chatidea/internal/nlu"
	"github.com/chatidea/chatidea/internal/schema"
)

const (
	maxCategoryButtons = 5
	resetPosition      = -1
)

type Button struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

type Response struct {
	Messages []string `json:"messages"`
	Buttons  []Button `json:"buttons"`
}

func reply(messages ...string) Response {
	return Response{Messages: messages, Buttons: []Button{}}
}

func (r Response) with(buttons ...Button) Response {
	r.Buttons = append(r.Buttons, buttons...)
	return r
}

// payloadSafe drops the characters that delimit payload pairs.
var payloadSafe = strings.NewReplacer(`"`, "", ";", "", "{", "", "}", "")

func button(title, intent string, pairs ...nlu.Pair) Button {
	for i := range pairs {
		pairs[i].Value = payloadSafe.Replace(pairs[i].Value)
	}
	return Button{Title: title, Payload: nlu.EncodePayload(intent, pairs...)}
}

func showAllConceptsButton() Button {
	return button("- SHOW ALL THE CONCEPTS -", nlu.IntentHelpElements)
}

func goBackButton(title string, position int) Button {
	return button(title, nlu.IntentGoBackToPosition, nlu.P(string(nlu.RolePosition), strconv.Itoa(position)))
}

func historyButton() Button {
	return button("- HISTORY -", nlu.IntentShowContext)
}

// baseButtons are appended to most answers: concepts, one step back and
// history.
func baseButtons(stack *conversation.Stack) []Button {
	return baseButtonsAt(stack.Len())
}

// baseButtonsAt builds the base buttons for a history of the given length.
func baseButtonsAt(length int) []Button {
	return []Button{
		showAllConceptsButton(),
		goBackButton("- GO BACK! -", length-1),
		historyButton(),
	}
}

func filterHintsButton() Button {
	return button("- FILTER HINTS -", nlu.IntentMoreInfoFilter)
}

func viewElementButton(title string) Button {
	return button(title, nlu.IntentViewContextElement)
}

func resetHistoryButton() Button {
	return goBackButton("+ RESET HISTORY +", resetPosition)
}

func helpButtons() []Button {
	return []Button{
		showAllConceptsButton(),
		button("- Help on HISTORY -", nlu.IntentHelpHistory),
		button("- Help on GOING BACK -", nlu.IntentHelpGoBack),
	}
}

func tellMeMoreButtons(concepts []string) []Button {
	buttons := make([]Button, 0, len(concepts))
	for _, concept := range concepts {
		buttons = append(buttons, button("Tell me more about "+concept, nlu.IntentMoreInfoFind, nlu.P(string(nlu.RoleElement), concept)))
	}
	return buttons
}

// selectButtons offers one button per visible row. The payload carries the
// row's absolute position and its title cut to the payload title slot.
func selectButtons(concept schema.Concept, element *conversation.Element) []Button {
	rows, first := element.Visible()
	buttons := make([]Button, 0, len(rows))
	for i, row := range rows {
		title := conversation.CleanTitle(concept.Summary(row))
		buttons = append(buttons, button(title, nlu.IntentSelectByPosition,
			nlu.P(string(nlu.RolePosition), strconv.Itoa(first+i)),
			nlu.P(string(nlu.RoleTitle), conversation.Truncate(title, conversation.TitleLimit)),
		))
	}
	return buttons
}

func pagingButtons(element *conversation.Element) []Button {
	buttons := make([]Button, 0, 4)
	if element.Show.To < element.RealLength {
		buttons = append(buttons, button("+ SHOW MORE RESULTS +", nlu.IntentShowMoreElements))
	}
	if element.Show.From >= 1 {
		buttons = append(buttons, button("+ SHOW LESS RESULTS +", nlu.IntentShowLessElements))
	}
	return append(buttons,
		button("+ ORDER RESULTS BY +", nlu.IntentOrderBy),
		filterHintsButton(),
	)
}

func relationButtons(concept schema.Concept) []Button {
	buttons := make([]Button, 0, len(concept.Relations))
	for _, relation := range concept.Relations {
		buttons = append(buttons, button(relation.Keyword, nlu.IntentCrossRelation, nlu.P(string(nlu.RoleRelation), relation.Keyword)))
	}
	return buttons
}

// orderButtons offers the display columns present in row.
func orderButtons(view schema.View, row map[string]any) []Button {
	buttons := make([]Button, 0, len(view.Columns))
	for _, column := range view.Columns {
		if _, ok := row[column.Attribute]; !ok {
			continue
		}
		buttons = append(buttons, button(column.Display, nlu.IntentOrderByAttribute, nlu.P(string(nlu.RolePosition), column.Attribute)))
	}
	return buttons
}

func phraseButtons(phrases []string) []Button {
	buttons := make([]Button, 0, len(phrases))
	for _, phrase := range phrases {
		buttons = append(buttons, button(phrase, nlu.IntentFindByAttribute, nlu.P(string(nlu.RolePhrase), phrase)))
	}
	return buttons
}

func moreExamplesButton(concept string) Button {
	return button("+ NEED MORE EXAMPLES? +", nlu.IntentShowMoreExamples, nlu.P(string(nlu.RoleElement), concept))
}

const (
	keyExampleKeyword = "keyword"
	keyCategoryValue  = "value"
	implicitKeyword   = " "
)

func exampleAttributeButtons(concept schema.Concept) []Button {
	buttons := make([]Button, 0, len(concept.Attributes))
	for _, attribute := range concept.Attributes {
		keyword := attribute.Keyword
		if keyword == "" {
			keyword = implicitKeyword
		}
		buttons = append(buttons, button("Find "+concept.Name+" "+keyword+" ...", nlu.IntentShowMoreExamplesAttr,
			nlu.P(string(nlu.RoleElement), concept.Name),
			nlu.P(keyExampleKeyword, keyword),
		))
	}
	return buttons
}

func tableCategoryButtons(concept schema.Concept) []Button {
	buttons := make([]Button, 0, len(concept.Categories))
	for _, category := range concept.Categories {
		title := "+ SHOW THE " + strings.ToUpper(category.Label()) + "S OF " + strings.ToUpper(concept.Name) + " +"
		buttons = append(buttons, button(title, nlu.IntentShowTableCategories,
			nlu.P(string(nlu.RoleElement), concept.Name),
			nlu.P(string(nlu.RoleCategory), category.Column),
		))
	}
	return buttons
}

func categoryValueButtons(concept schema.Concept, category schema.Category, values []string) []Button {
	buttons := make([]Button, 0, maxCategoryButtons)
	for i, value := range values {
		if i == maxCategoryButtons {
			break
		}
		buttons = append(buttons, button(value, nlu.IntentFindByCategory,
			nlu.P(string(nlu.RoleElement), concept.Name),
			nlu.P(string(nlu.RoleCategory), category.Column),
			nlu.P(keyCategoryValue, value),
		))
	}
	return buttons
}

func moreHistoryButton() Button {
	return button("+ SHOW MORE HISTORY +", nlu.IntentShowMoreContext)
}
