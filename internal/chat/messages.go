package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/chatidea/chatidea/internal/schema"
)

// Messages is the user-facing text catalogue. Every field can be replaced
// through the optional extras document.
type Messages struct {
	Greeting       string `json:"greeting" yaml:"greeting"`
	HelpHistory    string `json:"help_history" yaml:"help_history"`
	HelpGoBack     string `json:"help_go_back" yaml:"help_go_back"`
	Error          string `json:"error" yaml:"error"`
	Failure        string `json:"failure" yaml:"failure"`
	NothingFound   string `json:"nothing_found" yaml:"nothing_found"`
	OneResultFound string `json:"one_result_found" yaml:"one_result_found"`
	ResultsFound   string `json:"n_results_found_pattern" yaml:"n_results_found_pattern"`
	HelpFilter     string `json:"help_filter" yaml:"help_filter"`
	SelectForInfo  string `json:"select_for_info_pattern" yaml:"select_for_info_pattern"`
	AmbiguityFound string `json:"ambiguity_found" yaml:"ambiguity_found"`
	EmptyHistory   string `json:"empty_context_list" yaml:"empty_context_list"`
	HistoryReset   string `json:"context_list_reset" yaml:"context_list_reset"`
	NoGoBack       string `json:"no_go_back" yaml:"no_go_back"`
	BadPosition    string `json:"history_position_out_of_range" yaml:"history_position_out_of_range"`
	RememberReset  string `json:"remember_reset_history" yaml:"remember_reset_history"`
}

func DefaultMessages() Messages {
	return Messages{
		HelpHistory: "You can always check the history of the conversation, just ask!\n" +
			"For instance you can try with: \"show me the history\" or maybe just \"history\".\n" +
			"I will help you to go back in the past, if you want, or just reset it completely.",
		HelpGoBack: "If you did something wrong, DON'T PANIC!\n" +
			"By simply telling me something like \"go back\" or \"undo\" you can jump to the previous concepts of your history.\n" +
			"This might be a shortcut when you want to make little rollbacks, without accessing all your history.",
		Greeting:       "Hello! I'm very happy to help you in exploring the database.",
		Error:          "Sorry, I did not get that! :(",
		Failure:        "I am sorry, something went wrong while searching. Please try again in a moment.",
		NothingFound:   "Nothing has been found, I am sorry!",
		OneResultFound: "Et voilà! I found 1 result!",
		ResultsFound:   "Et voilà! I found %d results!",
		HelpFilter:     "Remember that you can always filter them, click the button to get some hints",
		SelectForInfo:  "Select the concept of type %s you are interested in.",
		AmbiguityFound: "I understand you want to search for something, maybe you can start from one of this questions.",
		EmptyHistory:   "I am sorry, but your conversation history is empty!",
		HistoryReset:   "The history has been reset!",
		NoGoBack:       "You can not go back any further than that",
		BadPosition:    "Error! That position is not in your history.",
		RememberReset:  "If you want you can reset the history of the conversation by clicking the reset button:",
	}
}

// LoadMessages overlays the optional extras document on the defaults.
func LoadMessages(ctx context.Context, read schema.ReadFunc) (Messages, error) {
	messages := DefaultMessages()
	if err := schema.ReadOptional(ctx, read, schema.DocumentExtras, &messages); err != nil {
		return Messages{}, err
	}
	return messages, nil
}

func (m Messages) resultsFound(n int) string {
	if n == 1 {
		return m.OneResultFound
	}
	return fmt.Sprintf(m.ResultsFound, n)
}

func (m Messages) selectForInfo(concept string) string {
	return fmt.Sprintf(m.SelectForInfo, concept)
}

func conceptNames(names []string) string {
	return "I understand phrases related to " + strings.Join(names, ", ") + ".\n" +
		"Ask me more information about such concepts."
}

// rowListing renders a single row through the display view of its table.
func rowListing(concept schema.Concept, view schema.View, row map[string]any) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(concept.Name))
	b.WriteString("\n")
	for _, column := range view.Columns {
		value, ok := row[column.Attribute]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n\n- %s: %s", column.Display, schema.StripMarkup(schema.FormatValue(value)))
	}
	return b.String()
}

func filterHints(concept schema.Concept) string {
	if len(concept.Attributes) == 0 {
		return fmt.Sprintf("- no attribute has been defined for %s yet -", concept.Name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "How to filter concepts of type %s? Here some hints:\n", concept.Name)
	for i, attribute := range concept.Attributes {
		b.WriteString("- Filter those ")
		if attribute.Keyword != "" {
			b.WriteString(attribute.Keyword + " ")
		}
		if attribute.Type == schema.TypeNumber {
			if i%2 == 0 {
				b.WriteString("more than ")
			} else {
				b.WriteString("less than ")
			}
		}
		b.WriteString("...\n")
	}
	return b.String()
}

// exampleFragment is "<keyword> [more than / less than] <sample>".
func exampleFragment(attribute schema.Attribute, sample string) string {
	parts := make([]string, 0, 3)
	if attribute.Keyword != "" {
		parts = append(parts, attribute.Keyword)
	}
	if attribute.Type == schema.TypeNumber {
		parts = append(parts, "more than / less than")
	}
	parts = append(parts, sample)
	return strings.Join(parts, " ")
}

// findExamples lists one example search per attribute, followed by a
// combination of two keyword attributes when the concept has them. samples
// is parallel to concept.Attributes.
func findExamples(concept schema.Concept, samples []string) string {
	if len(concept.Attributes) == 0 {
		return fmt.Sprintf("- no attribute has been defined for %s yet -", concept.Name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "I am able to find %s's properties in many different ways. \n", concept.Name)
	b.WriteString("Here some examples, I hope they can fit your purposes!\n")
	keyworded := make([]string, 0)
	for i, attribute := range concept.Attributes {
		fragment := exampleFragment(attribute, samples[i])
		fmt.Fprintf(&b, "- Find %s %s \n", concept.Name, fragment)
		if attribute.Keyword != "" {
			keyworded = append(keyworded, fragment)
		}
	}
	if len(keyworded) >= 2 {
		b.WriteString("\nYou can also do properties combinations like:\n")
		fmt.Fprintf(&b, "- Find %s %s %s\n", concept.Name, keyworded[0], keyworded[1])
		fmt.Fprintf(&b, "- Find %s %s or %s\n", concept.Name, keyworded[0], keyworded[len(keyworded)-1])
	}
	return strings.NewReplacer("[", "(", "]", ")").Replace(b.String())
}

// exampleLines renders up to limit "- Find ..." lines for one attribute.
func exampleLines(concept schema.Concept, attribute schema.Attribute, values []string, limit int) string {
	var b strings.Builder
	for i, value := range values {
		if i == limit {
			break
		}
		fmt.Fprintf(&b, "- Find %s ", concept.Name)
		if attribute.Keyword != "" {
			b.WriteString(attribute.Keyword + " ")
		}
		b.WriteString(value + "\n")
	}
	return b.String()
}

func resumed(steps int) string {
	suffix := ""
	if steps > 1 {
		suffix = "s"
	}
	return fmt.Sprintf("Ok, now resuming your history of %d position%s... DONE!", steps, suffix)
}
