package nlu

import (
	"context"
	"strings"
)

type Parser struct {
	classifier Classifier
	threshold  float64
}

func NewParser(classifier Classifier, threshold float64) *Parser {
	if threshold <= 0 {
		threshold = DefaultIntentThreshold
	}
	return &Parser{classifier: classifier, threshold: threshold}
}

// Parse turns a user message into a Turn. Button payloads bypass the
// classifier; a payload carrying a free-text phrase is classified as text.
// Classifications under the intent threshold become fallback.
func (p *Parser) Parse(ctx context.Context, text string) (Turn, error) {
	text = strings.TrimSpace(text)
	if turn, ok := ParsePayload(text); ok {
		if phrase := turn.Value(RolePhrase); phrase != "" && !IsPayload(phrase) {
			return p.classify(ctx, phrase)
		}
		return turn, nil
	}
	return p.classify(ctx, text)
}

func (p *Parser) classify(ctx context.Context, text string) (Turn, error) {
	if p.classifier == nil || text == "" {
		return Turn{Text: text, Intent: IntentFallback, Entities: []Entity{}}, nil
	}
	turn, err := p.classifier.Classify(ctx, text)
	if err != nil {
		return Turn{}, err
	}
	if turn.Confidence < p.threshold {
		turn.Intent = IntentFallback
	}
	return turn, nil
}
