package nlu

import (
	"regexp"
	"strings"
)

type Pair struct {
	Key   string
	Value string
}

func P(key, value string) Pair {
	return Pair{Key: key, Value: value}
}

var payloadPairPattern = regexp.MustCompile(`"(.+?)":"(.+?)"`)

// EncodePayload builds `/<intent>{"k":"v";"k2":"v2"}`.
func EncodePayload(intent string, pairs ...Pair) string {
	var b strings.Builder
	b.WriteString("/")
	b.WriteString(intent)
	if len(pairs) == 0 {
		return b.String()
	}
	b.WriteString("{")
	for i, pair := range pairs {
		if i > 0 {
			b.WriteString(";")
		}
		b.WriteString(`"` + pair.Key + `":"` + pair.Value + `"`)
	}
	b.WriteString("}")
	return b.String()
}

func IsPayload(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// ParsePayload decodes a button payload into a turn with full confidence.
func ParsePayload(text string) (Turn, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return Turn{}, false
	}
	body := strings.TrimPrefix(text, "/")
	intent, rest, _ := strings.Cut(body, "{")
	turn := Turn{
		Text:       text,
		Intent:     strings.TrimSpace(intent),
		Confidence: payloadIntentConfidence,
		Entities:   []Entity{},
	}
	if turn.Intent == "" {
		return Turn{}, false
	}
	rest = strings.TrimSuffix(strings.TrimSpace(rest), "}")
	if rest == "" {
		return turn, true
	}
	for i, piece := range strings.Split(rest, ";") {
		match := payloadPairPattern.FindStringSubmatch(piece)
		if match == nil {
			continue
		}
		turn.Entities = append(turn.Entities, NewEntity(match[1], match[2], i+1, payloadEntityConfidence))
	}
	return turn, true
}
