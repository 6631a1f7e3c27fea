package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Classifier interface {
	Classify(ctx context.Context, text string) (Turn, error)
}

type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// HTTPClassifier talks to a Rasa-compatible `/model/parse` endpoint.
type HTTPClassifier struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClassifier(cfg HTTPConfig) (*HTTPClassifier, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClassifier{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:   strings.TrimSpace(cfg.Token),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *HTTPClassifier) Classify(ctx context.Context, text string) (Turn, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return Turn{}, fmt.Errorf("marshal parse payload: %w", err)
	}
	endpoint := c.baseURL + "/model/parse"
	if c.token != "" {
		endpoint += "?token=" + url.QueryEscape(c.token)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Turn{}, fmt.Errorf("build parse request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Turn{}, fmt.Errorf("request classifier: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Turn{}, fmt.Errorf("read classifier response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Turn{}, fmt.Errorf("classifier failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Text   string `json:"text"`
		Intent *struct {
			Name       string  `json:"name"`
			Confidence float64 `json:"confidence"`
		} `json:"intent"`
		Entities []struct {
			Entity           string          `json:"entity"`
			Value            json.RawMessage `json:"value"`
			Start            int             `json:"start"`
			Confidence       float64         `json:"confidence"`
			ConfidenceEntity float64         `json:"confidence_entity"`
		} `json:"entities"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Turn{}, fmt.Errorf("decode classifier response: %w", err)
	}

	turn := Turn{Text: text, Intent: IntentFallback, Entities: make([]Entity, 0, len(parsed.Entities))}
	if parsed.Intent != nil && strings.TrimSpace(parsed.Intent.Name) != "" {
		turn.Intent = strings.TrimSpace(parsed.Intent.Name)
		turn.Confidence = parsed.Intent.Confidence
	}
	for _, raw := range parsed.Entities {
		confidence := raw.ConfidenceEntity
		if confidence == 0 {
			confidence = raw.Confidence
		}
		turn.Entities = append(turn.Entities, NewEntity(raw.Entity, rawValue(raw.Value), raw.Start, confidence))
	}
	return turn, nil
}

// rawValue accepts string and numeric entity values.
func rawValue(value json.RawMessage) string {
	var text string
	if err := json.Unmarshal(value, &text); err == nil {
		return text
	}
	return strings.TrimSpace(string(value))
}
