package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chatidea/chatidea/internal/auth"
	"github.com/chatidea/chatidea/internal/chat"
	"github.com/chatidea/chatidea/internal/config"
	"github.com/chatidea/chatidea/internal/conversation"
	"github.com/chatidea/chatidea/internal/schema"
	"github.com/chatidea/chatidea/internal/schema/schematest"
)

const testSession = "0b3f6c8e-7a41-4c55-9d7e-2f1a9c3b5e10"

type fakeChat struct {
	registry *schema.Registry
	sessions []string
	texts    []string
	reset    []string
	history  []conversation.Element
	err      error
}

func (f *fakeChat) Handle(_ context.Context, sessionID, text string) (chat.Response, error) {
	f.sessions = append(f.sessions, sessionID)
	f.texts = append(f.texts, text)
	if f.err != nil {
		return chat.Response{}, f.err
	}
	return chat.Response{
		Messages: []string{"Hi, I am the assistant."},
		Buttons:  []chat.Button{{Title: "Tell me more about teacher", Payload: `/more_info_find{"el":"teacher"}`}},
	}, nil
}

func (f *fakeChat) History(_ context.Context, sessionID string) ([]conversation.Element, error) {
	f.sessions = append(f.sessions, sessionID)
	return f.history, f.err
}

func (f *fakeChat) Reset(_ context.Context, sessionID string) error {
	f.reset = append(f.reset, sessionID)
	return f.err
}

func (f *fakeChat) Registry() *schema.Registry {
	return f.registry
}

func loadConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("chatidea-api", mapLookup(env))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v (body=%s)", err, rr.Body.String())
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{})
	rr := do(t, h, http.MethodGet, "/v1/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decode(t, rr); body["service"] != "chatidea-api" {
		t.Fatalf("service = %v", body["service"])
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{
		Readiness: []Dependency{
			{Name: "storage", Check: func(context.Context) error { return nil }},
			{Name: "sessions", Check: func(context.Context) error { return errors.New("dependency down") }},
		},
	})
	rr := do(t, h, http.MethodGet, "/v1/ready", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decode(t, rr)
	if body["error_code"] != "NOT_READY" || body["retryable"] != true {
		t.Fatalf("body = %#v", body)
	}
	details, _ := body["context"].(map[string]any)
	statuses, _ := details["dependencies"].(map[string]any)
	if statuses["storage"] != "ok" || statuses["sessions"] != "dependency down" {
		t.Fatalf("dependencies = %#v", details)
	}
}

func TestReadyEndpointReportsEveryDependency(t *testing.T) {
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{
		Readiness: []Dependency{
			{Name: "storage", Check: func(context.Context) error { return nil }},
			{Name: "unused"},
			{Name: "registry", Check: CheckRegistry(&fakeChat{registry: schematest.Registry(t)})},
		},
	})
	rr := do(t, h, http.MethodGet, "/v1/ready", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	statuses, _ := decode(t, rr)["dependencies"].(map[string]any)
	if len(statuses) != 2 || statuses["registry"] != "ok" {
		t.Fatalf("dependencies = %#v", statuses)
	}
}

func TestReadyEndpointAppliesDependencyTimeout(t *testing.T) {
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{
		DependencyTimeout: 20 * time.Millisecond,
		Readiness: []Dependency{{Name: "slow", Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}}},
	})
	if rr := do(t, h, http.MethodGet, "/v1/ready", "", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCreateSessionReturnsUUID(t *testing.T) {
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: &fakeChat{}})
	rr := do(t, h, http.MethodPost, "/v1/sessions", "", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d", rr.Code)
	}
	id, _ := decode(t, rr)["session_id"].(string)
	if len(id) != 36 {
		t.Fatalf("session_id = %q", id)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	service := &fakeChat{}
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: service})

	rr := do(t, h, http.MethodPost, "/v1/sessions/"+testSession+"/messages", `{"text":"/start"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	var response chat.Response
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(response.Buttons) != 1 || response.Buttons[0].Payload != `/more_info_find{"el":"teacher"}` {
		t.Fatalf("buttons = %#v", response.Buttons)
	}
	if len(service.texts) != 1 || service.texts[0] != "/start" || service.sessions[0] != testSession {
		t.Fatalf("Handle() calls = %v %v", service.sessions, service.texts)
	}
}

func TestMessageValidation(t *testing.T) {
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: &fakeChat{}})
	tests := []struct {
		path string
		body string
		code string
	}{
		{path: "/v1/sessions/not-a-uuid/messages", body: `{"text":"hi"}`, code: "INVALID_SESSION_ID"},
		{path: "/v1/sessions/" + testSession + "/messages", body: `{"text":`, code: "INVALID_JSON"},
		{path: "/v1/sessions/" + testSession + "/messages", body: `{"text":"hi","extra":1}`, code: "INVALID_JSON"},
		{path: "/v1/sessions/" + testSession + "/messages", body: `{"text":"  "}`, code: "TEXT_REQUIRED"},
	}
	for _, tt := range tests {
		rr := do(t, h, http.MethodPost, tt.path, tt.body, nil)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: status = %d", tt.path, tt.body, rr.Code)
		}
		if body := decode(t, rr); body["error_code"] != tt.code {
			t.Fatalf("%s %s: error_code = %v, want %s", tt.path, tt.body, body["error_code"], tt.code)
		}
	}
}

func TestBusySessionIsRetryableConflict(t *testing.T) {
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: &fakeChat{err: conversation.ErrSessionBusy}})
	rr := do(t, h, http.MethodPost, "/v1/sessions/"+testSession+"/messages", `{"text":"hi"}`, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decode(t, rr); body["error_code"] != "SESSION_BUSY" || body["retryable"] != true {
		t.Fatalf("body = %#v", body)
	}
}

func TestHistoryAndDelete(t *testing.T) {
	service := &fakeChat{history: []conversation.Element{
		{Kind: conversation.KindStart},
		{Kind: conversation.KindRows, Concept: "teacher", Action: "...found with attribute(s) \"Turing\"", ActionType: conversation.ActionFind, RealLength: 12, Show: conversation.Window{From: 5, To: 10}},
	}}
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: service})

	rr := do(t, h, http.MethodGet, "/v1/sessions/"+testSession+"/history", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var history historyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &history); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(history.Entries) != 2 {
		t.Fatalf("entries = %#v", history.Entries)
	}
	last := history.Entries[1]
	if last.Position != 1 || last.Concept != "teacher" || last.RowCount != 12 || last.Show.From != 5 {
		t.Fatalf("entry = %+v", last)
	}

	rr = do(t, h, http.MethodDelete, "/v1/sessions/"+testSession, "", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if len(service.reset) != 1 || service.reset[0] != testSession {
		t.Fatalf("Reset() calls = %v", service.reset)
	}
}

func TestConceptsListsPrimaryConcepts(t *testing.T) {
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Chat: &fakeChat{registry: schematest.Registry(t)}})
	rr := do(t, h, http.MethodGet, "/v1/concepts", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Concepts []conceptResponse `json:"concepts"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	var teacher *conceptResponse
	for i := range body.Concepts {
		if body.Concepts[i].Name == "department" {
			t.Fatal("secondary concept department should not be listed")
		}
		if body.Concepts[i].Name == "teacher" {
			teacher = &body.Concepts[i]
		}
	}
	if teacher == nil {
		t.Fatalf("concepts = %#v", body.Concepts)
	}
	if len(teacher.Relations) != 2 || len(teacher.Categories) != 1 || teacher.Categories[0] != "department" {
		t.Fatalf("teacher = %+v", teacher)
	}
}

func TestProtectedRoutesRequireAuthAndScopeSessions(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"CHATIDEA_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:web:chat_user,k2:ops:operator")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	service := &fakeChat{}
	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Chat:           service,
	})

	path := "/v1/sessions/" + testSession + "/messages"
	if rr := do(t, h, http.MethodPost, path, `{"text":"hi"}`, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, path, `{"text":"hi"}`, map[string]string{"X-API-Key": "k2"}); rr.Code != http.StatusForbidden {
		t.Fatalf("wrong role status = %d", rr.Code)
	}
	rr := do(t, h, http.MethodPost, path, `{"text":"hi"}`, map[string]string{"X-API-Key": "k1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("auth status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if len(service.sessions) != 1 || service.sessions[0] != "web/"+testSession {
		t.Fatalf("session keys = %v", service.sessions)
	}
	if rr := do(t, h, http.MethodGet, "/v1/health", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("health should stay public, status = %d", rr.Code)
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"CHATIDEA_AUTH_REQUIRED": "true"})
	h := NewHandler(cfg, Dependencies{Chat: &fakeChat{}})
	rr := do(t, h, http.MethodPost, "/v1/sessions", "", nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReadinessChecks(t *testing.T) {
	if err := CheckRegistry(&fakeChat{})(context.Background()); err == nil {
		t.Fatal("CheckRegistry() expected error for a missing registry")
	}
	if err := CheckRegistry(&fakeChat{registry: schematest.Registry(t)})(context.Background()); err != nil {
		t.Fatalf("CheckRegistry() error = %v", err)
	}

	cfg := loadConfig(t, map[string]string{"CHATIDEA_STORAGE_DRIVER": "duckdb", "CHATIDEA_OBJECTSTORE_BUCKET": ""})
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err == nil {
		t.Fatal("CheckObjectStoreConfig() expected error for an empty bucket")
	}
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
