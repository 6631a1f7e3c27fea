package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chatidea/chatidea/internal/config"
)

func TestTraceMiddlewarePreservesIncomingTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); got != "trace-1" {
			t.Fatalf("TraceIDFromContext() = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(traceHeader, "trace-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(traceHeader); got != "trace-1" {
		t.Fatalf("trace header = %q", got)
	}
}

func TestTraceMiddlewareGeneratesTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TraceIDFromContext(r.Context()) == "" {
			t.Fatal("expected generated trace id")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Header().Get(traceHeader) == "" {
		t.Fatal("expected X-Trace-ID header")
	}
}

func TestTraceMiddlewareReplacesMalformedTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(traceHeader, "bad id\nwith newline")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(traceHeader); got == "" || strings.Contains(got, " ") {
		t.Fatalf("trace header = %q", got)
	}
}

func TestTraceIDContextHelpers(t *testing.T) {
	ctx := ContextWithTraceID(context.Background(), "abc123")
	if got := TraceIDFromContext(ctx); got != "abc123" {
		t.Fatalf("TraceIDFromContext() = %q", got)
	}
}

func TestLoggingMiddlewareDoesNotPanic(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
}

func TestLoggerAddsContextIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{Profile: config.ProfileTest, Service: config.ServiceConfig{Name: "chatidea-api"}}
	cfg.Observability.LogJSON = true
	logger := NewLogger(cfg, &buf)

	ctx := ContextWithSession(ContextWithTraceID(context.Background(), "t-1"), "web/s-1")
	logger.With(slog.String("component", "chat")).InfoContext(ctx, "chat turn")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json.Unmarshal() error = %v (%s)", err, buf.String())
	}
	if entry["trace_id"] != "t-1" || entry["session_id"] != "web/s-1" {
		t.Fatalf("missing context attributes: %v", entry)
	}
	if entry["service"] != "chatidea-api" || entry["component"] != "chat" {
		t.Fatalf("missing logger attributes: %v", entry)
	}
}

func TestRecoverMiddlewareWritesErrorEnvelope(t *testing.T) {
	h := TraceMiddleware(RecoverMiddleware(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/sessions/abc/messages", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if body["error_code"] != "INTERNAL" || body["trace_id"] != rr.Header().Get(traceHeader) {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRecoverMiddlewareKeepsStartedResponse(t *testing.T) {
	h := RecoverMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rr.Code != http.StatusAccepted || rr.Body.Len() != 0 {
		t.Fatalf("status = %d body = %q", rr.Code, rr.Body.String())
	}
}

func TestRouteLabelCollapsesSessionIDs(t *testing.T) {
	tests := map[string]string{
		"/v1/sessions/7f9c/messages": "/v1/sessions/{session}/messages",
		"/v1/sessions/7f9c":          "/v1/sessions/{session}",
		"/v1/sessions":               "/v1/sessions",
		"/v1/health":                 "/v1/health",
	}
	for path, want := range tests {
		if got := RouteLabel(path); got != want {
			t.Fatalf("RouteLabel(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestDomainMetricHelpersDoNotPanic(t *testing.T) {
	ObserveTurn("find_el_by_attr", "ok", 0)
	ObserveQuery("find", 3, 0)
	IncrementQueryFailure(true)
	ObserveAmbiguity(2)
	SetActiveSessions(-1)
}
