package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatidea/chatidea/internal/chat"
	"github.com/chatidea/chatidea/internal/config"
	"github.com/chatidea/chatidea/internal/conversation"
	"github.com/chatidea/chatidea/internal/observability"
	"github.com/chatidea/chatidea/internal/schema"
)

// ChatService is the conversational core as seen by the HTTP layer.
type ChatService interface {
	Handle(ctx context.Context, sessionID, text string) (chat.Response, error)
	History(ctx context.Context, sessionID string) ([]conversation.Element, error)
	Reset(ctx context.Context, sessionID string) error
	Registry() *schema.Registry
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         []Dependency
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Chat              ChatService
	NewSessionID      func() string
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		handleReady(deps, w, r)
	})
	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	routes := map[string]http.HandlerFunc{
		"POST /v1/sessions": func(w http.ResponseWriter, r *http.Request) {
			handleCreateSession(deps, w, r)
		},
		"POST /v1/sessions/{session}/messages": func(w http.ResponseWriter, r *http.Request) {
			handleMessage(deps, w, r)
		},
		"GET /v1/sessions/{session}/history": func(w http.ResponseWriter, r *http.Request) {
			handleHistory(deps, w, r)
		},
		"DELETE /v1/sessions/{session}": func(w http.ResponseWriter, r *http.Request) {
			handleDeleteSession(deps, w, r)
		},
		"GET /v1/concepts": func(w http.ResponseWriter, r *http.Request) {
			handleListConcepts(deps, w, r)
		},
	}
	for pattern, route := range routes {
		protected.HandleFunc(pattern, route)
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for pattern := range routes {
		mux.Handle(pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	middlewares = append(middlewares, observability.RecoverMiddleware(deps.Logger))
	return chain(mux, middlewares...)
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
