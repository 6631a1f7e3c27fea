package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/chatidea/chatidea/internal/auth"
	"github.com/chatidea/chatidea/internal/conversation"
)

const (
	roleChatUser    = "chat_user"
	maxMessageBytes = 16 << 10
)

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type historyEntry struct {
	Position   int                     `json:"position"`
	Kind       conversation.Kind       `json:"kind"`
	Concept    string                  `json:"concept,omitempty"`
	Action     string                  `json:"action,omitempty"`
	ActionType conversation.ActionType `json:"action_type,omitempty"`
	RowCount   int                     `json:"row_count"`
	Show       conversation.Window     `json:"show"`
}

type historyResponse struct {
	SessionID string         `json:"session_id"`
	Entries   []historyEntry `json:"entries"`
}

func handleCreateSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !chatConfigured(deps, w, r) {
		return
	}
	if err := auth.RequireRole(r.Context(), roleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	newID := deps.NewSessionID
	if newID == nil {
		newID = uuid.NewString
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: newID()})
}

func handleMessage(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sessionKey, ok := sessionFromRequest(deps, w, r)
	if !ok {
		return
	}

	var request messageRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid message request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Text) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TEXT_REQUIRED", "text is required", false, nil)
		return
	}

	response, err := deps.Chat.Handle(r.Context(), sessionKey, request.Text)
	if err != nil {
		writeTurnError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sessionKey, ok := sessionFromRequest(deps, w, r)
	if !ok {
		return
	}
	elements, err := deps.Chat.History(r.Context(), sessionKey)
	if err != nil {
		writeTurnError(r.Context(), w, err)
		return
	}
	entries := make([]historyEntry, 0, len(elements))
	for i, element := range elements {
		entries = append(entries, historyEntry{
			Position:   i,
			Kind:       element.Kind,
			Concept:    element.Concept,
			Action:     element.Action,
			ActionType: element.ActionType,
			RowCount:   element.RealLength,
			Show:       element.Show,
		})
	}
	writeJSON(w, http.StatusOK, historyResponse{SessionID: r.PathValue("session"), Entries: entries})
}

func handleDeleteSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sessionKey, ok := sessionFromRequest(deps, w, r)
	if !ok {
		return
	}
	if err := deps.Chat.Reset(r.Context(), sessionKey); err != nil {
		writeTurnError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sessionFromRequest validates the path session id and scopes it to the
// authenticated client, so two clients can never share a stack.
func sessionFromRequest(deps Dependencies, w http.ResponseWriter, r *http.Request) (string, bool) {
	if !chatConfigured(deps, w, r) {
		return "", false
	}
	if err := auth.RequireRole(r.Context(), roleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return "", false
	}
	raw := strings.TrimSpace(r.PathValue("session"))
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_SESSION_ID", "session id must be a UUID", false, map[string]any{"session": raw})
		return "", false
	}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.Client != "" {
		return identity.Client + "/" + id.String(), true
	}
	return id.String(), true
}

func chatConfigured(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat service is not configured", false, nil)
		return false
	}
	return true
}

func writeTurnError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrSessionBusy):
		writeError(ctx, w, http.StatusConflict, "SESSION_BUSY", "another message of this session is being processed", true, nil)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusGatewayTimeout, "TURN_TIMEOUT", "the message could not be processed in time", true, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "TURN_FAILED", "the message could not be processed", true, map[string]any{"details": err.Error()})
	}
}

