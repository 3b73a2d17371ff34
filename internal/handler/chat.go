package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/northlane/livechat-server/internal/errors"
	"github.com/northlane/livechat-server/internal/httputil"
	"github.com/northlane/livechat-server/internal/metrics"
	"github.com/northlane/livechat-server/internal/model"
	"github.com/northlane/livechat-server/internal/service"
	"github.com/northlane/livechat-server/internal/util"
)

type ChatReader interface {
	ListSessions(ctx context.Context, filter model.SessionFilter) ([]model.ChatSession, error)
	ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]model.ChatMessage, error)
	Stats(ctx context.Context) (*service.ChatStats, error)
}

// SessionCloser closes a session and notifies live connections.
type SessionCloser interface {
	CloseSession(ctx context.Context, sessionID, reason string) (*model.ChatSession, bool, error)
}

type ConnectionCounter interface {
	Count() int
}

// ChatHandler serves the admin dashboard's REST view of chat sessions. It is
// the recovery path when no admin socket is attached.
type ChatHandler struct {
	reader      ChatReader
	closer      SessionCloser
	connections ConnectionCounter
}

func NewChatHandler(reader ChatReader, closer SessionCloser, connections ConnectionCounter) *ChatHandler {
	return &ChatHandler{
		reader:      reader,
		closer:      closer,
		connections: connections,
	}
}

func (h *ChatHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/sessions", h.ListSessions)
	r.Get("/sessions/{id}/messages", h.ListMessages)
	r.Patch("/sessions/{id}/close", h.CloseSession)
	r.Get("/stats", h.Stats)

	return r
}

func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, MaxSessionLimit)

	status := model.SessionStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		httputil.WriteError(w, apperrors.InvalidInput("status", "must be open or closed"))
		return
	}

	sessions, err := h.reader.ListSessions(r.Context(), model.SessionFilter{
		Status: status,
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to list chat sessions")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  sessions,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !util.IsValidUUID(id) {
		httputil.WriteError(w, apperrors.NotFound("Chat session"))
		return
	}

	p := ParsePagination(r, MaxMessageLimit)
	messages, err := h.reader.ListMessages(r.Context(), id, p.Limit, p.Offset)
	if errors.Is(err, service.ErrSessionNotFound) {
		httputil.WriteError(w, apperrors.NotFound("Chat session"))
		return
	}
	if err != nil {
		log.Error().Err(err).Str("sessionId", id).Msg("failed to list chat messages")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  messages,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}

// CloseSession is idempotent: closing a closed session returns it unchanged.
func (h *ChatHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !util.IsValidUUID(id) {
		httputil.WriteError(w, apperrors.NotFound("Chat session"))
		return
	}

	session, transitioned, err := h.closer.CloseSession(r.Context(), id, metrics.CloseByAPI)
	if errors.Is(err, service.ErrSessionNotFound) {
		httputil.WriteError(w, apperrors.NotFound("Chat session"))
		return
	}
	if err != nil {
		log.Error().Err(err).Str("sessionId", id).Msg("failed to close chat session")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session": session,
		"changed": transitioned,
	})
}

func (h *ChatHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reader.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get chat stats")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	stats.LiveConnections = h.connections.Count()

	writeJSON(w, http.StatusOK, stats)
}
