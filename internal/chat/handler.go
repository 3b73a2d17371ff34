package chat

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/northlane/livechat-server/internal/audit"
	"github.com/northlane/livechat-server/internal/config"
	apperrors "github.com/northlane/livechat-server/internal/errors"
	"github.com/northlane/livechat-server/internal/metrics"
	"github.com/northlane/livechat-server/internal/model"
	"github.com/northlane/livechat-server/internal/service"
	"github.com/northlane/livechat-server/internal/util"
)

// Store is the session store as seen by the protocol handler.
type Store interface {
	StartSession(ctx context.Context, params service.StartSessionParams) (*service.StartSessionResult, error)
	AppendMessage(ctx context.Context, params service.AppendMessageParams) (*model.ChatMessage, *model.ChatSession, error)
	CloseSession(ctx context.Context, id string) (*model.ChatSession, bool, error)
	CloseIdleSession(ctx context.Context, id string, before time.Time) (*model.ChatSession, bool, error)
}

// Handler turns decoded frames into store operations and fan-out. Events
// that reference a missing or closed session, arrive on the wrong role, or
// fail validation are dropped without a reply. Store failures reply with an
// error frame to the initiating connection only.
type Handler struct {
	store      Store
	registry   *Registry
	dispatcher *Dispatcher
	decoder    *Decoder
	locks      *sessionLocks
}

func NewHandler(store Store, registry *Registry, dispatcher *Dispatcher) *Handler {
	return &Handler{
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		decoder:    NewDecoder(),
		locks:      newSessionLocks(config.SessionLockStripes),
	}
}

func (h *Handler) HandleFrame(ctx context.Context, conn *Conn, data []byte) {
	ev, err := h.decoder.Decode(data)
	if err != nil {
		reason := metrics.DropInvalid
		switch {
		case errors.Is(err, ErrMalformedFrame):
			reason = metrics.DropMalformed
		case errors.Is(err, ErrUnknownType):
			reason = metrics.DropUnknownType
		}
		h.drop(conn, reason, err)
		return
	}

	h.Handle(ctx, conn, ev)
}

func (h *Handler) Handle(ctx context.Context, conn *Conn, ev InboundEvent) {
	metrics.FramesReceived.WithLabelValues(ev.inboundType()).Inc()

	switch e := ev.(type) {
	case *VisitorStart:
		h.visitorStart(ctx, conn, e)
	case *VisitorMessage:
		h.visitorMessage(ctx, conn, e)
	case *AdminJoin:
		h.adminJoin(conn)
	case *AdminMessage:
		h.adminMessage(ctx, conn, e)
	case *CloseSession:
		h.closeSession(ctx, conn, e)
	case *Ping:
		h.dispatcher.ToConn(conn, Pong{})
	default:
		h.drop(conn, metrics.DropUnknownType, nil)
	}
}

func (h *Handler) Disconnect(conn *Conn) {
	h.registry.Unregister(conn)
	log.Debug().
		Str("connId", conn.ID).
		Str("role", string(conn.Role)).
		Str("sessionId", conn.SessionID()).
		Msg("chat connection closed")
}

func (h *Handler) visitorStart(ctx context.Context, conn *Conn, e *VisitorStart) {
	if conn.Role != RoleVisitor {
		h.drop(conn, metrics.DropWrongRole, nil)
		return
	}

	result, err := h.store.StartSession(ctx, service.StartSessionParams{
		VisitorID:    conn.VisitorID,
		VisitorName:  e.VisitorName,
		VisitorEmail: e.VisitorEmail,
	})
	if err != nil {
		h.storeFailure(conn, "", err)
		return
	}

	conn.bind(result.Session.ID)
	if evicted := h.registry.Register(conn, Identity{Role: RoleVisitor, SessionID: result.Session.ID}); evicted != nil {
		log.Debug().
			Str("sessionId", result.Session.ID).
			Str("connId", conn.ID).
			Str("evictedConnId", evicted.ID).
			Msg("visitor connection replaced")
	}

	h.dispatcher.ToConn(conn, SessionStarted{Session: result.Session, Messages: result.Messages})

	log.Info().
		Str("sessionId", result.Session.ID).
		Str("visitor", util.Pseudonym(conn.VisitorID)).
		Bool("resumed", result.Resumed).
		Int("history", len(result.Messages)).
		Msg("chat session started")
}

func (h *Handler) visitorMessage(ctx context.Context, conn *Conn, e *VisitorMessage) {
	if conn.Role != RoleVisitor {
		h.drop(conn, metrics.DropWrongRole, nil)
		return
	}

	sessionID := conn.SessionID()
	if sessionID == "" {
		h.drop(conn, metrics.DropNoSession, nil)
		return
	}

	unlock := h.locks.lock(sessionID)
	defer unlock()

	msg, session, err := h.store.AppendMessage(ctx, service.AppendMessageParams{
		SessionID:  sessionID,
		SenderType: model.SenderVisitor,
		Message:    e.Message,
	})
	if err != nil {
		h.appendFailed(conn, e.TempID, err)
		return
	}
	metrics.MessagesPersisted.WithLabelValues(string(model.SenderVisitor)).Inc()

	h.dispatcher.ToConn(conn, MessageSent{Message: msg, Session: session, TempID: e.TempID})
	h.dispatcher.Publish(ctx, TargetAdmins, sessionID, "", NewMessage{Message: msg, Session: session})
}

func (h *Handler) adminJoin(conn *Conn) {
	if conn.Role != RoleAdmin {
		h.drop(conn, metrics.DropWrongRole, nil)
		return
	}
	h.registry.Register(conn, Identity{Role: RoleAdmin})
	log.Debug().Str("connId", conn.ID).Int("admins", h.registry.AdminCount()).Msg("admin joined")
}

func (h *Handler) adminMessage(ctx context.Context, conn *Conn, e *AdminMessage) {
	if conn.Role != RoleAdmin {
		h.drop(conn, metrics.DropWrongRole, nil)
		return
	}
	if !h.registry.IsAdmin(conn) {
		h.registry.Register(conn, Identity{Role: RoleAdmin})
	}

	unlock := h.locks.lock(e.SessionID)
	defer unlock()

	name := conn.AdminName
	msg, session, err := h.store.AppendMessage(ctx, service.AppendMessageParams{
		SessionID:  e.SessionID,
		SenderType: model.SenderAdmin,
		SenderName: &name,
		Message:    e.Message,
	})
	if err != nil {
		h.appendFailed(conn, e.TempID, err)
		return
	}
	metrics.MessagesPersisted.WithLabelValues(string(model.SenderAdmin)).Inc()

	h.dispatcher.ToConn(conn, MessageSent{Message: msg, Session: session, TempID: e.TempID})
	h.dispatcher.Publish(ctx, TargetSessionAndAdmins, e.SessionID, conn.ID, NewMessage{Message: msg, Session: session})
}

func (h *Handler) closeSession(ctx context.Context, conn *Conn, e *CloseSession) {
	if conn.Role != RoleAdmin {
		h.drop(conn, metrics.DropWrongRole, nil)
		return
	}

	_, _, err := h.CloseSession(ctx, e.SessionID, metrics.CloseByAdmin)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrSessionNotFound):
		h.drop(conn, metrics.DropStaleSession, err)
	default:
		h.storeFailure(conn, "", err)
	}
}

// CloseSession closes a session and broadcasts session_closed when it
// transitions. Closing an already closed session changes nothing. It is
// shared by the close_session frame, the REST endpoint and the idle sweep so
// all of them serialize with in-flight messages for the session.
func (h *Handler) CloseSession(ctx context.Context, sessionID, reason string) (*model.ChatSession, bool, error) {
	unlock := h.locks.lock(sessionID)
	defer unlock()

	session, transitioned, err := h.store.CloseSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if !transitioned {
		return session, false, nil
	}
	h.announceClosed(ctx, session, reason)
	return session, true, nil
}

// CloseIdleSession closes the session only if it has had no message since
// before, so a message that lands after the sweep picked it keeps it open.
func (h *Handler) CloseIdleSession(ctx context.Context, sessionID string, before time.Time) (*model.ChatSession, bool, error) {
	unlock := h.locks.lock(sessionID)
	defer unlock()

	session, transitioned, err := h.store.CloseIdleSession(ctx, sessionID, before)
	if err != nil || !transitioned {
		return session, false, err
	}
	h.announceClosed(ctx, session, metrics.CloseByIdle)
	return session, true, nil
}

func (h *Handler) announceClosed(ctx context.Context, session *model.ChatSession, reason string) {
	metrics.RecordSessionClosed(reason)
	h.dispatcher.SessionClosed(ctx, session)

	audit.Log(ctx, audit.Event{
		Type:      audit.EventChatSessionClose,
		SessionID: session.ID,
		Reason:    reason,
	})
}

func (h *Handler) appendFailed(conn *Conn, tempID string, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrSessionClosed):
		h.drop(conn, metrics.DropStaleSession, err)
	case errors.Is(err, service.ErrInvalidMessage):
		h.drop(conn, metrics.DropInvalid, err)
	default:
		h.storeFailure(conn, tempID, err)
	}
}

func (h *Handler) drop(conn *Conn, reason string, err error) {
	metrics.RecordDrop(reason)
	log.Debug().
		Err(err).
		Str("connId", conn.ID).
		Str("role", string(conn.Role)).
		Str("reason", reason).
		Msg("frame dropped")
}

func (h *Handler) storeFailure(conn *Conn, tempID string, err error) {
	metrics.StoreFailures.Inc()
	log.Error().
		Err(err).
		Str("connId", conn.ID).
		Str("sessionId", conn.SessionID()).
		Msg("session store failure")

	appErr := apperrors.StoreFailure(err)
	h.dispatcher.ToConn(conn, ErrorFrame{Code: string(appErr.Code), TempID: tempID})
}
