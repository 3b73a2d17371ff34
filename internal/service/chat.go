package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"

	"github.com/northlane/livechat-server/internal/database"
	"github.com/northlane/livechat-server/internal/model"
	"github.com/northlane/livechat-server/internal/repository"
)

var (
	ErrSessionNotFound = errors.New("chat session not found")
	ErrSessionClosed   = errors.New("chat session closed")
	ErrInvalidMessage  = errors.New("invalid chat message")
)

// ChatService is the session store. Every status check and mutation of chat
// sessions goes through it; callers never cache session status across events.
type ChatService struct {
	tx               database.Transactor
	sessionRepo      repository.ChatSessionRepository
	messageRepo      repository.ChatMessageRepository
	historyLimit     int
	maxMessageLength int
}

func NewChatService(
	tx database.Transactor,
	sessionRepo repository.ChatSessionRepository,
	messageRepo repository.ChatMessageRepository,
	historyLimit, maxMessageLength int,
) *ChatService {
	return &ChatService{
		tx:               tx,
		sessionRepo:      sessionRepo,
		messageRepo:      messageRepo,
		historyLimit:     historyLimit,
		maxMessageLength: maxMessageLength,
	}
}

type StartSessionParams struct {
	VisitorID    string
	VisitorName  *string
	VisitorEmail *string
}

type StartSessionResult struct {
	Session  *model.ChatSession
	Messages []model.ChatMessage
	Resumed  bool
}

// StartSession resumes the visitor's open session or creates a new one. Name
// and email are only recorded on creation.
func (s *ChatService) StartSession(ctx context.Context, params StartSessionParams) (*StartSessionResult, error) {
	session, err := s.sessionRepo.FindOpenByVisitorID(ctx, params.VisitorID)
	if err != nil {
		return nil, fmt.Errorf("find open session: %w", err)
	}

	if session != nil {
		messages, err := s.messageRepo.FindRecentBySessionID(ctx, session.ID, s.historyLimit)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		return &StartSessionResult{Session: session, Messages: nonNil(messages), Resumed: true}, nil
	}

	session, err = s.sessionRepo.Create(ctx, model.CreateChatSessionParams{
		VisitorID:    params.VisitorID,
		VisitorName:  params.VisitorName,
		VisitorEmail: params.VisitorEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if session == nil {
		// A concurrent start for the same visitor won the insert.
		session, err = s.sessionRepo.FindOpenByVisitorID(ctx, params.VisitorID)
		if err != nil {
			return nil, fmt.Errorf("find open session: %w", err)
		}
		if session == nil {
			return nil, fmt.Errorf("create session: open session vanished for visitor")
		}
		messages, err := s.messageRepo.FindRecentBySessionID(ctx, session.ID, s.historyLimit)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		return &StartSessionResult{Session: session, Messages: nonNil(messages), Resumed: true}, nil
	}

	return &StartSessionResult{Session: session, Messages: []model.ChatMessage{}}, nil
}

type AppendMessageParams struct {
	SessionID  string
	SenderType model.SenderType
	SenderName *string
	Message    string
}

// AppendMessage persists a message on an open session and bumps its
// lastMessageAt. The session row is locked for the duration so concurrent
// closes and appends are serialized by the database.
func (s *ChatService) AppendMessage(ctx context.Context, params AppendMessageParams) (*model.ChatMessage, *model.ChatSession, error) {
	body, err := s.NormalizeMessage(params.Message)
	if err != nil {
		return nil, nil, err
	}
	if !params.SenderType.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown sender type %q", ErrInvalidMessage, params.SenderType)
	}

	var (
		msg     *model.ChatMessage
		session *model.ChatSession
	)

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		sessions := s.sessionRepo
		messages := s.messageRepo
		if tx != nil {
			sessions = sessions.WithTx(tx)
			messages = messages.WithTx(tx)
		}

		locked, err := sessions.LockByID(ctx, params.SessionID)
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		if locked == nil {
			return ErrSessionNotFound
		}
		if !locked.IsOpen() {
			return ErrSessionClosed
		}

		senderName := params.SenderName
		if senderName == nil && params.SenderType == model.SenderVisitor {
			senderName = locked.VisitorName
		}

		msg, err = messages.Create(ctx, model.CreateChatMessageParams{
			SessionID:  params.SessionID,
			SenderType: params.SenderType,
			SenderName: senderName,
			Message:    body,
		})
		if err != nil {
			return fmt.Errorf("create message: %w", err)
		}

		session, err = sessions.TouchLastMessage(ctx, params.SessionID, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return msg, session, nil
}

// NormalizeMessage trims the body and enforces the length bound.
func (s *ChatService) NormalizeMessage(raw string) (string, error) {
	body := strings.TrimSpace(raw)
	if body == "" {
		return "", fmt.Errorf("%w: empty body", ErrInvalidMessage)
	}
	if s.maxMessageLength > 0 && utf8.RuneCountInString(body) > s.maxMessageLength {
		return "", fmt.Errorf("%w: body exceeds %d characters", ErrInvalidMessage, s.maxMessageLength)
	}
	return body, nil
}

// CloseSession closes an open session. transitioned is false when the session
// was already closed, in which case the stored session is returned unchanged.
func (s *ChatService) CloseSession(ctx context.Context, id string) (session *model.ChatSession, transitioned bool, err error) {
	session, err = s.sessionRepo.Close(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("close session: %w", err)
	}
	if session != nil {
		return session, true, nil
	}

	session, err = s.sessionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, false, ErrSessionNotFound
	}
	return session, false, nil
}

// CloseIdleSession closes a session that has had no message since before.
// It reports false when the session is gone, closed or active again.
func (s *ChatService) CloseIdleSession(ctx context.Context, id string, before time.Time) (*model.ChatSession, bool, error) {
	session, err := s.sessionRepo.CloseIdle(ctx, id, before)
	if err != nil {
		return nil, false, fmt.Errorf("close idle session: %w", err)
	}
	return session, session != nil, nil
}

func (s *ChatService) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	session, err := s.sessionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *ChatService) ListSessions(ctx context.Context, filter model.SessionFilter) ([]model.ChatSession, error) {
	sessions, err := s.sessionRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []model.ChatSession{}
	}
	return sessions, nil
}

func (s *ChatService) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]model.ChatMessage, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	messages, err := s.messageRepo.FindBySessionID(ctx, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return nonNil(messages), nil
}

func (s *ChatService) FindIdleOpen(ctx context.Context, before time.Time, limit int) ([]model.ChatSession, error) {
	sessions, err := s.sessionRepo.FindIdleOpen(ctx, before, limit)
	if err != nil {
		return nil, fmt.Errorf("find idle sessions: %w", err)
	}
	return sessions, nil
}

type ChatStats struct {
	OpenSessions    int `json:"openSessions"`
	ClosedSessions  int `json:"closedSessions"`
	MessagesToday   int `json:"messagesToday"`
	LiveConnections int `json:"liveConnections"`
}

func (s *ChatService) Stats(ctx context.Context) (*ChatStats, error) {
	stats := &ChatStats{}
	var err error

	if stats.OpenSessions, err = s.sessionRepo.CountByStatus(ctx, model.SessionStatusOpen); err != nil {
		return nil, fmt.Errorf("count open sessions: %w", err)
	}
	if stats.ClosedSessions, err = s.sessionRepo.CountByStatus(ctx, model.SessionStatusClosed); err != nil {
		return nil, fmt.Errorf("count closed sessions: %w", err)
	}

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if stats.MessagesToday, err = s.messageRepo.CountSince(ctx, midnight); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	return stats, nil
}

func nonNil(messages []model.ChatMessage) []model.ChatMessage {
	if messages == nil {
		return []model.ChatMessage{}
	}
	return messages
}
