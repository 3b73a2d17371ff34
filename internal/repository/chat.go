package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/northlane/livechat-server/internal/model"
)

type ChatSessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.ChatSession, error)
	FindOpenByVisitorID(ctx context.Context, visitorID string) (*model.ChatSession, error)
	// Create returns nil, nil when the visitor already has an open session.
	Create(ctx context.Context, params model.CreateChatSessionParams) (*model.ChatSession, error)
	LockByID(ctx context.Context, id string) (*model.ChatSession, error)
	TouchLastMessage(ctx context.Context, id string, at time.Time) (*model.ChatSession, error)
	Close(ctx context.Context, id string) (*model.ChatSession, error)
	// CloseIdle closes the session only if it is still open with no message
	// since before.
	CloseIdle(ctx context.Context, id string, before time.Time) (*model.ChatSession, error)
	List(ctx context.Context, filter model.SessionFilter) ([]model.ChatSession, error)
	FindIdleOpen(ctx context.Context, before time.Time, limit int) ([]model.ChatSession, error)
	CountByStatus(ctx context.Context, status model.SessionStatus) (int, error)
	WithTx(tx *sqlx.Tx) ChatSessionRepository
}

type chatSessionRepo struct {
	db dbtx
}

func NewChatSessionRepository(db *sqlx.DB) ChatSessionRepository {
	return &chatSessionRepo{db: db}
}

func (r *chatSessionRepo) WithTx(tx *sqlx.Tx) ChatSessionRepository {
	return &chatSessionRepo{db: tx}
}

func (r *chatSessionRepo) FindByID(ctx context.Context, id string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.GetContext(ctx, &session, `SELECT * FROM chat_sessions WHERE id = $1`, id)
	return HandleNotFound(&session, err)
}

func (r *chatSessionRepo) FindOpenByVisitorID(ctx context.Context, visitorID string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM chat_sessions
		WHERE visitor_id = $1 AND status = 'open'
	`, visitorID)
	return HandleNotFound(&session, err)
}

func (r *chatSessionRepo) Create(ctx context.Context, params model.CreateChatSessionParams) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO chat_sessions (visitor_id, visitor_name, visitor_email)
		VALUES ($1, $2, $3)
		ON CONFLICT (visitor_id) WHERE status = 'open' DO NOTHING
		RETURNING *
	`, params.VisitorID, params.VisitorName, params.VisitorEmail)
	return HandleNotFound(&session, err)
}

// LockByID selects the session row FOR UPDATE. Only meaningful inside a transaction.
func (r *chatSessionRepo) LockByID(ctx context.Context, id string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM chat_sessions WHERE id = $1 FOR UPDATE
	`, id)
	return HandleNotFound(&session, err)
}

func (r *chatSessionRepo) TouchLastMessage(ctx context.Context, id string, at time.Time) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.GetContext(ctx, &session, `
		UPDATE chat_sessions SET last_message_at = GREATEST(last_message_at, $2)
		WHERE id = $1
		RETURNING *
	`, id, at)
	return HandleNotFound(&session, err)
}

// Close transitions an open session to closed. It returns nil, nil when the
// session does not exist or is already closed.
func (r *chatSessionRepo) Close(ctx context.Context, id string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.GetContext(ctx, &session, `
		UPDATE chat_sessions SET
			status = 'closed',
			closed_at = NOW()
		WHERE id = $1 AND status = 'open'
		RETURNING *
	`, id)
	return HandleNotFound(&session, err)
}

func (r *chatSessionRepo) CloseIdle(ctx context.Context, id string, before time.Time) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.GetContext(ctx, &session, `
		UPDATE chat_sessions SET
			status = 'closed',
			closed_at = NOW()
		WHERE id = $1 AND status = 'open' AND last_message_at < $2
		RETURNING *
	`, id, before)
	return HandleNotFound(&session, err)
}

func (r *chatSessionRepo) List(ctx context.Context, filter model.SessionFilter) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM chat_sessions
		WHERE ($1 = '' OR status = $1)
		ORDER BY last_message_at DESC
		LIMIT $2 OFFSET $3
	`, string(filter.Status), filter.Limit, filter.Offset)
	return sessions, err
}

func (r *chatSessionRepo) FindIdleOpen(ctx context.Context, before time.Time, limit int) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM chat_sessions
		WHERE status = 'open' AND last_message_at < $1
		ORDER BY last_message_at ASC
		LIMIT $2
	`, before, limit)
	return sessions, err
}

func (r *chatSessionRepo) CountByStatus(ctx context.Context, status model.SessionStatus) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM chat_sessions WHERE status = $1
	`, status)
	return count, err
}

type ChatMessageRepository interface {
	Create(ctx context.Context, params model.CreateChatMessageParams) (*model.ChatMessage, error)
	FindRecentBySessionID(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error)
	FindBySessionID(ctx context.Context, sessionID string, limit, offset int) ([]model.ChatMessage, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
	WithTx(tx *sqlx.Tx) ChatMessageRepository
}

type chatMessageRepo struct {
	db dbtx
}

func NewChatMessageRepository(db *sqlx.DB) ChatMessageRepository {
	return &chatMessageRepo{db: db}
}

func (r *chatMessageRepo) WithTx(tx *sqlx.Tx) ChatMessageRepository {
	return &chatMessageRepo{db: tx}
}

func (r *chatMessageRepo) Create(ctx context.Context, params model.CreateChatMessageParams) (*model.ChatMessage, error) {
	var msg model.ChatMessage
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO chat_messages (session_id, sender_type, sender_name, message)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.SessionID, params.SenderType, params.SenderName, params.Message)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindRecentBySessionID returns the newest limit messages, oldest first.
func (r *chatMessageRepo) FindRecentBySessionID(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM (
			SELECT * FROM chat_messages
			WHERE session_id = $1
			ORDER BY created_at DESC, seq DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, seq ASC
	`, sessionID, limit)
	return msgs, err
}

func (r *chatMessageRepo) FindBySessionID(ctx context.Context, sessionID string, limit, offset int) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC, seq ASC
		LIMIT $2 OFFSET $3
	`, sessionID, limit, offset)
	return msgs, err
}

func (r *chatMessageRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM chat_messages WHERE created_at >= $1
	`, since)
	return count, err
}
