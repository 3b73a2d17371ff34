package model

import (
	"time"
)

type ChatSession struct {
	ID            string        `db:"id" json:"id"`
	VisitorID     string        `db:"visitor_id" json:"visitorId"`
	VisitorName   *string       `db:"visitor_name" json:"visitorName"`
	VisitorEmail  *string       `db:"visitor_email" json:"visitorEmail"`
	Status        SessionStatus `db:"status" json:"status"`
	LastMessageAt time.Time     `db:"last_message_at" json:"lastMessageAt"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
	ClosedAt      *time.Time    `db:"closed_at" json:"closedAt,omitempty"`
}

func (s *ChatSession) IsOpen() bool {
	return s != nil && s.Status == SessionStatusOpen
}

type CreateChatSessionParams struct {
	VisitorID    string
	VisitorName  *string
	VisitorEmail *string
}

type ChatMessage struct {
	ID         string     `db:"id" json:"id"`
	Seq        int64      `db:"seq" json:"-"`
	SessionID  string     `db:"session_id" json:"sessionId"`
	SenderType SenderType `db:"sender_type" json:"senderType"`
	SenderName *string    `db:"sender_name" json:"senderName"`
	Message    string     `db:"message" json:"message"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

type CreateChatMessageParams struct {
	SessionID  string
	SenderType SenderType
	SenderName *string
	Message    string
}

type SessionFilter struct {
	Status SessionStatus
	Limit  int
	Offset int
}
