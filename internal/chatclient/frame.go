package chatclient

import (
	"github.com/northlane/livechat-server/internal/model"
)

// Frame is any server frame. Fields not carried by a frame type stay zero.
type Frame struct {
	Type     string              `json:"type"`
	Session  *model.ChatSession  `json:"session,omitempty"`
	Messages []model.ChatMessage `json:"messages,omitempty"`
	Message  *model.ChatMessage  `json:"message,omitempty"`
	TempID   string              `json:"tempId,omitempty"`
	Code     string              `json:"code,omitempty"`
}

type outFrame struct {
	Type         string  `json:"type"`
	SessionID    string  `json:"sessionId,omitempty"`
	Message      string  `json:"message,omitempty"`
	TempID       string  `json:"tempId,omitempty"`
	VisitorName  *string `json:"visitorName,omitempty"`
	VisitorEmail *string `json:"visitorEmail,omitempty"`
}
