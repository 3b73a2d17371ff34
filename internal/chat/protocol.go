package chat

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/northlane/livechat-server/internal/model"
)

// Inbound frame types.
const (
	TypeVisitorStart   = "visitor_start"
	TypeVisitorMessage = "visitor_message"
	TypeAdminJoin      = "admin_join"
	TypeAdminMessage   = "admin_message"
	TypeCloseSession   = "close_session"
	TypePing           = "ping"
)

// Outbound frame types.
const (
	TypeSessionStarted = "session_started"
	TypeMessageSent    = "message_sent"
	TypeNewMessage     = "new_message"
	TypeSessionClosed  = "session_closed"
	TypePong           = "pong"
	TypeError          = "error"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown frame type")
	ErrInvalidFrame   = errors.New("invalid frame")
)

// InboundEvent is the closed set of frames a client may send. The marker
// method keeps other packages from adding variants.
type InboundEvent interface {
	inboundType() string
}

type VisitorStart struct {
	VisitorName  *string `json:"visitorName" validate:"omitempty,max=100"`
	VisitorEmail *string `json:"visitorEmail" validate:"omitempty,email,max=254"`
}

type VisitorMessage struct {
	Message string `json:"message" validate:"required"`
	TempID  string `json:"tempId" validate:"max=64"`
}

type AdminJoin struct{}

type AdminMessage struct {
	SessionID string `json:"sessionId" validate:"required,uuid"`
	Message   string `json:"message" validate:"required"`
	TempID    string `json:"tempId" validate:"max=64"`
}

type CloseSession struct {
	SessionID string `json:"sessionId" validate:"required,uuid"`
}

type Ping struct{}

func (*VisitorStart) inboundType() string   { return TypeVisitorStart }
func (*VisitorMessage) inboundType() string { return TypeVisitorMessage }
func (*AdminJoin) inboundType() string      { return TypeAdminJoin }
func (*AdminMessage) inboundType() string   { return TypeAdminMessage }
func (*CloseSession) inboundType() string   { return TypeCloseSession }
func (*Ping) inboundType() string           { return TypePing }

// Decoder parses and validates inbound frames.
type Decoder struct {
	validate *validator.Validate
}

func NewDecoder() *Decoder {
	return &Decoder{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Decode returns ErrMalformedFrame for bad JSON, ErrUnknownType for an
// unrecognised type and ErrInvalidFrame when the payload fails validation.
func (d *Decoder) Decode(data []byte) (InboundEvent, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var ev InboundEvent
	switch envelope.Type {
	case TypeVisitorStart:
		ev = &VisitorStart{}
	case TypeVisitorMessage:
		ev = &VisitorMessage{}
	case TypeAdminJoin:
		ev = &AdminJoin{}
	case TypeAdminMessage:
		ev = &AdminMessage{}
	case TypeCloseSession:
		ev = &CloseSession{}
	case TypePing:
		ev = &Ping{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, envelope.Type)
	}

	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if start, ok := ev.(*VisitorStart); ok {
		start.VisitorName = trimOptional(start.VisitorName)
		start.VisitorEmail = trimOptional(start.VisitorEmail)
	}

	if err := d.validate.Struct(ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return ev, nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// OutboundEvent is a frame the server sends. Payloads embed full session and
// message records; clients replace by id.
type OutboundEvent interface {
	OutboundType() string
}

type SessionStarted struct {
	Session  *model.ChatSession  `json:"session"`
	Messages []model.ChatMessage `json:"messages"`
}

type MessageSent struct {
	Message *model.ChatMessage `json:"message"`
	Session *model.ChatSession `json:"session"`
	TempID  string             `json:"tempId,omitempty"`
}

type NewMessage struct {
	Message *model.ChatMessage `json:"message"`
	Session *model.ChatSession `json:"session"`
}

type SessionClosed struct {
	Session *model.ChatSession `json:"session"`
}

type Pong struct{}

// ErrorFrame tells the initiating connection that its event may not have
// been saved.
type ErrorFrame struct {
	Code   string `json:"code"`
	TempID string `json:"tempId,omitempty"`
}

func (SessionStarted) OutboundType() string { return TypeSessionStarted }
func (MessageSent) OutboundType() string    { return TypeMessageSent }
func (NewMessage) OutboundType() string     { return TypeNewMessage }
func (SessionClosed) OutboundType() string  { return TypeSessionClosed }
func (Pong) OutboundType() string           { return TypePong }
func (ErrorFrame) OutboundType() string     { return TypeError }

// Encode writes the event as a flat JSON object with its type field first.
func Encode(ev OutboundEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.OutboundType(), err)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	typ, _ := json.Marshal(ev.OutboundType())
	buf.Write(typ)

	body := bytes.TrimSpace(payload)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}
