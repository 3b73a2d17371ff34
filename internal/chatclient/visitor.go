package chatclient

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/northlane/livechat-server/internal/chat"
	"github.com/northlane/livechat-server/internal/model"
)

var ErrEmptyMessage = errors.New("chatclient: empty message")

type VisitorConfig struct {
	Options
	VisitorID    string
	VisitorName  *string
	VisitorEmail *string
}

// Visitor is the widget side of a chat. It resumes the visitor's open
// session after every reconnect.
type Visitor struct {
	cfg      VisitorConfig
	sock     *socket
	timeline *Timeline

	mu        sync.Mutex
	session   *model.ChatSession
	panelOpen bool
	unread    int
}

func NewVisitor(cfg VisitorConfig) *Visitor {
	v := &Visitor{cfg: cfg, timeline: NewTimeline()}
	v.sock = newSocket(cfg.Options, v.url, nil)
	v.sock.onOpen = v.start
	v.sock.onFrame = v.apply
	return v
}

// Run connects and keeps the visitor online until ctx is done.
func (v *Visitor) Run(ctx context.Context) error {
	return v.sock.run(ctx)
}

func (v *Visitor) Status() Status { return v.sock.Status() }

func (v *Visitor) Timeline() *Timeline { return v.timeline }

func (v *Visitor) Session() *model.ChatSession {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.session == nil {
		return nil
	}
	s := *v.session
	return &s
}

// Send posts a message optimistically and returns its temp id. A closed
// session is replaced by a fresh one first.
func (v *Visitor) Send(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrEmptyMessage
	}

	if s := v.Session(); s != nil && !s.IsOpen() {
		if err := v.start(); err != nil {
			return "", err
		}
	}

	tempID := v.timeline.AddPending(model.SenderVisitor, body)
	if err := v.sock.send(outFrame{Type: chat.TypeVisitorMessage, Message: body, TempID: tempID}); err != nil {
		v.timeline.MarkFailed(tempID)
		return tempID, err
	}
	return tempID, nil
}

func (v *Visitor) OpenPanel() {
	v.mu.Lock()
	v.panelOpen = true
	v.unread = 0
	v.mu.Unlock()
}

func (v *Visitor) ClosePanel() {
	v.mu.Lock()
	v.panelOpen = false
	v.mu.Unlock()
}

// Unread is the badge count of admin messages received while the panel
// was closed.
func (v *Visitor) Unread() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unread
}

func (v *Visitor) url() (string, error) {
	u, err := url.Parse(v.cfg.ServerURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("type", "visitor")
	q.Set("visitorId", v.cfg.VisitorID)
	if s := v.Session(); s != nil && s.IsOpen() {
		q.Set("sessionId", s.ID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (v *Visitor) start() error {
	return v.sock.send(outFrame{
		Type:         chat.TypeVisitorStart,
		VisitorName:  v.cfg.VisitorName,
		VisitorEmail: v.cfg.VisitorEmail,
	})
}

func (v *Visitor) apply(f Frame) {
	switch f.Type {
	case chat.TypeSessionStarted:
		v.setSession(f.Session)
		v.timeline.Reset(f.Messages)
	case chat.TypeMessageSent:
		v.setSession(f.Session)
		if f.Message != nil {
			v.timeline.Confirm(*f.Message, f.TempID)
		}
	case chat.TypeNewMessage:
		v.setSession(f.Session)
		if f.Message == nil {
			return
		}
		v.timeline.Add(*f.Message)
		v.mu.Lock()
		if !v.panelOpen {
			v.unread++
		}
		v.mu.Unlock()
	case chat.TypeSessionClosed:
		v.setSession(f.Session)
	case chat.TypeError:
		if f.TempID != "" {
			v.timeline.MarkFailed(f.TempID)
		}
	}
}

func (v *Visitor) setSession(s *model.ChatSession) {
	if s == nil {
		return
	}
	v.mu.Lock()
	v.session = s
	v.mu.Unlock()
}
