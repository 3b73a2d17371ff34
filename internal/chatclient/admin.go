package chatclient

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/northlane/livechat-server/internal/chat"
	"github.com/northlane/livechat-server/internal/model"
)

type AdminConfig struct {
	Options
	Token string
}

// Admin is the console side: it sees every session's traffic.
type Admin struct {
	cfg  AdminConfig
	sock *socket

	mu        sync.Mutex
	sessions  map[string]model.ChatSession
	timelines map[string]*Timeline
}

func NewAdmin(cfg AdminConfig) *Admin {
	a := &Admin{
		cfg:       cfg,
		sessions:  make(map[string]model.ChatSession),
		timelines: make(map[string]*Timeline),
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.Token)
	a.sock = newSocket(cfg.Options, a.url, header)
	a.sock.onOpen = a.join
	a.sock.onFrame = a.apply
	return a
}

func (a *Admin) Run(ctx context.Context) error {
	return a.sock.run(ctx)
}

func (a *Admin) Status() Status { return a.sock.Status() }

// Load seeds a session and its history, typically from the REST API.
func (a *Admin) Load(session model.ChatSession, history []model.ChatMessage) {
	a.upsert(&session)
	a.timeline(session.ID).Reset(history)
}

// Sessions returns known sessions, most recently active first.
func (a *Admin) Sessions() []model.ChatSession {
	a.mu.Lock()
	out := make([]model.ChatSession, 0, len(a.sessions))
	for _, s := range a.sessions {
		out = append(out, s)
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

func (a *Admin) Timeline(sessionID string) *Timeline {
	return a.timeline(sessionID)
}

func (a *Admin) Reply(sessionID, body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrEmptyMessage
	}

	tl := a.timeline(sessionID)
	tempID := tl.AddPending(model.SenderAdmin, body)
	err := a.sock.send(outFrame{Type: chat.TypeAdminMessage, SessionID: sessionID, Message: body, TempID: tempID})
	if err != nil {
		tl.MarkFailed(tempID)
		return tempID, err
	}
	return tempID, nil
}

func (a *Admin) CloseSession(sessionID string) error {
	return a.sock.send(outFrame{Type: chat.TypeCloseSession, SessionID: sessionID})
}

func (a *Admin) url() (string, error) {
	u, err := url.Parse(a.cfg.ServerURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("type", "admin")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (a *Admin) join() error {
	return a.sock.send(outFrame{Type: chat.TypeAdminJoin})
}

func (a *Admin) apply(f Frame) {
	a.upsert(f.Session)

	switch f.Type {
	case chat.TypeNewMessage:
		if f.Message != nil {
			a.timeline(f.Message.SessionID).Add(*f.Message)
		}
	case chat.TypeMessageSent:
		if f.Message != nil {
			a.timeline(f.Message.SessionID).Confirm(*f.Message, f.TempID)
		}
	case chat.TypeError:
		if f.TempID == "" {
			return
		}
		a.mu.Lock()
		timelines := make([]*Timeline, 0, len(a.timelines))
		for _, tl := range a.timelines {
			timelines = append(timelines, tl)
		}
		a.mu.Unlock()
		for _, tl := range timelines {
			if tl.MarkFailed(f.TempID) {
				return
			}
		}
	}
}

func (a *Admin) upsert(s *model.ChatSession) {
	if s == nil {
		return
	}
	a.mu.Lock()
	a.sessions[s.ID] = *s
	a.mu.Unlock()
}

func (a *Admin) timeline(sessionID string) *Timeline {
	a.mu.Lock()
	defer a.mu.Unlock()
	tl, ok := a.timelines[sessionID]
	if !ok {
		tl = NewTimeline()
		a.timelines[sessionID] = tl
	}
	return tl
}
