package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/northlane/livechat-server/internal/model"
	"github.com/northlane/livechat-server/internal/service"
)

// memStore is an in-memory session store with the same semantics as
// service.ChatService.
type memStore struct {
	mu       sync.Mutex
	seq      int
	sessions map[string]*model.ChatSession
	messages map[string][]model.ChatMessage
	fail     error
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*model.ChatSession),
		messages: make(map[string][]model.ChatMessage),
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memStore) setFailure(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func (s *memStore) StartSession(_ context.Context, p service.StartSessionParams) (*service.StartSessionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}

	for _, sess := range s.sessions {
		if sess.VisitorID == p.VisitorID && sess.IsOpen() {
			copied := *sess
			msgs := append([]model.ChatMessage{}, s.messages[sess.ID]...)
			return &service.StartSessionResult{Session: &copied, Messages: msgs, Resumed: true}, nil
		}
	}

	now := time.Now()
	sess := &model.ChatSession{
		ID:            testUUID(s.nextIDNum()),
		VisitorID:     p.VisitorID,
		VisitorName:   p.VisitorName,
		VisitorEmail:  p.VisitorEmail,
		Status:        model.SessionStatusOpen,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	s.sessions[sess.ID] = sess
	copied := *sess
	return &service.StartSessionResult{Session: &copied, Messages: []model.ChatMessage{}}, nil
}

func (s *memStore) nextIDNum() int {
	s.seq++
	return s.seq
}

func testUUID(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}

func (s *memStore) AppendMessage(_ context.Context, p service.AppendMessageParams) (*model.ChatMessage, *model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, nil, s.fail
	}

	body := strings.TrimSpace(p.Message)
	if body == "" || len([]rune(body)) > 4000 {
		return nil, nil, service.ErrInvalidMessage
	}

	sess, ok := s.sessions[p.SessionID]
	if !ok {
		return nil, nil, service.ErrSessionNotFound
	}
	if !sess.IsOpen() {
		return nil, nil, service.ErrSessionClosed
	}

	name := p.SenderName
	if name == nil && p.SenderType == model.SenderVisitor {
		name = sess.VisitorName
	}

	now := time.Now()
	msg := model.ChatMessage{
		ID:         s.nextID("m"),
		SessionID:  sess.ID,
		SenderType: p.SenderType,
		SenderName: name,
		Message:    body,
		CreatedAt:  now,
	}
	s.messages[sess.ID] = append(s.messages[sess.ID], msg)
	sess.LastMessageAt = now

	copied := *sess
	return &msg, &copied, nil
}

func (s *memStore) CloseSession(_ context.Context, id string) (*model.ChatSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, false, s.fail
	}

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false, service.ErrSessionNotFound
	}
	if !sess.IsOpen() {
		copied := *sess
		return &copied, false, nil
	}

	now := time.Now()
	sess.Status = model.SessionStatusClosed
	sess.ClosedAt = &now
	copied := *sess
	return &copied, true, nil
}

func (s *memStore) CloseIdleSession(_ context.Context, id string, before time.Time) (*model.ChatSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, false, s.fail
	}

	sess, ok := s.sessions[id]
	if !ok || !sess.IsOpen() || !sess.LastMessageAt.Before(before) {
		return nil, false, nil
	}

	now := time.Now()
	sess.Status = model.SessionStatusClosed
	sess.ClosedAt = &now
	copied := *sess
	return &copied, true, nil
}

func (s *memStore) messageCount(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[sessionID])
}

func (s *memStore) bodies(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.messages[sessionID]))
	for _, m := range s.messages[sessionID] {
		out = append(out, m.Message)
	}
	return out
}

var errStoreDown = errors.New("store down")

// frame is a decoded outbound frame for assertions.
type frame struct {
	Type     string              `json:"type"`
	Session  *model.ChatSession  `json:"session"`
	Message  *model.ChatMessage  `json:"message"`
	Messages []model.ChatMessage `json:"messages"`
	TempID   string              `json:"tempId"`
	Code     string              `json:"code"`
}

func testConn(role Role, visitorID string) *Conn {
	return newConn(nil, role, ConnOptions{VisitorID: visitorID, AdminName: "Dana", QueueSize: 32})
}

// drain returns every frame currently queued on c.
func drain(t *testing.T, c *Conn) []frame {
	t.Helper()
	var out []frame
	for {
		select {
		case raw := <-c.send:
			var f frame
			require.NoError(t, json.Unmarshal(raw, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func types(frames []frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Type
	}
	return out
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
