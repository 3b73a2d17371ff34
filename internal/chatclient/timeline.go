package chatclient

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/northlane/livechat-server/internal/model"
)

// Entry is one row of a conversation as the UI shows it. Pending entries
// have no server id yet.
type Entry struct {
	Message model.ChatMessage
	TempID  string
	Pending bool
	Failed  bool
}

// Timeline is the ordered message list of one session, reconciling
// optimistic sends with the server's confirmations. Persisted messages are
// kept in createdAt order, arrival order breaking ties, ahead of every
// pending entry.
type Timeline struct {
	mu      sync.Mutex
	entries []Entry
}

func NewTimeline() *Timeline {
	return &Timeline{}
}

// AddPending appends an unconfirmed message and returns its temp id.
func (t *Timeline) AddPending(sender model.SenderType, body string) string {
	tempID := uuid.NewString()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{
		Message: model.ChatMessage{
			SenderType: sender,
			Message:    body,
			CreatedAt:  time.Now(),
		},
		TempID:  tempID,
		Pending: true,
	})
	return tempID
}

// Confirm swaps the pending entry for the persisted message. It matches on
// tempID, falling back to the oldest pending entry with the same sender and
// body. Confirming the same message twice leaves one entry.
func (t *Timeline) Confirm(msg model.ChatMessage, tempID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i := t.indexByID(msg.ID); i >= 0 {
		t.entries[i].Message = msg
		t.settle(i)
		return
	}

	i := -1
	if tempID != "" {
		i = t.indexPending(func(e Entry) bool { return e.TempID == tempID })
	}
	if i < 0 {
		i = t.indexPending(func(e Entry) bool {
			return e.Message.SenderType == msg.SenderType && e.Message.Message == msg.Message
		})
	}
	if i < 0 {
		t.entries = append(t.entries, Entry{Message: msg})
		t.settle(len(t.entries) - 1)
		return
	}
	t.entries[i] = Entry{Message: msg, TempID: t.entries[i].TempID}
	t.settle(i)
}

// Add inserts a message pushed by the server, replacing any entry with the
// same id.
func (t *Timeline) Add(msg model.ChatMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i := t.indexByID(msg.ID); i >= 0 {
		t.entries[i].Message = msg
		t.settle(i)
		return
	}
	t.entries = append(t.entries, Entry{Message: msg})
	t.settle(len(t.entries) - 1)
}

// MarkFailed flags a pending entry the server reported as not saved.
func (t *Timeline) MarkFailed(tempID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexPending(func(e Entry) bool { return e.TempID == tempID })
	if i < 0 {
		return false
	}
	t.entries[i].Failed = true
	return true
}

// Reset replaces the persisted part of the timeline with server history.
// Failed entries survive, as do pending ones the history does not contain.
func (t *Timeline) Reset(history []model.ChatMessage) {
	entries := make([]Entry, len(history), len(history)+len(t.entries))
	for i, m := range history {
		entries[i] = Entry{Message: m}
	}
	matched := make([]bool, len(history))

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if !e.Pending {
			continue
		}
		if !e.Failed {
			if j := findUnmatched(history, matched, e.Message); j >= 0 {
				matched[j] = true
				entries[j].TempID = e.TempID
				continue
			}
		}
		entries = append(entries, e)
	}
	t.entries = entries
}

func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// settle moves entry i to its place among the persisted entries.
func (t *Timeline) settle(i int) {
	e := t.entries[i]
	t.entries = slices.Delete(t.entries, i, i+1)

	j := 0
	for j < len(t.entries) && !t.entries[j].Pending && !e.Message.CreatedAt.Before(t.entries[j].Message.CreatedAt) {
		j++
	}
	t.entries = slices.Insert(t.entries, j, e)
}

func findUnmatched(history []model.ChatMessage, matched []bool, m model.ChatMessage) int {
	for j, h := range history {
		if !matched[j] && h.SenderType == m.SenderType && h.Message == m.Message {
			return j
		}
	}
	return -1
}

func (t *Timeline) indexByID(id string) int {
	if id == "" {
		return -1
	}
	for i, e := range t.entries {
		if !e.Pending && e.Message.ID == id {
			return i
		}
	}
	return -1
}

func (t *Timeline) indexPending(match func(Entry) bool) int {
	for i, e := range t.entries {
		if e.Pending && match(e) {
			return i
		}
	}
	return -1
}
