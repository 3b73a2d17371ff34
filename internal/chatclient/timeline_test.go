package chatclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northlane/livechat-server/internal/model"
)

func msg(id string, sender model.SenderType, body string) model.ChatMessage {
	return model.ChatMessage{ID: id, SessionID: "s1", SenderType: sender, Message: body}
}

func TestTimeline_ConfirmByTempID(t *testing.T) {
	tl := NewTimeline()
	first := tl.AddPending(model.SenderVisitor, "hello")
	tl.AddPending(model.SenderVisitor, "hello")

	tl.Confirm(msg("m1", model.SenderVisitor, "hello"), first)

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Pending)
	assert.Equal(t, "m1", entries[0].Message.ID)
	assert.Equal(t, first, entries[0].TempID)
	assert.True(t, entries[1].Pending)
}

func TestTimeline_ConfirmFallsBackToBody(t *testing.T) {
	tl := NewTimeline()
	tl.AddPending(model.SenderAdmin, "other")
	tl.AddPending(model.SenderVisitor, "hello")

	tl.Confirm(msg("m1", model.SenderVisitor, "hello"), "")

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "m1", entries[0].Message.ID)
	assert.False(t, entries[0].Pending)
	assert.True(t, entries[1].Pending)
}

func TestTimeline_ConfirmIsIdempotent(t *testing.T) {
	tl := NewTimeline()
	tempID := tl.AddPending(model.SenderVisitor, "hello")
	m := msg("m1", model.SenderVisitor, "hello")

	tl.Confirm(m, tempID)
	tl.Confirm(m, tempID)
	tl.Add(m)

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].Message.ID)
}

func TestTimeline_ConfirmWithoutPendingAppends(t *testing.T) {
	tl := NewTimeline()
	tl.Confirm(msg("m1", model.SenderAdmin, "from another tab"), "unknown")

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].Message.ID)
}

func TestTimeline_AddDedupesByID(t *testing.T) {
	tl := NewTimeline()
	tl.Add(msg("m1", model.SenderAdmin, "hi"))
	tl.Add(msg("m2", model.SenderAdmin, "there"))
	tl.Add(msg("m1", model.SenderAdmin, "hi"))

	assert.Equal(t, 2, tl.Len())
}

func TestTimeline_MarkFailed(t *testing.T) {
	tl := NewTimeline()
	tempID := tl.AddPending(model.SenderVisitor, "hello")

	assert.True(t, tl.MarkFailed(tempID))
	assert.False(t, tl.MarkFailed("nope"))
	assert.True(t, tl.Entries()[0].Failed)
}

func TestTimeline_ConfirmOrdersByCreatedAt(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	at := func(m model.ChatMessage, d time.Duration) model.ChatMessage {
		m.CreatedAt = base.Add(d)
		return m
	}

	tl := NewTimeline()
	tempID := tl.AddPending(model.SenderVisitor, "question")
	tl.Add(at(msg("a1", model.SenderAdmin, "reply"), time.Second))
	tl.Confirm(at(msg("v1", model.SenderVisitor, "question"), 2*time.Second), tempID)

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a1", entries[0].Message.ID)
	assert.Equal(t, "v1", entries[1].Message.ID)
	assert.Equal(t, tempID, entries[1].TempID)
}

func TestTimeline_PendingStaysLast(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	late := msg("m2", model.SenderAdmin, "late")
	late.CreatedAt = base.Add(2 * time.Second)
	early := msg("m1", model.SenderAdmin, "early")
	early.CreatedAt = base.Add(time.Second)

	tl := NewTimeline()
	tl.AddPending(model.SenderVisitor, "waiting")
	tl.Add(late)
	tl.Add(early)
	tl.Confirm(msg("m3", model.SenderAdmin, "other tab"), "")

	entries := tl.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, "m3", entries[0].Message.ID)
	assert.Equal(t, "m1", entries[1].Message.ID)
	assert.Equal(t, "m2", entries[2].Message.ID)
	assert.True(t, entries[3].Pending)
}

func TestTimeline_Reset(t *testing.T) {
	tl := NewTimeline()
	tl.Add(msg("m0", model.SenderAdmin, "old"))

	tl.Reset([]model.ChatMessage{msg("m1", model.SenderVisitor, "a"), msg("m2", model.SenderAdmin, "b")})

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "m1", entries[0].Message.ID)
	assert.Equal(t, "m2", entries[1].Message.ID)

	tl.Reset(nil)
	assert.Zero(t, tl.Len())
}

func TestTimeline_ResetKeepsUnsavedEntries(t *testing.T) {
	tl := NewTimeline()
	failed := tl.AddPending(model.SenderVisitor, "lost")
	require.True(t, tl.MarkFailed(failed))
	saved := tl.AddPending(model.SenderVisitor, "made it")
	tl.AddPending(model.SenderVisitor, "in flight")

	tl.Reset([]model.ChatMessage{msg("m1", model.SenderVisitor, "made it")})

	entries := tl.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "m1", entries[0].Message.ID)
	assert.Equal(t, saved, entries[0].TempID)
	assert.False(t, entries[0].Pending)
	assert.Equal(t, "lost", entries[1].Message.Message)
	assert.True(t, entries[1].Failed)
	assert.Equal(t, "in flight", entries[2].Message.Message)
	assert.True(t, entries[2].Pending)
}
