package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/northlane/livechat-server/internal/model"
	"github.com/northlane/livechat-server/internal/service"
)

type mockAdminAuth struct {
	mock.Mock
}

func (m *mockAdminAuth) Login(ctx context.Context, password, displayName string) (*service.LoginResult, error) {
	args := m.Called(ctx, password, displayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.LoginResult), args.Error(1)
}

func (m *mockAdminAuth) Logout(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

type mockChatReader struct {
	mock.Mock
}

func (m *mockChatReader) ListSessions(ctx context.Context, filter model.SessionFilter) ([]model.ChatSession, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ChatSession), args.Error(1)
}

func (m *mockChatReader) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]model.ChatMessage, error) {
	args := m.Called(ctx, sessionID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ChatMessage), args.Error(1)
}

func (m *mockChatReader) Stats(ctx context.Context) (*service.ChatStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ChatStats), args.Error(1)
}

type mockCloser struct {
	mock.Mock
}

func (m *mockCloser) CloseSession(ctx context.Context, sessionID, reason string) (*model.ChatSession, bool, error) {
	args := m.Called(ctx, sessionID, reason)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.ChatSession), args.Bool(1), args.Error(2)
}

type fixedCount int

func (c fixedCount) Count() int { return int(c) }
