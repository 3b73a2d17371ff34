package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/northlane/livechat-server/internal/config"
	"github.com/northlane/livechat-server/internal/model"
	"github.com/northlane/livechat-server/internal/repository"
	"github.com/northlane/livechat-server/internal/util"
)

var ErrInvalidCredentials = errors.New("invalid admin credentials")

const maxDisplayNameLength = 64

type AdminService struct {
	sessionRepo   repository.AdminSessionRepository
	passwordHash  string
	sessionSecret string
}

func NewAdminService(sessionRepo repository.AdminSessionRepository, passwordHash, sessionSecret string) *AdminService {
	return &AdminService{
		sessionRepo:   sessionRepo,
		passwordHash:  passwordHash,
		sessionSecret: sessionSecret,
	}
}

type LoginResult struct {
	Token     string
	Session   *model.AdminSession
	ExpiresAt time.Time
}

// Login checks the shared admin password and issues a bearer token. Only the
// HMAC of the token is stored.
func (s *AdminService) Login(ctx context.Context, password, displayName string) (*LoginResult, error) {
	if s.passwordHash == "" || !util.CheckPasswordHash(password, s.passwordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := util.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	expiresAt := time.Now().Add(config.AdminSessionTTL)
	session, err := s.sessionRepo.Create(ctx, model.CreateAdminSessionParams{
		TokenHash:   s.hash(token),
		DisplayName: normalizeDisplayName(displayName),
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("create admin session: %w", err)
	}

	return &LoginResult{Token: token, Session: session, ExpiresAt: expiresAt}, nil
}

func (s *AdminService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessionRepo.DeleteByTokenHash(ctx, s.hash(token)); err != nil {
		return fmt.Errorf("delete admin session: %w", err)
	}
	return nil
}

// Authenticate resolves a bearer token to its unexpired admin session, or
// nil when the token is unknown.
func (s *AdminService) Authenticate(ctx context.Context, token string) (*model.AdminSession, error) {
	if token == "" {
		return nil, nil
	}
	session, err := s.sessionRepo.FindByTokenHash(ctx, s.hash(token))
	if err != nil {
		return nil, fmt.Errorf("find admin session: %w", err)
	}
	return session, nil
}

func (s *AdminService) PruneExpired(ctx context.Context) (int64, error) {
	n, err := s.sessionRepo.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete expired admin sessions: %w", err)
	}
	return n, nil
}

func (s *AdminService) hash(token string) string {
	return util.HmacSHA256(s.sessionSecret, token)
}

func normalizeDisplayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return config.DefaultAdminDisplayName
	}
	if r := []rune(name); len(r) > maxDisplayNameLength {
		name = string(r[:maxDisplayNameLength])
	}
	return name
}
