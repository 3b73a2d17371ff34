package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/northlane/livechat-server/internal/audit"
	apperrors "github.com/northlane/livechat-server/internal/errors"
	"github.com/northlane/livechat-server/internal/httputil"
	"github.com/northlane/livechat-server/internal/model"
)

type contextKey string

const (
	AdminSessionContextKey contextKey = "adminSession"
	cookieAuthContextKey   contextKey = "cookieAuth"
)

// AdminAuthenticator resolves an admin bearer token. It returns nil, nil for
// unknown or expired tokens.
type AdminAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*model.AdminSession, error)
}

func GetAdminSession(ctx context.Context) *model.AdminSession {
	if session, ok := ctx.Value(AdminSessionContextKey).(*model.AdminSession); ok {
		return session
	}
	return nil
}

// IsCookieAuth reports whether the admin was authenticated by session cookie
// rather than a bearer token.
func IsCookieAuth(ctx context.Context) bool {
	v, _ := ctx.Value(cookieAuthContextKey).(bool)
	return v
}

type AdminAuthMiddleware struct {
	auth AdminAuthenticator
}

func NewAdminAuthMiddleware(auth AdminAuthenticator) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{auth: auth}
}

func (m *AdminAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractBearerToken(r)
		viaCookie := false
		if token == "" {
			if cookie, err := r.Cookie(AdminSessionCookie); err == nil && cookie.Value != "" {
				token = cookie.Value
				viaCookie = true
			}
		}

		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		session, err := m.auth.Authenticate(r.Context(), token)
		if err != nil {
			log.Error().Err(err).Msg("admin auth middleware: database error")
			httputil.WriteError(w, apperrors.Database(err))
			return
		}

		if session == nil {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure})
			httputil.WriteError(w, apperrors.InvalidToken("Invalid or expired token"))
			return
		}

		ctx := context.WithValue(r.Context(), AdminSessionContextKey, session)
		ctx = context.WithValue(ctx, cookieAuthContextKey, viaCookie)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractBearerToken reads the Authorization header, falling back to the
// token query parameter for clients that cannot set headers on a websocket
// handshake.
func ExtractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}

	return r.URL.Query().Get("token")
}
