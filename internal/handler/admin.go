package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/northlane/livechat-server/internal/audit"
	apperrors "github.com/northlane/livechat-server/internal/errors"
	"github.com/northlane/livechat-server/internal/httputil"
	"github.com/northlane/livechat-server/internal/middleware"
	"github.com/northlane/livechat-server/internal/service"
)

type AdminAuth interface {
	Login(ctx context.Context, password, displayName string) (*service.LoginResult, error)
	Logout(ctx context.Context, token string) error
}

type AdminHandler struct {
	adminService     AdminAuth
	authMiddleware   func(http.Handler) http.Handler
	csrfMiddleware   func(http.Handler) http.Handler
	loginRateLimiter *middleware.LoginRateLimiter
	chat             *ChatHandler
	isProduction     bool
}

func NewAdminHandler(
	adminService AdminAuth,
	authMiddleware, csrfMiddleware func(http.Handler) http.Handler,
	chat *ChatHandler,
	isProduction bool,
) *AdminHandler {
	return &AdminHandler{
		adminService:     adminService,
		authMiddleware:   authMiddleware,
		csrfMiddleware:   csrfMiddleware,
		loginRateLimiter: middleware.NewLoginRateLimiter(),
		chat:             chat,
		isProduction:     isProduction,
	}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(h.loginRateLimiter.Handler).Post("/api/login", h.Login)
	r.Post("/api/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)
		r.Use(h.csrfMiddleware)
		r.Get("/api/me", h.Me)
		r.Mount("/api/chat", h.chat.Routes())
	})

	return r
}

type loginRequest struct {
	Password    string `json:"password" validate:"required"`
	DisplayName string `json:"displayName" validate:"max=64"`
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.adminService.Login(r.Context(), req.Password, req.DisplayName)
	if errors.Is(err, service.ErrInvalidCredentials) {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventLoginFailure})
		httputil.WriteError(w, apperrors.Unauthorized("Invalid password"))
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("admin login error")
		httputil.WriteError(w, apperrors.Internal("Login failed"))
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventLoginSuccess, AdminID: result.Session.ID})

	middleware.SetAdminSessionCookie(w, result.Token, h.isProduction)
	writeJSON(w, http.StatusOK, map[string]any{
		"token":       result.Token,
		"displayName": result.Session.DisplayName,
		"expiresAt":   result.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.ExtractBearerToken(r)
	if token == "" {
		if cookie, err := r.Cookie(middleware.AdminSessionCookie); err == nil {
			token = cookie.Value
		}
	}

	if err := h.adminService.Logout(r.Context(), token); err != nil {
		log.Warn().Err(err).Msg("admin logout failed")
	} else if token != "" {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventLogout})
	}

	middleware.ClearAdminSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) Me(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetAdminSession(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          session.ID,
		"displayName": session.DisplayName,
		"expiresAt":   session.ExpiresAt.Format(time.RFC3339),
	})
}
