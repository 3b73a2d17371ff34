package middleware

import (
	"net/http"

	"github.com/northlane/livechat-server/internal/config"
)

const AdminSessionCookie = "admin_session"

const adminCookiePath = "/admin"

func SetAdminSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AdminSessionCookie,
		Value:    token,
		Path:     adminCookiePath,
		MaxAge:   int(config.AdminSessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearAdminSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   AdminSessionCookie,
		Value:  "",
		Path:   adminCookiePath,
		MaxAge: -1,
	})
}
