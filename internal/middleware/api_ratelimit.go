package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/northlane/livechat-server/internal/audit"
	apperrors "github.com/northlane/livechat-server/internal/errors"
	"github.com/northlane/livechat-server/internal/httputil"
)

// APIRateLimit caps admin REST requests per client IP within one instance.
// A limit of zero or less disables it.
func APIRateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return audit.ClientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventRateLimitExceed, Reason: "admin_api"})
			httputil.WriteError(w, apperrors.RateLimitExceeded())
		}),
	)
}
