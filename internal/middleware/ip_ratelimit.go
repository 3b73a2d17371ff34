package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/northlane/livechat-server/internal/audit"
	"github.com/northlane/livechat-server/internal/metrics"
)

// Limiter is implemented by service.RateLimiter (Redis, shared across
// instances) and MemoryRateLimiter.
type Limiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time)
}

// IPRateLimitMiddleware limits requests per client IP. The chat server puts
// it in front of the websocket upgrade so a single client cannot open
// connections in a loop.
type IPRateLimitMiddleware struct {
	limiter Limiter
	limit   int
	window  time.Duration
	keyFn   func(ip string) string
}

func NewIPRateLimitMiddleware(limiter Limiter, limit int, window time.Duration, keyFn func(ip string) string) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		keyFn:   keyFn,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := audit.ClientIP(r)
		allowed, resetAt := m.limiter.CheckLimit(r.Context(), m.keyFn(ip), m.limit, m.window)

		if !allowed {
			metrics.ConnectionsRejected.WithLabelValues("rate_limited").Inc()
			log.Warn().Str("ip", ip).Msg("connect rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventRateLimitExceed})

			secondsLeft := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secondsLeft))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "Too many requests. Please try again later.",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
