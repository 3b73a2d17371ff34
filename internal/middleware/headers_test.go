package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageBodyLimit(t *testing.T) {
	assert.Equal(t, int64(DefaultMaxBodySize), MessageBodyLimit(0))
	assert.Equal(t, int64(DefaultMaxBodySize), MessageBodyLimit(4000))
	assert.Equal(t, int64(100000*4+4096), MessageBodyLimit(100000))
}

func TestBodyLimitMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewBodyLimitMiddleware(16).Handler(next)

	t.Run("small body passes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`)))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("declared oversize body is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64))))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	t.Run("admin responses are not cached", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewSecurityHeadersMiddleware(false).Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))

		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'none'")
		assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
	})

	t.Run("production adds HSTS", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewSecurityHeadersMiddleware(true).Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))

		assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
	})
}
