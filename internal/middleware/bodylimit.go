package middleware

import (
	"net/http"
)

const (
	// DefaultMaxBodySize is the floor. Admin requests are small JSON
	// documents.
	DefaultMaxBodySize = 64 << 10
	// utf8MaxBytes is the widest encoding of one character.
	utf8MaxBytes = 4
)

// MessageBodyLimit sizes a request limit that still fits a chat message of
// maxChars characters plus its JSON envelope, so no payload the chat
// protocol accepts is refused at the HTTP layer.
func MessageBodyLimit(maxChars int) int64 {
	size := int64(maxChars)*utf8MaxBytes + 4<<10
	if size < DefaultMaxBodySize {
		return DefaultMaxBodySize
	}
	return size
}

type BodyLimitMiddleware struct {
	maxSize int64
}

func NewBodyLimitMiddleware(maxSize int64) *BodyLimitMiddleware {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	return &BodyLimitMiddleware{maxSize: maxSize}
}

func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && r.ContentLength > m.maxSize {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": "Request body too large",
			})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, m.maxSize)
		next.ServeHTTP(w, r)
	})
}
