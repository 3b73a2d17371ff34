package handler

import (
	"net/http"
	"strconv"
)

const (
	DefaultLimit = 50
	// MaxSessionLimit bounds one page of the session list.
	MaxSessionLimit = 100
	// MaxMessageLimit is larger so most transcripts load in one page.
	MaxMessageLimit = 500
)

type PaginationParams struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit and offset. A missing or invalid limit falls
// back to DefaultLimit and a limit above maxLimit is clamped to it.
func ParsePagination(r *http.Request, maxLimit int) PaginationParams {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, maxLimit)

	if offset < 0 {
		offset = 0
	}

	return PaginationParams{
		Limit:  limit,
		Offset: offset,
	}
}
