package utils

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// CursorParams is a timestamp-cursor page request. Before is zero when the
// caller wants the newest page.
type CursorParams struct {
	Limit  int
	Before int64
}

// GetCursorParams extracts ?limit= and ?before= from the request.
func GetCursorParams(c echo.Context, defaultLimit int) CursorParams {
	if defaultLimit <= 0 || defaultLimit > MaxPageSize {
		defaultLimit = DefaultPageSize
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > MaxPageSize {
		limit = defaultLimit
	}

	before, _ := strconv.ParseInt(c.QueryParam("before"), 10, 64)
	if before < 0 {
		before = 0
	}

	return CursorParams{
		Limit:  limit,
		Before: before,
	}
}
