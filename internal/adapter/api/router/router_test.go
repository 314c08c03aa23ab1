package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"duochat/internal/adapter/api/handler"
	"duochat/internal/adapter/api/middleware"
	"duochat/internal/infrastructure/firebase"
	"duochat/internal/infrastructure/ratelimit"
	ws "duochat/internal/infrastructure/websocket"
)

type rejectAll struct{}

func (rejectAll) VerifyToken(ctx context.Context, token string) (*firebase.Identity, error) {
	return nil, errors.New("invalid token")
}

func newServer() *echo.Echo {
	handler.Setup(nil, nil, nil, nil, 0)
	manager := ws.NewManager(nil)
	handler.SetupHealthHandler(manager)

	e := echo.New()
	limiter := ratelimit.NewRateLimiter(nil, ratelimit.Policy{})
	Setup(e, middleware.NewAuthMiddleware(rejectAll{}), limiter, handler.NewWebSocketHandler(manager, []string{"*"}))
	return e
}

func TestSetupRegistersRoutes(t *testing.T) {
	e := newServer()

	routes := map[string]bool{}
	for _, r := range e.Routes() {
		routes[r.Method+" "+r.Path] = true
	}

	for _, want := range []string{
		"POST /v1/users",
		"GET /v1/users/me",
		"PUT /v1/users/me",
		"GET /v1/users/me/exists",
		"GET /v1/users/search",
		"GET /v1/friends",
		"POST /v1/friends",
		"DELETE /v1/friends/:uid",
		"GET /v1/chats",
		"GET /v1/chats/:chatId/messages",
		"POST /v1/chats/:chatId/messages",
		"POST /v1/chats/:chatId/images",
		"GET /v1/chats/:chatId/images",
		"GET /ws",
		"GET /health",
		"GET /metrics",
	} {
		assert.True(t, routes[want], "missing route %s", want)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	e := newServer()

	for _, target := range []string{"/v1/chats", "/v1/friends", "/v1/users/me", "/ws"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
}

func TestHealthIsPublic(t *testing.T) {
	e := newServer()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
