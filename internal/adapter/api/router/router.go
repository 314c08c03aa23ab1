package router

import (
	"github.com/labstack/echo/v4"

	"duochat/internal/adapter/api/handler"
	"duochat/internal/adapter/api/middleware"
	"duochat/internal/infrastructure/ratelimit"
)

func Setup(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter, wsHandler *handler.WebSocketHandler) {
	SetupUserRouter(e, authMiddleware, limiter)
	SetupChatRouter(e, authMiddleware, limiter)
	SetupWebSocketRouter(e, wsHandler, authMiddleware)
	SetupHealthRouter(e)
}
