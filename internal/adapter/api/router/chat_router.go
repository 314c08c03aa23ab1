package router

import (
	"github.com/labstack/echo/v4"

	"duochat/internal/adapter/api/handler"
	"duochat/internal/adapter/api/middleware"
	"duochat/internal/infrastructure/ratelimit"
)

// SetupChatRouter sets up the REST side of chats. Live conversations go
// through /ws.
func SetupChatRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	chatHandler := handler.GetChatHandler()
	fileHandler := handler.GetFileHandler()

	chatGroup := e.Group("/v1/chats")
	chatGroup.Use(authMiddleware.Authenticate)

	api := middleware.RateLimit(limiter, ratelimit.ActionAPI)

	chatGroup.GET("", chatHandler.GetUserChats, api)
	chatGroup.GET("/:chatId/messages", chatHandler.GetChatMessages, api)
	chatGroup.GET("/:chatId/images", fileHandler.ListChatImages, api)

	// Sends are limited per uid inside the use case.
	chatGroup.POST("/:chatId/messages", chatHandler.SendMessage)
	chatGroup.POST("/:chatId/images", fileHandler.UploadChatImage, middleware.RateLimit(limiter, ratelimit.ActionUpload))
}
