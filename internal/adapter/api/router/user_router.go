package router

import (
	"github.com/labstack/echo/v4"

	"duochat/internal/adapter/api/handler"
	"duochat/internal/adapter/api/middleware"
	"duochat/internal/infrastructure/ratelimit"
)

func SetupUserRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	userHandler := handler.GetUserHandler()
	friendHandler := handler.GetFriendHandler()

	users := e.Group("/v1/users")
	users.Use(authMiddleware.Authenticate)
	users.Use(middleware.RateLimit(limiter, ratelimit.ActionAPI))

	users.POST("", userHandler.CreateProfile)
	users.GET("/me", userHandler.GetProfile)
	users.PUT("/me", userHandler.UpdateProfile)
	users.GET("/me/exists", userHandler.ProfileExists)
	users.GET("/search", userHandler.SearchUsers)

	friends := e.Group("/v1/friends")
	friends.Use(authMiddleware.Authenticate)
	friends.Use(middleware.RateLimit(limiter, ratelimit.ActionAPI))

	friends.GET("", friendHandler.ListFriends)
	friends.POST("", friendHandler.AddFriend)
	friends.DELETE("/:uid", friendHandler.RemoveFriend)
}
