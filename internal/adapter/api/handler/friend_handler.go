package handler

import (
	"github.com/labstack/echo/v4"

	"duochat/internal/adapter/api/middleware"
	"duochat/pkg/errors"
	"duochat/pkg/response"
)

type FriendHandler struct {
	userService UserService
}

func NewFriendHandler(userService UserService) *FriendHandler {
	return &FriendHandler{
		userService: userService,
	}
}

type addFriendRequest struct {
	FriendUID string `json:"friend_uid" validate:"required,max=128"`
}

func (h *FriendHandler) ListFriends(c echo.Context) error {
	friends, err := h.userService.ListFriends(c.Request().Context(), middleware.UID(c))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, friends)
}

func (h *FriendHandler) AddFriend(c echo.Context) error {
	var req addFriendRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	chatID, err := h.userService.AddFriend(c.Request().Context(), middleware.UID(c), req.FriendUID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]string{
		"friend_uid": req.FriendUID,
		"chat_id":    chatID,
	})
}

func (h *FriendHandler) RemoveFriend(c echo.Context) error {
	friendUID := c.Param("uid")
	if friendUID == "" {
		return response.Error(c, errors.BadRequest("Friend uid is required", nil))
	}

	if err := h.userService.RemoveFriend(c.Request().Context(), middleware.UID(c), friendUID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{
		"message": "Friend removed",
	})
}
