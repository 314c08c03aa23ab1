package handler

import (
	"github.com/labstack/echo/v4"

	"duochat/internal/adapter/api/middleware"
	"duochat/internal/usecase"
	"duochat/pkg/errors"
	"duochat/pkg/response"
)

type UserHandler struct {
	userService UserService
}

func NewUserHandler(userService UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

type createProfileRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=60"`
	Username    string `json:"username" validate:"required,username"`
}

type updateProfileRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=60"`
	Username    string `json:"username" validate:"required,username"`
}

// CreateProfile registers the authenticated Firebase user under a username.
func (h *UserHandler) CreateProfile(c echo.Context) error {
	var req createProfileRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	email, _ := c.Get(middleware.ContextEmail).(string)
	photo, _ := c.Get(middleware.ContextPicture).(string)

	user, err := h.userService.CreateProfile(c.Request().Context(), middleware.UID(c), usecase.CreateProfileInput{
		DisplayName: req.DisplayName,
		Username:    req.Username,
		Email:       email,
		PhotoURL:    photo,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, user)
}

func (h *UserHandler) ProfileExists(c echo.Context) error {
	exists, err := h.userService.ProfileExists(c.Request().Context(), middleware.UID(c))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]bool{
		"exists": exists,
	})
}

func (h *UserHandler) GetProfile(c echo.Context) error {
	user, err := h.userService.GetProfile(c.Request().Context(), middleware.UID(c))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, user)
}

func (h *UserHandler) UpdateProfile(c echo.Context) error {
	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	user, err := h.userService.UpdateProfile(c.Request().Context(), middleware.UID(c), usecase.UpdateProfileInput{
		DisplayName: req.DisplayName,
		Username:    req.Username,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, user)
}

// SearchUsers resolves ?username= to a public profile.
func (h *UserHandler) SearchUsers(c echo.Context) error {
	username := c.QueryParam("username")
	if username == "" {
		return response.Error(c, errors.BadRequest("username query parameter is required", nil))
	}

	user, err := h.userService.SearchByUsername(c.Request().Context(), username)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, user)
}
