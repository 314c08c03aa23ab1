package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"duochat/internal/infrastructure/firebase"
	"duochat/pkg/errors"
	"duochat/pkg/response"
)

const (
	ContextUID     = "uid"
	ContextEmail   = "email"
	ContextName    = "name"
	ContextPicture = "picture"
)

type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*firebase.Identity, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

// Authenticate accepts "Authorization: Bearer <idToken>". Browsers cannot set
// headers on a websocket handshake, so ?token= is accepted as well.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		idToken, err := bearerToken(c)
		if err != nil {
			return response.Error(c, err)
		}

		identity, err := m.verifier.VerifyToken(c.Request().Context(), idToken)
		if err != nil {
			return response.Error(c, errors.Unauthorized("Invalid or expired token", err))
		}

		c.Set(ContextUID, identity.UID)
		c.Set(ContextEmail, identity.Email)
		c.Set(ContextName, identity.Name)
		c.Set(ContextPicture, identity.Picture)

		return next(c)
	}
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if token := c.QueryParam("token"); token != "" {
			return token, nil
		}
		return "", errors.Unauthorized("Authorization header is required", nil)
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errors.Unauthorized("Invalid authorization format", nil)
	}

	return parts[1], nil
}

// UID returns the authenticated caller set by Authenticate.
func UID(c echo.Context) string {
	uid, _ := c.Get(ContextUID).(string)
	return uid
}
