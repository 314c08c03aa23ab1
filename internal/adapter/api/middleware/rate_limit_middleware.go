package middleware

import (
	"fmt"
	"math"
	"strconv"

	"github.com/labstack/echo/v4"

	"duochat/internal/infrastructure/ratelimit"
	"duochat/pkg/errors"
	"duochat/pkg/logger"
	"duochat/pkg/response"
)

// RateLimit throttles requests per authenticated user, or per client IP
// before authentication, under the given action.
func RateLimit(limiter *ratelimit.RateLimiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := UID(c)
			if key == "" {
				key = "ip:" + c.RealIP()
			}

			if allowed, wait := limiter.Allow(key, action); !allowed {
				retry := int(math.Ceil(wait.Seconds()))
				logger.Warn("RATE LIMIT: %s exceeded %s (retry in %ds)", key, action, retry)

				c.Response().Header().Set("Retry-After", strconv.Itoa(retry))
				return response.Error(c, errors.TooManyRequests(fmt.Sprintf("Rate limit exceeded, retry in %d seconds", retry)))
			}

			return next(c)
		}
	}
}
