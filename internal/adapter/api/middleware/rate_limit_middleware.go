package middleware

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"supportchat/internal/infrastructure/ratelimit"
	"supportchat/pkg/errors"
	"supportchat/pkg/logger"
	"supportchat/pkg/response"
)

// RateLimit throttles an action per client IP using the shared limiter.
func RateLimit(limiter *ratelimit.RateLimiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()

			allowed, wait := limiter.Allow(ip, action)
			if !allowed {
				logger.Warn("RATE LIMIT: Blocked %s from IP %s (retry in %v)", action, ip, wait)

				retryAfter := int(math.Ceil(wait.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				return response.Error(c, errors.TooManyRequests(fmt.Sprintf("Rate limit exceeded. Try again in %s", wait.Round(time.Second))))
			}

			return next(c)
		}
	}
}
