package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/identity-kv/internal/core/ports"
)

type RateLimitMiddleware struct {
	rateLimiter ports.RateLimiterService
	logger      *logrus.Logger
}

func NewRateLimitMiddleware(rateLimiter ports.RateLimiterService, logger *logrus.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{rateLimiter: rateLimiter, logger: logger}
}

// Handler limits requests per client IP. A nil limiter disables limiting.
func (r *RateLimitMiddleware) Handler() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if r.rateLimiter == nil {
				return next(c)
			}
			key := c.RealIP()
			if key == "" {
				return next(c)
			}

			allowed, remaining, limit, reset, rlErr := r.rateLimiter.Allow(c.Request().Context(), key)
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if rlErr != nil {
				if r.logger != nil {
					r.logger.WithError(rlErr).WithField("client", key).Warn("rate limiter error; allowing request (fail-open)")
				}
				return next(c)
			}

			if !allowed {
				retryAfter := int(time.Until(reset).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				if r.logger != nil {
					r.logger.WithFields(logrus.Fields{"client": key, "path": c.Request().URL.Path, "retry_after": retryAfter}).Warn("rate limit exceeded")
				}
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
