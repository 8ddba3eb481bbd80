package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// LoginRateLimit returns a fixed-window limiter keyed by client IP,
// intended for the login route only.  With a nil Redis client or a
// non-positive limit it is a pass-through, and any Redis error fails
// open: a broken limiter must never lock users out.
func LoginRateLimit(rdb *redis.Client, limit int, window time.Duration, log *logrus.Logger) echo.MiddlewareFunc {
	if rdb == nil || limit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}
	l := log.WithField("component", "ratelimit")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			key := fmt.Sprintf("login:%s", ip)
			ctx := c.Request().Context()

			n, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				l.WithError(err).Warn("redis error, skipping rate limit")
				return next(c)
			}
			if n == 1 {
				if err := rdb.Expire(ctx, key, window).Err(); err != nil {
					l.WithError(err).Warn("failed to set rate limit window")
				}
			}
			if n > int64(limit) {
				ttl, err := rdb.TTL(ctx, key).Result()
				if err != nil || ttl < 0 {
					ttl = window
				}
				c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"success": false,
					"error":   "Too many login attempts, please try again later",
				})
			}
			return next(c)
		}
	}
}
