package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/victorivanov/courier/internal/redis"
)

// RateLimitMiddleware throttles a route group with a fixed window counter
// in Redis. Authenticated traffic is budgeted per user so one noisy sender
// cannot starve a shared NAT; anything before auth falls back to the client
// IP. Windows are scoped per route so a burst of sends does not lock a user
// out of acking reads.
func RateLimitMiddleware(rdb *redis.Client, limit int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			allowed, count, ttlMs, err := rdb.CheckRateLimit(
				c.Request().Context(), limiterKey(c), limit, window)
			if err != nil {
				// Redis being down must not take messaging down with it.
				return next(c)
			}

			writeRateHeaders(c, limit, count, ttlMs)

			if !allowed {
				// Ceiling in seconds; Retry-After of 0 would invite an
				// immediate retry inside the same window.
				retryAfter := (ttlMs + 999) / 1000
				c.Response().Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				return errorJSON(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, please try again later")
			}

			return next(c)
		}
	}
}

func limiterKey(c echo.Context) string {
	if uid, ok := c.Get("user_id").(int64); ok {
		return "rl:user:" + strconv.FormatInt(uid, 10) + ":" + c.Path()
	}
	return "rl:ip:" + c.RealIP() + ":" + c.Path()
}

func writeRateHeaders(c echo.Context, limit int, count, ttlMs int64) {
	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}
	resetAt := time.Now().Add(time.Duration(ttlMs) * time.Millisecond).Unix()

	h := c.Response().Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
}
