package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// TipRateLimit caps tip creation per sender per minute using a Redis counter. Without Redis,
// or when Redis errors, requests pass through.
func TipRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 30
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject := CurrentActor(c).UserID
		if subject == "" {
			subject = c.IP()
		}
		key := "rl:tip:" + subject
		// The window is set in the same transaction as the increment, so a counter never
		// outlives it even when an earlier expire was lost.
		var incr *redis.IntCmd
		_, err := cache.TxPipelined(c.UserContext(), func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(c.UserContext(), key)
			pipe.ExpireNX(c.UserContext(), key, time.Minute)
			return nil
		})
		if err != nil {
			return c.Next()
		}
		if incr.Val() > int64(maxPerMin) {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many tips, try again later")
		}
		return c.Next()
	}
}
