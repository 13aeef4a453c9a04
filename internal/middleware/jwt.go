package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/creatorhub/escrow-ledger/internal/actor"
	"github.com/creatorhub/escrow-ledger/internal/auth"
)

const actorLocal = "actor"

// JWTAuth validates bearer access tokens and stores the caller as an actor.Actor in locals.
func JWTAuth(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < 7 || !strings.EqualFold(authz[:7], "bearer ") {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		act, err := auth.Parse(strings.TrimSpace(authz[7:]), key)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		c.Locals(actorLocal, act)
		return c.Next()
	}
}

// CurrentActor returns the authenticated caller, or the zero Actor on unauthenticated routes.
func CurrentActor(c *fiber.Ctx) actor.Actor {
	act, _ := c.Locals(actorLocal).(actor.Actor)
	return act
}
