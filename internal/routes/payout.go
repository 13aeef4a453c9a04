package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/creatorhub/escrow-ledger/internal/payout"
)

// RegisterPayoutRoutes wires payout request and admin decision endpoints.
func RegisterPayoutRoutes(r fiber.Router, h *payout.Handler) {
	r.Post("/payouts", h.Create)
	r.Get("/payouts", h.List)
	r.Get("/payouts/:id", h.Get)
	r.Post("/payouts/:id/decision", h.Decide)
}
