package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/creatorhub/escrow-ledger/internal/tip"
)

// RegisterTipRoutes wires tip endpoints. limiter guards creation only.
func RegisterTipRoutes(r fiber.Router, h *tip.Handler, limiter fiber.Handler) {
	r.Post("/tips", limiter, h.Create)
	r.Get("/tips/:id", h.Get)
	r.Post("/tips/:id/refund", h.Refund)
}
