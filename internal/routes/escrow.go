package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/creatorhub/escrow-ledger/internal/escrow"
)

// RegisterEscrowRoutes wires escrow and milestone endpoints.
func RegisterEscrowRoutes(r fiber.Router, h *escrow.Handler) {
	g := r.Group("/escrows")
	g.Post("", h.Create)
	g.Get("/:id", h.Get)
	g.Post("/:id/fund", h.Fund)
	g.Post("/:id/refund", h.Refund)
	g.Post("/:id/dispute", h.Dispute)
	g.Post("/:id/milestones/:mid/submit", h.SubmitMilestone)
	g.Post("/:id/milestones/:mid/release", h.ReleaseMilestone)
	g.Post("/:id/milestones/:mid/reject", h.RejectMilestone)
}
