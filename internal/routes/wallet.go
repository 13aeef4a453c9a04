package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/creatorhub/escrow-ledger/internal/wallet"
)

// RegisterWalletRoutes wires the ledger read side and admin adjustments.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallet", h.Get)
	r.Get("/wallet/transactions", h.Transactions)
	r.Get("/wallet/integrity", h.Integrity)
	r.Post("/wallet/adjustments", h.Adjust)
}
