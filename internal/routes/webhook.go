package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/creatorhub/escrow-ledger/internal/webhook"
)

// RegisterWebhookRoutes wires the gateway webhook receiver.
func RegisterWebhookRoutes(app *fiber.App, h *webhook.Handler) {
	app.Post("/webhooks/gateway", h.Receive)
}
