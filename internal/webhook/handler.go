package webhook

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/creatorhub/escrow-ledger/internal/gateway"
)

// Handler receives signed gateway deliveries.
type Handler struct {
	dispatcher *Dispatcher
	secret     string
	tolerance  time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewHandler(dispatcher *Dispatcher, secret string, tolerance time.Duration, logger *slog.Logger) *Handler {
	if tolerance <= 0 {
		tolerance = gateway.DefaultTolerance
	}
	return &Handler{dispatcher: dispatcher, secret: secret, tolerance: tolerance, logger: logger, now: time.Now}
}

// Receive verifies the signature before anything is dispatched. A delivery with any failed
// event answers 500 so the gateway redelivers; handlers are idempotent.
func (h *Handler) Receive(c *fiber.Ctx) error {
	events, err := Parse(c.Body(), c.Get(gateway.SignatureHeader), h.secret, h.tolerance, h.now())
	if err != nil {
		h.logger.Warn("webhook rejected", slog.String("ip", c.IP()), slog.Any("error", err))
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	results := h.dispatcher.Dispatch(c.UserContext(), events...)
	status := http.StatusOK
	for _, r := range results {
		if r.Outcome == OutcomeFailed {
			status = http.StatusInternalServerError
			break
		}
	}
	return c.Status(status).JSON(fiber.Map{"received": len(events), "results": results})
}
