package tip

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/creatorhub/escrow-ledger/internal/apperr"
	"github.com/creatorhub/escrow-ledger/internal/middleware"
)

// Handler exposes tip HTTP endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Create(c *fiber.Ctx) error {
	var req CreateInput
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	res, err := h.service.CreateTip(c.UserContext(), middleware.CurrentActor(c), req)
	if err != nil {
		return err
	}
	status := http.StatusCreated
	if res.Tip.Status != StatusCompleted {
		status = http.StatusAccepted
	}
	return c.Status(status).JSON(res)
}

func (h *Handler) Get(c *fiber.Ctx) error {
	t, err := h.service.Get(c.UserContext(), middleware.CurrentActor(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(t)
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Refund(c *fiber.Ctx) error {
	var req refundRequest
	_ = c.BodyParser(&req)
	t, err := h.service.RefundTip(c.UserContext(), middleware.CurrentActor(c), c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(t)
}
