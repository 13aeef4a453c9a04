package payout

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/creatorhub/escrow-ledger/internal/apperr"
	"github.com/creatorhub/escrow-ledger/internal/middleware"
)

// Handler exposes payout HTTP endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	p, err := h.service.CreatePayoutRequest(c.UserContext(), middleware.CurrentActor(c), req.Amount, req.Note)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(p)
}

func (h *Handler) List(c *fiber.Ctx) error {
	payouts, err := h.service.ListByUser(c.UserContext(), middleware.CurrentActor(c), c.Query("user_id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"payouts": payouts})
}

func (h *Handler) Get(c *fiber.Ctx) error {
	p, err := h.service.Get(c.UserContext(), middleware.CurrentActor(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(p)
}

type decisionRequest struct {
	Approve         bool   `json:"approve"`
	RejectionReason string `json:"rejection_reason"`
}

// Decide applies an admin's approve or reject decision.
func (h *Handler) Decide(c *fiber.Ctx) error {
	var req decisionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	p, err := h.service.ApprovePayout(c.UserContext(), middleware.CurrentActor(c), c.Params("id"), req.Approve, req.RejectionReason)
	if err != nil {
		return err
	}
	return c.JSON(p)
}
