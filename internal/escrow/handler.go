package escrow

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/creatorhub/escrow-ledger/internal/apperr"
	"github.com/creatorhub/escrow-ledger/internal/middleware"
)

// Handler exposes escrow HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an escrow HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type escrowResponse struct {
	Escrow     Escrow      `json:"escrow"`
	Milestones []Milestone `json:"milestones,omitempty"`
}

// Create opens an escrow on behalf of the authenticated payer.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req CreateInput
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	act := middleware.CurrentActor(c)
	if req.PayerID == "" {
		req.PayerID = act.UserID
	}
	e, milestones, err := h.service.Create(c.UserContext(), act, req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(escrowResponse{Escrow: e, Milestones: milestones})
}

func (h *Handler) Get(c *fiber.Ctx) error {
	act := middleware.CurrentActor(c)
	e, err := h.service.Get(c.UserContext(), act, c.Params("id"))
	if err != nil {
		return err
	}
	milestones, err := h.service.Milestones(c.UserContext(), act, e.ID)
	if err != nil {
		return err
	}
	return c.JSON(escrowResponse{Escrow: e, Milestones: milestones})
}

type fundRequest struct {
	PaymentMethod string `json:"payment_method"`
}

func (h *Handler) Fund(c *fiber.Ctx) error {
	var req fundRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	e, err := h.service.Fund(c.UserContext(), middleware.CurrentActor(c), c.Params("id"), req.PaymentMethod)
	if err != nil {
		return err
	}
	return c.JSON(escrowResponse{Escrow: e})
}

func (h *Handler) Refund(c *fiber.Ctx) error {
	e, err := h.service.Refund(c.UserContext(), middleware.CurrentActor(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(escrowResponse{Escrow: e})
}

type disputeRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Dispute(c *fiber.Ctx) error {
	var req disputeRequest
	_ = c.BodyParser(&req)
	e, err := h.service.MarkDisputed(c.UserContext(), middleware.CurrentActor(c), c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(escrowResponse{Escrow: e})
}

func (h *Handler) SubmitMilestone(c *fiber.Ctx) error {
	m, err := h.service.SubmitMilestone(c.UserContext(), middleware.CurrentActor(c), c.Params("id"), c.Params("mid"))
	if err != nil {
		return err
	}
	return c.JSON(m)
}

func (h *Handler) ReleaseMilestone(c *fiber.Ctx) error {
	e, m, err := h.service.ReleaseMilestone(c.UserContext(), middleware.CurrentActor(c), c.Params("id"), c.Params("mid"))
	if err != nil {
		return err
	}
	return c.JSON(escrowResponse{Escrow: e, Milestones: []Milestone{m}})
}

type rejectRequest struct {
	Feedback string `json:"feedback"`
}

func (h *Handler) RejectMilestone(c *fiber.Ctx) error {
	var req rejectRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	m, err := h.service.RejectMilestone(c.UserContext(), middleware.CurrentActor(c), c.Params("id"), c.Params("mid"), req.Feedback)
	if err != nil {
		return err
	}
	return c.JSON(m)
}
