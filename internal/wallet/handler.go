package wallet

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/creatorhub/escrow-ledger/internal/apperr"
	"github.com/creatorhub/escrow-ledger/internal/ledger"
	"github.com/creatorhub/escrow-ledger/internal/middleware"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type walletResponse struct {
	UserID         string          `json:"user_id"`
	Balance        decimal.Decimal `json:"balance"`
	PendingBalance decimal.Decimal `json:"pending_balance"`
	Currency       string          `json:"currency"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type transactionResponse struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	ReferenceType string          `json:"reference_type,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type integrityResponse struct {
	UserID          string          `json:"user_id"`
	Valid           bool            `json:"valid"`
	WalletBalance   decimal.Decimal `json:"wallet_balance"`
	ComputedBalance decimal.Decimal `json:"computed_balance"`
	Difference      decimal.Decimal `json:"difference"`
}

// Get returns the caller's wallet, or another user's for admins via ?user_id.
func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.service.Wallet(c.UserContext(), middleware.CurrentActor(c), targetUser(c))
	if err != nil {
		return err
	}
	return c.JSON(walletResponse{
		UserID:         w.UserID,
		Balance:        w.Balance,
		PendingBalance: w.PendingBalance,
		Currency:       w.Currency,
		UpdatedAt:      w.UpdatedAt,
	})
}

// Transactions pages through history with ?limit and ?offset.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	txns, err := h.service.Transactions(c.UserContext(), middleware.CurrentActor(c), targetUser(c), c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return err
	}
	out := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionResponse(t))
	}
	return c.JSON(fiber.Map{"transactions": out})
}

// Integrity runs the reconciliation audit.
func (h *Handler) Integrity(c *fiber.Ctx) error {
	r, err := h.service.Integrity(c.UserContext(), middleware.CurrentActor(c), targetUser(c))
	if err != nil {
		return err
	}
	return c.JSON(integrityResponse{
		UserID:          r.UserID,
		Valid:           r.Valid,
		WalletBalance:   r.WalletBalance,
		ComputedBalance: r.ComputedBalance,
		Difference:      r.Difference,
	})
}

// Adjust posts a manual correction (admin).
func (h *Handler) Adjust(c *fiber.Ctx) error {
	var req AdjustInput
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	txn, err := h.service.Adjust(c.UserContext(), middleware.CurrentActor(c), req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toTransactionResponse(txn))
}

func targetUser(c *fiber.Ctx) string {
	if userID := c.Query("user_id"); userID != "" {
		return userID
	}
	return middleware.CurrentActor(c).UserID
}

func toTransactionResponse(t ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID,
		Type:          string(t.Type),
		Amount:        t.Amount,
		Description:   t.Description,
		ReferenceID:   t.ReferenceID,
		ReferenceType: string(t.ReferenceType),
		CreatedAt:     t.CreatedAt,
	}
}
