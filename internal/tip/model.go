package tip

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound       = errors.New("tip not found")
	ErrStatusConflict = errors.New("tip status changed concurrently")
)

// Bounds on a single tip.
var (
	MinAmount = decimal.New(50, -2)
	MaxAmount = decimal.NewFromInt(1000)
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusRefunded   Status = "REFUNDED"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusRefunded},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Tip is a one-shot payment from a fan to a creator. The platform fee is derived
// from Amount at completion and only exists as ledger entries.
type Tip struct {
	ID              string          `json:"id"`
	SenderID        string          `json:"sender_id"`
	RecipientID     string          `json:"recipient_id"`
	PostID          string          `json:"post_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Message         string          `json:"message,omitempty"`
	Status          Status          `json:"status"`
	GatewayChargeID string          `json:"gateway_charge_id,omitempty"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	RefundReason    string          `json:"refund_reason,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	RefundedAt      *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CreateInput is a tip request from the authenticated sender.
type CreateInput struct {
	RecipientID   string          `json:"recipient_id"`
	PostID        string          `json:"post_id"`
	Amount        decimal.Decimal `json:"amount"`
	Message       string          `json:"message"`
	PaymentMethod string          `json:"payment_method"`
}

// CreateResult carries the tip and, when the payment still needs the client, the secret to confirm it.
type CreateResult struct {
	Tip          Tip    `json:"tip"`
	ClientSecret string `json:"client_secret,omitempty"`
}
