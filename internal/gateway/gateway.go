package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/creatorhub/escrow-ledger/internal/apperr"
)

// ChargeStatus mirrors the lifecycle states reported by the payment processor.
type ChargeStatus string

const (
	StatusRequiresConfirmation ChargeStatus = "requires_confirmation"
	StatusRequiresCapture      ChargeStatus = "requires_capture"
	StatusProcessing           ChargeStatus = "processing"
	StatusSucceeded            ChargeStatus = "succeeded"
	StatusCanceled             ChargeStatus = "canceled"
)

// ErrUnknownOutcome marks a call whose result could not be observed (timeout, dropped connection).
// Such calls must be reconciled through webhooks rather than retried.
var ErrUnknownOutcome = errors.New("gateway outcome unknown")

// Error is a definite rejection returned by the processor.
type Error struct {
	Code      string
	Message   string
	Temporary bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %s: %s", e.Code, e.Message)
}

// HoldRequest authorizes funds with manual capture.
type HoldRequest struct {
	AmountMinor    int64
	Currency       string
	PaymentMethod  string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// CaptureRequest captures part of a held authorization.
type CaptureRequest struct {
	ChargeID       string
	AmountMinor    int64
	IdempotencyKey string
}

// ChargeRequest creates a one-shot charge. When Confirm is set the processor attempts
// the payment immediately with the stored payment method.
type ChargeRequest struct {
	AmountMinor    int64
	Currency       string
	PaymentMethod  string
	Confirm        bool
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// Charge is the processor's view of a payment.
type Charge struct {
	ID             string
	Status         ChargeStatus
	AmountMinor    int64
	CapturedMinor  int64
	ClientSecret   string
	PaymentMethod  string
	IdempotencyKey string
}

// RefundRequest refunds a settled charge. A zero amount refunds the remaining captured amount.
type RefundRequest struct {
	ChargeID       string
	AmountMinor    int64
	Reason         string
	IdempotencyKey string
}

// Refund is the processor's receipt for a refund.
type Refund struct {
	ID          string
	ChargeID    string
	AmountMinor int64
	Status      string
}

// PayoutRequest pushes funds to a connected payee account.
type PayoutRequest struct {
	AmountMinor        int64
	Currency           string
	DestinationAccount string
	IdempotencyKey     string
	Metadata           map[string]string
}

// Payout is the processor's view of an outbound transfer.
type Payout struct {
	ID          string
	Status      string
	AmountMinor int64
}

// Gateway represents a connector to the external payment processor. All amounts are minor units.
type Gateway interface {
	AuthorizeHold(ctx context.Context, req HoldRequest) (Charge, error)
	Capture(ctx context.Context, req CaptureRequest) (Charge, error)
	CancelHold(ctx context.Context, chargeID, idempotencyKey string) (Charge, error)
	CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error)
	Refund(ctx context.Context, req RefundRequest) (Refund, error)
	CreatePayout(ctx context.Context, req PayoutRequest) (Payout, error)
}

// Classify converts a gateway failure into a typed payment error. Definite rejections carry
// the processor's retry hint; anything else is treated as an unknown outcome.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return apperr.Gateway(gwErr, gwErr.Temporary)
	}
	if errors.Is(err, ErrUnknownOutcome) {
		return apperr.Gateway(err, false)
	}
	return apperr.Gateway(fmt.Errorf("%w: %v", ErrUnknownOutcome, err), false)
}
