package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorhub/escrow-ledger/internal/apperr"
)

func TestSimulatorPartialCaptures(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()

	hold, err := sim.AuthorizeHold(ctx, HoldRequest{AmountMinor: 100_000, Currency: "usd", PaymentMethod: "pm_card", IdempotencyKey: "escrow-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusRequiresCapture, hold.Status)

	replay, err := sim.AuthorizeHold(ctx, HoldRequest{AmountMinor: 100_000, Currency: "usd", PaymentMethod: "pm_card", IdempotencyKey: "escrow-1"})
	require.NoError(t, err)
	assert.Equal(t, hold.ID, replay.ID, "idempotent authorize must return the same hold")

	c, err := sim.Capture(ctx, CaptureRequest{ChargeID: hold.ID, AmountMinor: 40_000, IdempotencyKey: "m-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusRequiresCapture, c.Status)

	_, err = sim.Capture(ctx, CaptureRequest{ChargeID: hold.ID, AmountMinor: 70_000, IdempotencyKey: "m-2"})
	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "amount_too_large", gwErr.Code)

	c, err = sim.Capture(ctx, CaptureRequest{ChargeID: hold.ID, AmountMinor: 60_000, IdempotencyKey: "m-3"})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, c.Status)
	assert.Equal(t, int64(100_000), c.CapturedMinor)
}

func TestSimulatorFailureInjection(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()
	sim.FailNext(OpPayout, &Error{Code: "insufficient_platform_funds", Message: "try later", Temporary: true})

	_, err := sim.CreatePayout(ctx, PayoutRequest{AmountMinor: 5_000, DestinationAccount: "acct_1"})
	require.Error(t, err)
	assert.Equal(t, 1, sim.Calls(OpPayout))

	p, err := sim.CreatePayout(ctx, PayoutRequest{AmountMinor: 5_000, DestinationAccount: "acct_1"})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
}

func TestSimulatorConfirmedChargeStatus(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator()

	c, err := sim.CreateCharge(ctx, ChargeRequest{AmountMinor: 1_000, PaymentMethod: "pm_card", Confirm: true})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, c.Status)

	sim.SetConfirmedChargeStatus(StatusProcessing)
	c, err = sim.CreateCharge(ctx, ChargeRequest{AmountMinor: 1_000, PaymentMethod: "pm_card", Confirm: true})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, c.Status)

	c, err = sim.CreateCharge(ctx, ChargeRequest{AmountMinor: 1_000})
	require.NoError(t, err)
	assert.Equal(t, StatusRequiresConfirmation, c.Status)
	assert.NotEmpty(t, c.ClientSecret)
}

func TestClassify(t *testing.T) {
	declined := Classify(&Error{Code: "card_declined", Message: "declined"})
	assert.Equal(t, apperr.KindPaymentGateway, apperr.KindOf(declined))
	assert.False(t, apperr.IsRetryable(declined))

	transient := Classify(&Error{Code: "rate_limit", Message: "slow down", Temporary: true})
	assert.True(t, apperr.IsRetryable(transient))

	timeout := Classify(context.DeadlineExceeded)
	assert.True(t, errors.Is(timeout, ErrUnknownOutcome))
	assert.False(t, apperr.IsRetryable(timeout))

	assert.NoError(t, Classify(nil))
}
