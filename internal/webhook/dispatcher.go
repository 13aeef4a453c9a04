package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/creatorhub/escrow-ledger/internal/apperr"
	"github.com/creatorhub/escrow-ledger/internal/directory"
	"github.com/creatorhub/escrow-ledger/internal/escrow"
	"github.com/creatorhub/escrow-ledger/internal/gateway"
	"github.com/creatorhub/escrow-ledger/internal/payout"
	"github.com/creatorhub/escrow-ledger/internal/tip"
)

// HandlerFunc processes one verified gateway event.
type HandlerFunc func(ctx context.Context, evt gateway.Event) error

// Outcome of a single dispatched event.
type Outcome string

const (
	OutcomeHandled Outcome = "handled"
	OutcomeIgnored Outcome = "ignored"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Result reports what happened to one event of a delivery.
type Result struct {
	EventID string            `json:"event_id"`
	Type    gateway.EventType `json:"type"`
	Outcome Outcome           `json:"outcome"`
	Error   string            `json:"error,omitempty"`
}

// Dispatcher maps event types to handlers. Unregistered types are logged and ignored.
type Dispatcher struct {
	handlers map[gateway.EventType]HandlerFunc
	logger   *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{handlers: make(map[gateway.EventType]HandlerFunc), logger: logger}
}

// Register binds h to typ, replacing any previous handler.
func (d *Dispatcher) Register(typ gateway.EventType, h HandlerFunc) {
	d.handlers[typ] = h
}

// Dispatch runs every event independently; one failing event never stops the rest.
// Events for unknown records or in a state the event no longer applies to are skipped,
// since redelivery would not change the answer.
func (d *Dispatcher) Dispatch(ctx context.Context, events ...gateway.Event) []Result {
	results := make([]Result, 0, len(events))
	for _, evt := range events {
		res := Result{EventID: evt.ID, Type: evt.Type}
		h, ok := d.handlers[evt.Type]
		if !ok {
			d.logger.Info("webhook event ignored", slog.String("event_id", evt.ID), slog.String("type", string(evt.Type)))
			res.Outcome = OutcomeIgnored
			results = append(results, res)
			continue
		}

		err := d.run(ctx, h, evt)
		switch {
		case err == nil:
			res.Outcome = OutcomeHandled
		case apperr.Is(err, apperr.KindNotFound), apperr.Is(err, apperr.KindInvalidState), errors.Is(err, gateway.ErrMalformedEvent):
			d.logger.Warn("webhook event skipped", slog.String("event_id", evt.ID), slog.String("type", string(evt.Type)), slog.Any("error", err))
			res.Outcome = OutcomeSkipped
			res.Error = err.Error()
		default:
			d.logger.Error("webhook event failed", slog.String("event_id", evt.ID), slog.String("type", string(evt.Type)), slog.Any("error", err))
			res.Outcome = OutcomeFailed
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results
}

func (d *Dispatcher) run(ctx context.Context, h HandlerFunc, evt gateway.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("webhook handler panicked")
			d.logger.Error("webhook handler panic", slog.String("event_id", evt.ID), slog.Any("panic", r))
		}
	}()
	return h(ctx, evt)
}

// Tips is the tip flow as seen by payment events.
type Tips interface {
	CompleteTipByCharge(ctx context.Context, chargeID, tipID string) (tip.Tip, error)
	FailTip(ctx context.Context, chargeID, tipID, reason string) (tip.Tip, error)
}

// Escrows is the escrow flow as seen by dispute events.
type Escrows interface {
	MarkDisputedByCharge(ctx context.Context, chargeID, reason string) (escrow.Escrow, error)
}

// Payouts is the payout flow as seen by payout events.
type Payouts interface {
	CompletePayout(ctx context.Context, gatewayPayoutID, payoutID string) (payout.Payout, error)
	FailPayout(ctx context.Context, gatewayPayoutID, payoutID, reason string) (payout.Payout, error)
}

// Accounts receives payee account capability changes.
type Accounts interface {
	UpdatePayeeAccount(ctx context.Context, accountID string, onboardingComplete, payoutsEnabled bool) (directory.PayeeAccount, error)
}

// NewGatewayDispatcher registers the handlers for every gateway event the money flows consume.
func NewGatewayDispatcher(tips Tips, escrows Escrows, payouts Payouts, accounts Accounts, logger *slog.Logger) *Dispatcher {
	d := NewDispatcher(logger)

	d.Register(gateway.EventPaymentSucceeded, func(ctx context.Context, evt gateway.Event) error {
		var obj gateway.PaymentObject
		if err := evt.Decode(&obj); err != nil {
			return err
		}
		_, err := tips.CompleteTipByCharge(ctx, obj.ID, obj.Metadata["tip_id"])
		return err
	})

	d.Register(gateway.EventPaymentFailed, func(ctx context.Context, evt gateway.Event) error {
		var obj gateway.PaymentObject
		if err := evt.Decode(&obj); err != nil {
			return err
		}
		reason := "payment failed"
		if obj.LastPaymentError != nil && obj.LastPaymentError.Message != "" {
			reason = obj.LastPaymentError.Message
		}
		_, err := tips.FailTip(ctx, obj.ID, obj.Metadata["tip_id"], reason)
		return err
	})

	d.Register(gateway.EventDisputeCreated, func(ctx context.Context, evt gateway.Event) error {
		var obj gateway.DisputeObject
		if err := evt.Decode(&obj); err != nil {
			return err
		}
		_, err := escrows.MarkDisputedByCharge(ctx, obj.PaymentIntent, obj.Reason)
		return err
	})

	d.Register(gateway.EventPayoutPaid, func(ctx context.Context, evt gateway.Event) error {
		var obj gateway.PayoutObject
		if err := evt.Decode(&obj); err != nil {
			return err
		}
		_, err := payouts.CompletePayout(ctx, obj.ID, obj.Metadata["payout_id"])
		return err
	})

	d.Register(gateway.EventPayoutFailed, func(ctx context.Context, evt gateway.Event) error {
		var obj gateway.PayoutObject
		if err := evt.Decode(&obj); err != nil {
			return err
		}
		reason := obj.FailureMessage
		if reason == "" {
			reason = "payout failed at gateway"
		}
		_, err := payouts.FailPayout(ctx, obj.ID, obj.Metadata["payout_id"], reason)
		return err
	})

	d.Register(gateway.EventAccountUpdated, func(ctx context.Context, evt gateway.Event) error {
		var obj gateway.AccountObject
		if err := evt.Decode(&obj); err != nil {
			return err
		}
		_, err := accounts.UpdatePayeeAccount(ctx, obj.ID, obj.DetailsSubmitted, obj.PayoutsEnabled)
		if errors.Is(err, directory.ErrNotFound) {
			return apperr.Wrap(apperr.KindNotFound, err, "account "+obj.ID)
		}
		return err
	})

	return d
}

// Parse verifies the delivery signature and decodes either a single event or a batch.
func Parse(payload []byte, header, secret string, tolerance time.Duration, now time.Time) ([]gateway.Event, error) {
	if firstByte(payload) != '[' {
		evt, err := gateway.ConstructEvent(payload, header, secret, tolerance, now)
		if err != nil {
			return nil, err
		}
		return []gateway.Event{evt}, nil
	}

	if err := gateway.VerifySignature(payload, header, secret, tolerance, now); err != nil {
		return nil, err
	}
	var events []gateway.Event
	if err := json.Unmarshal(payload, &events); err != nil {
		return nil, errors.Join(gateway.ErrMalformedEvent, err)
	}
	for _, evt := range events {
		if evt.ID == "" || evt.Type == "" {
			return nil, gateway.ErrMalformedEvent
		}
	}
	return events, nil
}

func firstByte(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return c
	}
	return 0
}
