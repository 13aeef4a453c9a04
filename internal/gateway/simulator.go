package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Op names a simulator operation for failure injection.
type Op string

const (
	OpAuthorize Op = "authorize"
	OpCapture   Op = "capture"
	OpCancel    Op = "cancel"
	OpCharge    Op = "charge"
	OpRefund    Op = "refund"
	OpPayout    Op = "payout"
)

// Simulator is an in-process processor used in dev mode and tests. It enforces the
// authorize/capture bookkeeping a real processor would and replays idempotent requests.
type Simulator struct {
	mu            sync.Mutex
	charges       map[string]*Charge
	payouts       map[string]Payout
	refunds       map[string]Refund
	idempotent    map[string]any
	failures      map[Op][]error
	calls         map[Op]int
	confirmStatus ChargeStatus
}

// NewSimulator constructs a simulator that approves every request.
func NewSimulator() *Simulator {
	return &Simulator{
		charges:       make(map[string]*Charge),
		payouts:       make(map[string]Payout),
		refunds:       make(map[string]Refund),
		idempotent:    make(map[string]any),
		failures:      make(map[Op][]error),
		calls:         make(map[Op]int),
		confirmStatus: StatusSucceeded,
	}
}

// FailNext makes the next call of op return err.
func (s *Simulator) FailNext(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

// SetConfirmedChargeStatus controls the status returned for confirmed one-shot charges,
// e.g. StatusProcessing to exercise the asynchronous webhook path.
func (s *Simulator) SetConfirmedChargeStatus(status ChargeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmStatus = status
}

// Calls returns how many times op reached the simulator (including injected failures).
func (s *Simulator) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Charge returns a snapshot of a charge.
func (s *Simulator) Charge(id string) (Charge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.charges[id]
	if !ok {
		return Charge{}, false
	}
	return *c, true
}

func (s *Simulator) begin(op Op, key string) (any, bool, error) {
	s.calls[op]++
	if queued := s.failures[op]; len(queued) > 0 {
		s.failures[op] = queued[1:]
		return nil, false, queued[0]
	}
	if key == "" {
		return nil, false, nil
	}
	res, ok := s.idempotent[string(op)+":"+key]
	return res, ok, nil
}

func (s *Simulator) remember(op Op, key string, res any) {
	if key != "" {
		s.idempotent[string(op)+":"+key] = res
	}
}

func (s *Simulator) AuthorizeHold(_ context.Context, req HoldRequest) (Charge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok, err := s.begin(OpAuthorize, req.IdempotencyKey); err != nil {
		return Charge{}, err
	} else if ok {
		return res.(Charge), nil
	}
	if req.AmountMinor <= 0 {
		return Charge{}, &Error{Code: "invalid_amount", Message: "amount must be positive"}
	}
	if req.PaymentMethod == "" {
		return Charge{}, &Error{Code: "payment_method_required", Message: "a payment method is required for holds"}
	}
	c := &Charge{
		ID:             "pi_" + uuid.NewString(),
		Status:         StatusRequiresCapture,
		AmountMinor:    req.AmountMinor,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: req.IdempotencyKey,
	}
	s.charges[c.ID] = c
	s.remember(OpAuthorize, req.IdempotencyKey, *c)
	return *c, nil
}

func (s *Simulator) Capture(_ context.Context, req CaptureRequest) (Charge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok, err := s.begin(OpCapture, req.IdempotencyKey); err != nil {
		return Charge{}, err
	} else if ok {
		return res.(Charge), nil
	}
	c, ok := s.charges[req.ChargeID]
	if !ok {
		return Charge{}, &Error{Code: "resource_missing", Message: fmt.Sprintf("no such charge %s", req.ChargeID)}
	}
	if c.Status != StatusRequiresCapture {
		return Charge{}, &Error{Code: "charge_not_capturable", Message: fmt.Sprintf("charge is %s", c.Status)}
	}
	if req.AmountMinor <= 0 || c.CapturedMinor+req.AmountMinor > c.AmountMinor {
		return Charge{}, &Error{Code: "amount_too_large", Message: "capture exceeds the authorized amount"}
	}
	c.CapturedMinor += req.AmountMinor
	if c.CapturedMinor == c.AmountMinor {
		c.Status = StatusSucceeded
	}
	s.remember(OpCapture, req.IdempotencyKey, *c)
	return *c, nil
}

func (s *Simulator) CancelHold(_ context.Context, chargeID, idempotencyKey string) (Charge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok, err := s.begin(OpCancel, idempotencyKey); err != nil {
		return Charge{}, err
	} else if ok {
		return res.(Charge), nil
	}
	c, ok := s.charges[chargeID]
	if !ok {
		return Charge{}, &Error{Code: "resource_missing", Message: fmt.Sprintf("no such charge %s", chargeID)}
	}
	if c.Status == StatusCanceled {
		return *c, nil
	}
	c.Status = StatusCanceled
	s.remember(OpCancel, idempotencyKey, *c)
	return *c, nil
}

func (s *Simulator) CreateCharge(_ context.Context, req ChargeRequest) (Charge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok, err := s.begin(OpCharge, req.IdempotencyKey); err != nil {
		return Charge{}, err
	} else if ok {
		return res.(Charge), nil
	}
	if req.AmountMinor <= 0 {
		return Charge{}, &Error{Code: "invalid_amount", Message: "amount must be positive"}
	}
	c := &Charge{
		ID:             "pi_" + uuid.NewString(),
		Status:         StatusRequiresConfirmation,
		AmountMinor:    req.AmountMinor,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: req.IdempotencyKey,
	}
	c.ClientSecret = c.ID + "_secret_" + uuid.NewString()[:8]
	if req.Confirm && req.PaymentMethod != "" {
		c.Status = s.confirmStatus
		if c.Status == StatusSucceeded {
			c.CapturedMinor = c.AmountMinor
		}
	}
	s.charges[c.ID] = c
	s.remember(OpCharge, req.IdempotencyKey, *c)
	return *c, nil
}

func (s *Simulator) Refund(_ context.Context, req RefundRequest) (Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok, err := s.begin(OpRefund, req.IdempotencyKey); err != nil {
		return Refund{}, err
	} else if ok {
		return res.(Refund), nil
	}
	c, ok := s.charges[req.ChargeID]
	if !ok {
		return Refund{}, &Error{Code: "resource_missing", Message: fmt.Sprintf("no such charge %s", req.ChargeID)}
	}
	amount := req.AmountMinor
	if amount == 0 {
		amount = c.CapturedMinor
	}
	if amount <= 0 || amount > c.CapturedMinor {
		return Refund{}, &Error{Code: "amount_too_large", Message: "refund exceeds the captured amount"}
	}
	c.CapturedMinor -= amount
	r := Refund{ID: "re_" + uuid.NewString(), ChargeID: c.ID, AmountMinor: amount, Status: "succeeded"}
	s.refunds[r.ID] = r
	s.remember(OpRefund, req.IdempotencyKey, r)
	return r, nil
}

func (s *Simulator) CreatePayout(_ context.Context, req PayoutRequest) (Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok, err := s.begin(OpPayout, req.IdempotencyKey); err != nil {
		return Payout{}, err
	} else if ok {
		return res.(Payout), nil
	}
	if req.DestinationAccount == "" {
		return Payout{}, &Error{Code: "account_invalid", Message: "destination account is required"}
	}
	if req.AmountMinor <= 0 {
		return Payout{}, &Error{Code: "invalid_amount", Message: "amount must be positive"}
	}
	p := Payout{ID: "po_" + uuid.NewString(), Status: "in_transit", AmountMinor: req.AmountMinor}
	s.payouts[p.ID] = p
	s.remember(OpPayout, req.IdempotencyKey, p)
	return p, nil
}
