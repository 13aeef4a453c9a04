package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>" for every webhook delivery.
const SignatureHeader = "Gateway-Signature"

// DefaultTolerance bounds the accepted age of a signed delivery.
const DefaultTolerance = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrMalformedHeader  = errors.New("malformed webhook signature header")
	ErrInvalidSignature = errors.New("webhook signature mismatch")
	ErrTimestampExpired = errors.New("webhook timestamp outside tolerance")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// EventType is the processor's event name.
type EventType string

const (
	EventPaymentSucceeded EventType = "payment_intent.succeeded"
	EventPaymentFailed    EventType = "payment_intent.payment_failed"
	EventDisputeCreated   EventType = "charge.dispute.created"
	EventPayoutPaid       EventType = "payout.paid"
	EventPayoutFailed     EventType = "payout.failed"
	EventAccountUpdated   EventType = "account.updated"
)

// Event is a verified webhook notification. Data.Object is decoded lazily per event type.
type Event struct {
	ID      string    `json:"id"`
	Type    EventType `json:"type"`
	Created int64     `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// PaymentObject is the payload of payment_intent.* events.
type PaymentObject struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Status           string            `json:"status"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// DisputeObject is the payload of charge.dispute.* events.
type DisputeObject struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Reason        string `json:"reason"`
}

// PayoutObject is the payload of payout.* events.
type PayoutObject struct {
	ID             string            `json:"id"`
	Status         string            `json:"status"`
	FailureMessage string            `json:"failure_message"`
	Metadata       map[string]string `json:"metadata"`
}

// AccountObject is the payload of account.updated.
type AccountObject struct {
	ID               string `json:"id"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// Decode unmarshals the event object into v.
func (e Event) Decode(v any) error {
	if len(e.Data.Object) == 0 {
		return ErrMalformedEvent
	}
	if err := json.Unmarshal(e.Data.Object, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

// Sign produces the header value for payload, as the processor would.
func Sign(payload []byte, secret string, ts time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), computeSignature(payload, secret, ts.Unix()))
}

// VerifySignature checks the header against payload using the shared secret. Any v1 entry
// may match so the processor can rotate secrets.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return ErrMissingSignature
	}
	var (
		ts   int64
		sigs []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrMalformedHeader
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrMalformedHeader
			}
			ts = parsed
		case "v1":
			sigs = append(sigs, value)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return ErrMalformedHeader
	}

	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return ErrTimestampExpired
		}
	}

	expected := []byte(computeSignature(payload, secret, ts))
	for _, sig := range sigs {
		if hmac.Equal(expected, []byte(sig)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// ConstructEvent verifies the signature and decodes the event envelope.
func ConstructEvent(payload []byte, header, secret string, tolerance time.Duration, now time.Time) (Event, error) {
	if err := VerifySignature(payload, header, secret, tolerance, now); err != nil {
		return Event{}, err
	}
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.ID == "" || evt.Type == "" {
		return Event{}, ErrMalformedEvent
	}
	return evt, nil
}

func computeSignature(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
