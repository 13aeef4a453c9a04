package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain failure so callers can tell terminal errors from retryable ones.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindInvalidState
	KindConflict
	KindPaymentGateway
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidState:
		return "invalid_state"
	case KindConflict:
		return "conflict"
	case KindPaymentGateway:
		return "payment_gateway"
	default:
		return "internal"
	}
}

// Error is the typed error returned by every domain service.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation reports a malformed or out-of-range request.
func Validation(format string, args ...any) error { return newf(KindValidation, format, args...) }

// NotFound reports a missing escrow, milestone, tip, payout or user.
func NotFound(format string, args ...any) error { return newf(KindNotFound, format, args...) }

// Forbidden reports an actor that is not the authorized party.
func Forbidden(format string, args ...any) error { return newf(KindForbidden, format, args...) }

// InvalidState reports an action attempted from a status that does not permit it.
func InvalidState(format string, args ...any) error { return newf(KindInvalidState, format, args...) }

// Conflict reports a violated uniqueness invariant.
func Conflict(format string, args ...any) error { return newf(KindConflict, format, args...) }

// Wrap attaches a kind to an underlying sentinel or driver error.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Gateway wraps a failure reported by the external payment gateway.
func Gateway(err error, retryable bool) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindPaymentGateway, Retryable: retryable, Err: err}
}

// KindOf returns the kind carried by err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether the caller may retry the same request.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// HTTPStatus maps err onto the status code returned to API callers.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidState, KindConflict:
		return http.StatusConflict
	case KindPaymentGateway:
		if IsRetryable(err) {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
