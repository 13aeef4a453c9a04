package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

var errSentinel = errors.New("sentinel")

func TestKindOfSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("fund escrow: %w", Wrap(KindInvalidState, errSentinel, "escrow is not funded"))

	if KindOf(err) != KindInvalidState {
		t.Fatalf("expected invalid_state, got %s", KindOf(err))
	}
	if !errors.Is(err, errSentinel) {
		t.Fatalf("expected sentinel to remain reachable")
	}
	if HTTPStatus(err) != http.StatusConflict {
		t.Fatalf("expected 409, got %d", HTTPStatus(err))
	}
}

func TestGatewayRetryable(t *testing.T) {
	transient := Gateway(errors.New("rate limited"), true)
	terminal := Gateway(errors.New("card declined"), false)

	if !IsRetryable(transient) || IsRetryable(terminal) {
		t.Fatalf("unexpected retryable flags")
	}
	if HTTPStatus(transient) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for transient gateway error")
	}
	if HTTPStatus(terminal) != http.StatusBadGateway {
		t.Fatalf("expected 502 for terminal gateway error")
	}
}

func TestUntypedErrorIsInternal(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("expected internal kind")
	}
	if HTTPStatus(errors.New("boom")) != http.StatusInternalServerError {
		t.Fatalf("expected 500")
	}
	if Is(nil, KindNotFound) {
		t.Fatalf("nil must not match any kind")
	}
}
