package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func TestConstructEvent(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"id":"evt_1","type":"payout.paid","created":1700000000,"data":{"object":{"id":"po_1","status":"paid"}}}`)
	header := Sign(payload, testSecret, now)

	evt, err := ConstructEvent(payload, header, testSecret, DefaultTolerance, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, EventPayoutPaid, evt.Type)

	var obj PayoutObject
	require.NoError(t, evt.Decode(&obj))
	assert.Equal(t, "po_1", obj.ID)
}

func TestVerifySignatureFailures(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"id":"evt_1","type":"payout.paid"}`)
	header := Sign(payload, testSecret, now)

	assert.ErrorIs(t, VerifySignature(payload, "", testSecret, DefaultTolerance, now), ErrMissingSignature)
	assert.ErrorIs(t, VerifySignature(payload, "garbage", testSecret, DefaultTolerance, now), ErrMalformedHeader)
	assert.ErrorIs(t, VerifySignature([]byte(`{"id":"evt_2"}`), header, testSecret, DefaultTolerance, now), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(payload, header, "other", DefaultTolerance, now), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(payload, header, testSecret, DefaultTolerance, now.Add(10*time.Minute)), ErrTimestampExpired)
}

func TestVerifySignatureAcceptsAnyV1(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"id":"evt_1","type":"payout.paid"}`)
	current := Sign(payload, testSecret, now)
	_, v1, _ := cutV1(current)

	header := "t=1700000000,v1=deadbeef,v1=" + v1
	assert.NoError(t, VerifySignature(payload, header, testSecret, DefaultTolerance, now))
}

func TestConstructEventRejectsEnvelopeWithoutType(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"id":"evt_1"}`)
	_, err := ConstructEvent(payload, Sign(payload, testSecret, now), testSecret, DefaultTolerance, now)
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func cutV1(header string) (string, string, bool) {
	for i := 0; i+3 <= len(header); i++ {
		if header[i:i+3] == "v1=" {
			return header[:i], header[i+3:], true
		}
	}
	return header, "", false
}
