package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorhub/escrow-ledger/internal/logging"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, exchange+"/"+key)
	f.published = append(f.published, msg)
	return nil
}

func TestAMQPNotifierPublishesJSON(t *testing.T) {
	ch := &fakeChannel{}
	n := &AMQPNotifier{ch: ch, logger: logging.Discard()}

	err := n.Notify(context.Background(), Message{UserID: "u1", Type: TypeTipReceived, Title: "Tip", Metadata: map[string]string{"tip_id": "t1"}})
	require.NoError(t, err)
	require.Len(t, ch.published, 1)

	msg := ch.published[0]
	assert.Equal(t, Exchange+"/"+RoutingKey, ch.keys[0])
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, TypeTipReceived, msg.Type)

	var decoded Message
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, "t1", decoded.Metadata["tip_id"])
}

func TestAMQPNotifierSurfacesPublishError(t *testing.T) {
	n := &AMQPNotifier{ch: &fakeChannel{err: errors.New("channel closed")}, logger: logging.Discard()}
	err := n.Notify(context.Background(), Message{UserID: "u1", Type: TypePayoutCompleted})
	assert.Error(t, err)
}
