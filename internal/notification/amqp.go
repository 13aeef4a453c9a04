package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	Exchange   = "notifications"
	Queue      = "notification_queue"
	RoutingKey = "payments"
)

// publisher is the subset of *amqp.Channel used for delivery.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes notifications as persistent JSON messages for the notification service.
type AMQPNotifier struct {
	ch     publisher
	logger *slog.Logger
}

// DeclareTopology declares the durable exchange and queue the notification service consumes.
func DeclareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(Queue, RoutingKey, Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// NewAMQPNotifier builds a notifier publishing on ch.
func NewAMQPNotifier(ch *amqp.Channel, logger *slog.Logger) *AMQPNotifier {
	return &AMQPNotifier{ch: ch, logger: logger}
}

func (n *AMQPNotifier) Notify(ctx context.Context, message Message) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err = n.ch.PublishWithContext(ctx, Exchange, RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         message.Type,
		Body:         body,
	})
	if err != nil {
		n.logger.Error("publish notification failed", slog.String("type", message.Type), slog.String("user_id", message.UserID), slog.Any("error", err))
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
