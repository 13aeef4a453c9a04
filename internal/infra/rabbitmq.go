package infra

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQ holds the broker connection and the channel notifications publish on.
type RabbitMQ struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// NewRabbitMQ dials the broker and opens a channel.
func NewRabbitMQ(url string) (*RabbitMQ, error) {
	if url == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	return &RabbitMQ{Conn: conn, Channel: ch}, nil
}

// Close releases the channel and the connection.
func (r *RabbitMQ) Close() error {
	if r == nil {
		return nil
	}
	chErr := r.Channel.Close()
	if err := r.Conn.Close(); err != nil {
		return err
	}
	return chErr
}
