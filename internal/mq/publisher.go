package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher публикует события через общий канал Connection.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

var _ MessagePublisher = (*Publisher)(nil)

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger.With("component", "publisher")}
}

// Publish сериализует msg и отправляет его persistent-сообщением.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, key RoutingKey, msg *Message) error {
	pub, err := publishing(msg)
	if err != nil {
		return err
	}

	err = p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return ch.PublishWithContext(ctx, string(exchange), string(key), false, false, pub)
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", key, exchange, err)
	}

	p.logger.Debug("event published", "routing_key", key, "message_id", msg.ID)
	return nil
}

// publishing собирает AMQP-сообщение из конверта.
func publishing(msg *Message) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Body:         body,
	}, nil
}
