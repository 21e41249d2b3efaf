package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает событие. Ошибка приводит к nack без requeue.
type Handler func(ctx context.Context, d *Delivery) error

// Delivery — доставленное событие.
type Delivery struct {
	Message Message
	Raw     amqp.Delivery
}

// ConsumerConfig — настройки Consumer.
type ConsumerConfig struct {
	// Queue — именованная очередь. Пусто — временная очередь наблюдателя,
	// привязанная к ExchangeRuns по Bindings.
	Queue Queue

	// Bindings — routing keys временной очереди. Пусто — все события.
	Bindings []RoutingKey

	Handler Handler

	// Prefetch — QoS канала. По умолчанию 1.
	Prefetch int
}

// Consumer читает события из очереди и подтверждает их вручную.
// Переживает redial соединения: после ReconnectNotify очередь и
// подписка создаются заново.
type Consumer struct {
	conn   *Connection
	logger *slog.Logger
	cfg    ConsumerConfig
}

var errDeliveriesClosed = errors.New("deliveries channel closed")

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		conn:   conn,
		logger: logger.With("component", "consumer"),
		cfg:    cfg,
	}
}

// Start блокируется до отмены ctx и возвращает ctx.Err().
func (c *Consumer) Start(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consume session ended, waiting for reconnect", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
		}
	}
}

// session — одна подписка на текущем канале соединения.
func (c *Consumer) session(ctx context.Context) error {
	deliveries, queue, err := c.subscribe()
	if err != nil {
		return err
	}
	c.logger.Info("consuming", "queue", queue, "bindings", c.cfg.Bindings)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			c.dispatch(ctx, raw)
		}
	}
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, Queue, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, "", errNoChannel
	}

	queue := c.cfg.Queue
	if queue == "" {
		q, err := declareWatchQueue(ch, c.cfg.Bindings)
		if err != nil {
			return nil, "", err
		}
		queue = q
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return nil, "", fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(string(queue), "", false, false, false, false, nil)
	if err != nil {
		return nil, "", fmt.Errorf("consume %s: %w", queue, err)
	}
	return deliveries, queue, nil
}

// dispatch декодирует событие, вызывает Handler и подтверждает доставку.
// Битые и необработанные сообщения отбрасываются без requeue.
func (c *Consumer) dispatch(ctx context.Context, raw amqp.Delivery) {
	msg, err := DecodeMessage(raw.Body)
	if err != nil {
		c.logger.Error("drop malformed message", "error", err, "body", string(raw.Body))
		_ = raw.Nack(false, false)
		return
	}

	if err := c.cfg.Handler(ctx, &Delivery{Message: msg, Raw: raw}); err != nil {
		c.logger.Error("handler failed", "message_id", msg.ID, "type", msg.Type, "error", err)
		_ = raw.Nack(false, false)
		return
	}
	_ = raw.Ack(false)
}
