package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// ExchangeRuns — topic-обменник событий выполнения workflow.
const ExchangeRuns Exchange = "stepflow.runs"

// QueueHistory — durable очередь для внешних потребителей истории
// (аудит, аналитика). Получает только run.finished.
const QueueHistory Queue = "stepflow.history"

// Routing keys событий.
const (
	RoutingKeyRunStarted   RoutingKey = "run.started"
	RoutingKeyStepFinished RoutingKey = "step.finished"
	RoutingKeyRunFinished  RoutingKey = "run.finished"

	// RoutingKeyAll — шаблон подписки на все события.
	RoutingKeyAll RoutingKey = "#"
)

// SetupTopology объявляет обменник событий и очередь истории.
// Операция идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchange(ch); err != nil {
			return err
		}

		_, err := ch.QueueDeclare(
			string(QueueHistory), // name
			true,                 // durable
			false,                // delete when unused
			false,                // exclusive
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueHistory, err)
		}

		return bindQueue(ch, QueueHistory, RoutingKeyRunFinished)
	})
}

// declareExchange создаёт обменник событий.
func declareExchange(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		string(ExchangeRuns), // name
		"topic",              // type
		true,                 // durable
		false,                // auto-deleted
		false,                // internal
		false,                // no-wait
		nil,                  // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeRuns, err)
	}
	return nil
}

// declareWatchQueue создаёт временную очередь наблюдателя: имя выдаёт
// брокер, очередь удаляется вместе с соединением.
func declareWatchQueue(ch *amqp.Channel, keys []RoutingKey) (Queue, error) {
	if err := declareExchange(ch); err != nil {
		return "", err
	}

	q, err := ch.QueueDeclare(
		"",    // name (server-generated)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return "", fmt.Errorf("declare watch queue: %w", err)
	}

	if len(keys) == 0 {
		keys = []RoutingKey{RoutingKeyAll}
	}
	for _, key := range keys {
		if err := bindQueue(ch, Queue(q.Name), key); err != nil {
			return "", err
		}
	}

	return Queue(q.Name), nil
}

// bindQueue привязывает очередь к обменнику событий.
func bindQueue(ch *amqp.Channel, queue Queue, key RoutingKey) error {
	err := ch.QueueBind(
		string(queue),        // queue name
		string(key),          // routing key
		string(ExchangeRuns), // exchange
		false,                // no-wait
		nil,                  // arguments
	)
	if err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, ExchangeRuns, err)
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  stepflow RabbitMQ topology:

    stepflow.runs (topic)
    ├── stepflow.history [routing: run.finished]
    │       Consumer: external audit
    └── amq.gen-* (exclusive) [routing: # or --filter]
            Consumer: stepflow events watch
  `
}
