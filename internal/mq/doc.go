// Package mq публикует события выполнения workflow в RabbitMQ.
//
// Структура:
//   - connection.go — соединение с reconnect и graceful shutdown
//   - topology.go   — обменник stepflow.runs и очереди
//   - message.go    — конверт Message, DecodeMessage, ParsePayload
//   - publisher.go  — публикация persistent-сообщений
//   - events.go     — EventObserver: события run для orchestrator
//   - consumer.go   — потребление событий (stepflow events watch)
//
// Routing keys (topic exchange stepflow.runs):
//   - run.started    — run начат
//   - step.finished  — шаг завершён (completed или failed)
//   - run.finished   — run завершён, payload содержит итоговый статус
package mq
