package mq

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/stepflow/internal/domain"
)

// DefaultPublishTimeout — таймаут публикации одного события.
const DefaultPublishTimeout = 5 * time.Second

// RunEventPayload — payload событий run.started и run.finished.
type RunEventPayload struct {
	RunID        string           `json:"runId"`
	WorkflowName string           `json:"workflowName"`
	Integration  string           `json:"integration,omitempty"`
	Status       domain.RunStatus `json:"status"`
	StepCount    int              `json:"stepCount"`
	FailedCount  int              `json:"failedCount"`
	AbortReason  string           `json:"abortReason,omitempty"`
	StartedAtMs  int64            `json:"startedAtMs"`
	EndedAtMs    int64            `json:"endedAtMs,omitempty"`
	DurationMs   int64            `json:"durationMs"`
}

// StepEventPayload — payload события step.finished.
type StepEventPayload struct {
	RunID        string            `json:"runId"`
	WorkflowName string            `json:"workflowName"`
	Index        int               `json:"index"`
	Step         domain.StepResult `json:"step"`
}

// NewRunEvent собирает payload события run.
func NewRunEvent(rec *domain.RunRecord) RunEventPayload {
	return RunEventPayload{
		RunID:        rec.RunID,
		WorkflowName: rec.WorkflowName,
		Integration:  rec.Integration,
		Status:       rec.Status,
		StepCount:    len(rec.Steps),
		FailedCount:  rec.FailedCount,
		AbortReason:  rec.AbortReason,
		StartedAtMs:  rec.StartedAtMs,
		EndedAtMs:    rec.EndedAtMs,
		DurationMs:   rec.DurationMs,
	}
}

// MessagePublisher — то, что умеет публиковать сообщения. Реализуется Publisher.
type MessagePublisher interface {
	Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error
}

// EventObserver публикует ход выполнения runs в ExchangeRuns.
//
// Реализует orchestrator.Observer. Ошибка публикации только логируется:
// недоступность брокера не влияет на выполнение workflow.
type EventObserver struct {
	pub     MessagePublisher
	timeout time.Duration
	logger  *slog.Logger
}

// NewEventObserver создаёт observer. timeout <= 0 — DefaultPublishTimeout.
func NewEventObserver(pub MessagePublisher, timeout time.Duration, logger *slog.Logger) *EventObserver {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventObserver{
		pub:     pub,
		timeout: timeout,
		logger:  logger.With("component", "events"),
	}
}

// RunStarted публикует run.started.
func (o *EventObserver) RunStarted(ctx context.Context, rec *domain.RunRecord) {
	o.publish(ctx, RoutingKeyRunStarted, NewMessage(MessageTypeRunStarted, NewRunEvent(rec)))
}

// StepFinished публикует step.finished.
func (o *EventObserver) StepFinished(ctx context.Context, rec *domain.RunRecord, step domain.StepResult) {
	payload := StepEventPayload{
		RunID:        rec.RunID,
		WorkflowName: rec.WorkflowName,
		Index:        len(rec.Steps) - 1,
		Step:         step,
	}
	o.publish(ctx, RoutingKeyStepFinished, NewMessage(MessageTypeStepFinished, payload))
}

// RunFinished публикует run.finished.
func (o *EventObserver) RunFinished(ctx context.Context, rec *domain.RunRecord) {
	o.publish(ctx, RoutingKeyRunFinished, NewMessage(MessageTypeRunFinished, NewRunEvent(rec)))
}

func (o *EventObserver) publish(ctx context.Context, key RoutingKey, msg *Message) {
	// Итог отменённого run тоже должен дойти до брокера.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	if err := o.pub.Publish(ctx, ExchangeRuns, key, msg); err != nil {
		o.logger.Warn("failed to publish run event",
			"routing_key", key,
			"message_id", msg.ID,
			"error", err,
		)
	}
}
