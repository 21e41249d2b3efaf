package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/engine"
	"github.com/shaiso/stepflow/internal/retry"
	"github.com/shaiso/stepflow/internal/steps"
	"github.com/shaiso/stepflow/internal/telemetry"
	"github.com/shaiso/stepflow/internal/worker"
)

// Store — хранилище завершённых runs. Реализуется repo.RunStore.
type Store interface {
	Put(ctx context.Context, rec *domain.RunRecord) error
}

// Runner выполняет workflow одной интеграции.
//
// Runner не хранит состояния между запусками, кроме списка активных runs,
// и допускает любое количество конкурентных вызовов Run.
type Runner struct {
	integration string
	registry    *steps.Registry
	executor    *worker.Executor
	store       Store
	observers   observers
	active      *activeRuns
	logger      *slog.Logger
	now         func() time.Time
}

// Config — конфигурация Runner.
type Config struct {
	// Integration — имя интеграции, попадает в RunRecord.Integration.
	Integration string

	// Registry — реестр handler'ов интеграции (обязательно).
	Registry *steps.Registry

	// Store — история runs (обязательно).
	Store Store

	// StepTimeout — таймаут попытки для шагов без TimeoutSec. 0 — без таймаута.
	StepTimeout time.Duration

	// Retry — политика retry для шагов без своей Retry.
	Retry retry.Policy

	// Observers — получатели событий run (метрики, RabbitMQ).
	Observers []Observer

	// Logger
	Logger *slog.Logger
}

// NewRunner создаёт новый Runner.
func NewRunner(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Integration != "" {
		logger = logger.With("integration", cfg.Integration)
	}

	return &Runner{
		integration: cfg.Integration,
		registry:    cfg.Registry,
		executor: worker.New(worker.Config{
			Resolver: cfg.Registry,
			Timeout:  cfg.StepTimeout,
			Retry:    cfg.Retry,
			Logger:   logger,
		}),
		store:     cfg.Store,
		observers: observers(cfg.Observers),
		active:    newActiveRuns(),
		logger:    logger,
		now:       time.Now,
	}
}

// Integration возвращает имя интеграции.
func (r *Runner) Integration() string {
	return r.integration
}

// Registry возвращает реестр handler'ов.
func (r *Runner) Registry() *steps.Registry {
	return r.registry
}

// Run выполняет шаги def по порядку и возвращает итоговую запись.
//
// Невалидное определение (нет шагов, пустой или незарегистрированный тип)
// возвращает ErrInvalidWorkflow: ни один шаг не выполняется, ничего не сохраняется.
//
// Run останавливается после упавшего критичного шага, неизвестного типа
// или отмены ctx. Итоговая запись сохраняется в Store в любом случае.
// Ошибка Store возвращается вместе с записью.
func (r *Runner) Run(ctx context.Context, def domain.WorkflowDef, input map[string]any) (*domain.RunRecord, error) {
	if err := engine.Validate(&def, r.registry); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWorkflow, err)
	}
	if input == nil {
		input = make(map[string]any)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	rec := domain.NewRunRecord(id.String(), def.Name, r.integration, r.now())
	logger := telemetry.WithWorkflow(telemetry.WithRunID(r.logger, rec.RunID), def.Name)
	ctx = telemetry.WithLogger(ctx, logger)

	r.active.add(rec)
	defer r.active.remove(rec.RunID)

	logger.Info("run started", "steps", len(def.Steps))
	r.observers.runStarted(ctx, r.active.snapshot(rec))

	abortReason := r.runSteps(ctx, &def, input, rec, logger)

	r.active.update(rec, func(rec *domain.RunRecord) {
		rec.Finish(abortReason, r.now())
	})

	logger.Info("run finished",
		"status", rec.Status,
		"failed_steps", rec.FailedCount,
		"executed_steps", len(rec.Steps),
		"abort_reason", rec.AbortReason,
		"duration_ms", rec.DurationMs,
	)
	r.observers.runFinished(ctx, r.active.snapshot(rec))

	// Отмена run не должна мешать сохранению его итога.
	if err := r.store.Put(context.WithoutCancel(ctx), rec); err != nil {
		logger.Error("failed to store run", "error", err)
		return rec, fmt.Errorf("store run: %w", err)
	}

	return rec, nil
}

// runSteps выполняет шаги и возвращает причину досрочной остановки.
func (r *Runner) runSteps(ctx context.Context, def *domain.WorkflowDef, input map[string]any, rec *domain.RunRecord, logger *slog.Logger) string {
	for i, step := range def.Steps {
		stepLogger := telemetry.WithStep(logger, i, step.Type)
		res, err := r.executor.Execute(telemetry.WithLogger(ctx, stepLogger), step, input)

		r.active.update(rec, func(rec *domain.RunRecord) {
			rec.AppendStep(res)
		})
		r.observers.stepFinished(ctx, r.active.snapshot(rec), res)

		switch {
		case errors.Is(err, steps.ErrStepCancelled):
			stepLogger.Warn("run cancelled")
			return domain.AbortCancelled

		case errors.Is(err, steps.ErrUnknownStepType):
			stepLogger.Error("run aborted: handler disappeared from registry")
			return domain.AbortUnknownStep

		case res.Failed() && def.IsCritical(step):
			stepLogger.Warn("run aborted: critical step failed", "error", res.Error)
			return domain.AbortCriticalStep
		}
	}
	return ""
}

// Active возвращает копию выполняющегося run.
func (r *Runner) Active(runID string) (*domain.RunRecord, error) {
	rec, ok := r.active.get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotActive, runID)
	}
	return rec, nil
}

// ActiveRuns возвращает копии выполняющихся runs, от новых к старым.
func (r *Runner) ActiveRuns() []domain.RunRecord {
	return r.active.list()
}

// ActiveCount возвращает количество выполняющихся runs.
func (r *Runner) ActiveCount() int {
	return r.active.count()
}
