package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/retry"
	"github.com/shaiso/stepflow/internal/steps"
	"github.com/shaiso/stepflow/internal/telemetry"
)

// Resolver — источник handler'ов по типу шага. Реализуется steps.Registry.
type Resolver interface {
	Resolve(stepType string) (steps.Handler, error)
}

// Executor выполняет один шаг workflow.
//
// Executor не хранит состояния между вызовами и безопасен
// для конкурентного использования.
type Executor struct {
	resolver Resolver
	timeout  time.Duration
	retry    retry.Policy
	logger   *slog.Logger
}

// Config — конфигурация Executor.
type Config struct {
	// Resolver — реестр handler'ов (обязательно).
	Resolver Resolver

	// Timeout — таймаут одной попытки для шагов без TimeoutSec.
	// 0 — без таймаута.
	Timeout time.Duration

	// Retry — политика по умолчанию для шагов без своей Retry.
	// Нулевое значение — одна попытка.
	Retry retry.Policy

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Executor.
func New(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		resolver: cfg.Resolver,
		timeout:  cfg.Timeout,
		retry:    cfg.Retry,
		logger:   logger,
	}
}

// Execute выполняет шаг и всегда возвращает заполненный StepResult.
//
// Ошибка handler'а не возвращается как error: она записывается в
// StepResult.Error со статусом failed. Ненулевой error означает, что
// run должен быть остановлен:
//   - steps.ErrUnknownStepType — handler для типа не найден
//   - steps.ErrStepCancelled — ctx отменён до или во время шага
func (e *Executor) Execute(ctx context.Context, def domain.StepDef, input map[string]any) (domain.StepResult, error) {
	start := time.Now()
	res := domain.StepResult{
		StepID: def.ID,
		Name:   def.Name,
		Type:   def.Type,
	}
	// Логгер runner'а уже содержит step_type (telemetry.WithStep).
	logger := telemetry.LoggerOr(ctx, e.logger.With("step_type", def.Type)).With("step", def.Label())

	if err := ctx.Err(); err != nil {
		return e.fail(res, start, cancelledMessage), fmt.Errorf("%w: %v", steps.ErrStepCancelled, err)
	}

	handler, err := e.resolver.Resolve(def.Type)
	if err != nil {
		logger.Error("step handler not found")
		return e.fail(res, start, err.Error()), err
	}

	policy := e.retry
	if def.Retry != nil {
		policy = retry.FromDomain(def.Retry)
	}
	policy.OnRetry = func(attempt int, err error, next time.Duration) {
		logger.Warn("step attempt failed, retrying",
			"attempt", attempt,
			"next_delay", next,
			"error", err,
		)
	}

	timeout := def.Timeout()
	if timeout == 0 {
		timeout = e.timeout
	}

	req := steps.NewRequest(stepKey(def), def.Type, input, def.Options, timeout)

	var outputs map[string]any
	err = retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		res.Attempts = attempt
		out, err := invoke(ctx, handler, req, timeout)
		if err != nil {
			if !retryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		outputs = out
		return nil
	})

	switch {
	case err == nil:
		res.Status = domain.StepStatusCompleted
		res.Result = outputs
		e.stamp(&res, start)
		logger.Debug("step completed", "attempts", res.Attempts, "duration_ms", res.DurationMs)
		return res, nil

	case ctx.Err() != nil:
		logger.Warn("step cancelled", "attempts", res.Attempts)
		return e.fail(res, start, cancelledMessage), fmt.Errorf("%w: %v", steps.ErrStepCancelled, ctx.Err())

	default:
		logger.Warn("step failed", "attempts", res.Attempts, "error", err)
		return e.fail(res, start, err.Error()), nil
	}
}

// retryable: неверные опции и HTTP 4xx (кроме 429) повтором не исправить.
func retryable(err error) bool {
	if errors.Is(err, steps.ErrInvalidConfig) {
		return false
	}
	var httpErr *steps.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	return true
}

// invoke вызывает handler с таймаутом попытки и перехватом паники.
//
// Handler, игнорирующий ctx, не блокирует executor: по истечении
// таймаута результат попытки отбрасывается.
func invoke(ctx context.Context, h steps.Handler, req *steps.Request, timeout time.Duration) (map[string]any, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type reply struct {
		resp *steps.Response
		err  error
	}
	done := make(chan reply, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("%w: %v", ErrHandlerPanic, r)}
			}
		}()
		resp, err := h.Execute(callCtx, req)
		done <- reply{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if r.resp == nil || r.resp.Outputs == nil {
			return map[string]any{}, nil
		}
		return r.resp.Outputs, nil

	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", steps.ErrStepCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("%w after %s", steps.ErrStepTimeout, timeout)
	}
}

// fail заполняет результат упавшего шага.
func (e *Executor) fail(res domain.StepResult, start time.Time, msg string) domain.StepResult {
	if msg == "" {
		msg = "step failed without error message"
	}
	res.Status = domain.StepStatusFailed
	res.Error = msg
	res.Result = nil
	e.stamp(&res, start)
	return res
}

func (e *Executor) stamp(res *domain.StepResult, start time.Time) {
	now := time.Now()
	res.TimestampMs = now.UnixMilli()
	res.DurationMs = now.Sub(start).Milliseconds()
}

// stepKey — идентификатор шага для Request: ID, иначе Name.
func stepKey(def domain.StepDef) string {
	if def.ID != "" {
		return def.ID
	}
	return def.Name
}
