package steps

import (
	"context"
	"fmt"
	"time"
)

// StepTypeDelay — тип шага паузы.
const StepTypeDelay = "delay"

// maxDelay — верхняя граница паузы одного шага.
const maxDelay = time.Hour

// DelayStep приостанавливает workflow на заданное время.
//
// Пауза прерывается отменой контекста (таймаут шага, отмена run).
//
// Опции (первая заданная побеждает):
//
//	duration      "1.5s", "250ms" — строка time.ParseDuration
//	duration_sec  10
//	duration_ms   5000
//
// Результат: {"duration_ms": 5000}.
type DelayStep struct{}

// NewDelayStep создаёт DelayStep.
func NewDelayStep() *DelayStep {
	return &DelayStep{}
}

// Execute ждёт заданное время или отмены ctx.
func (s *DelayStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	d, err := delayFromOptions(req.Options)
	if err != nil {
		return nil, err
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return NewResponse(map[string]any{"duration_ms": d.Milliseconds()}), nil
	case <-ctx.Done():
		return nil, ContextError(ctx)
	}
}

func delayFromOptions(options map[string]any) (time.Duration, error) {
	var d time.Duration
	switch {
	case GetConfigString(options, "duration") != "":
		parsed, err := time.ParseDuration(GetConfigString(options, "duration"))
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, StepTypeDelay, err)
		}
		d = parsed
	case GetConfigInt(options, "duration_sec") != 0:
		d = time.Duration(GetConfigInt(options, "duration_sec")) * time.Second
	case GetConfigInt(options, "duration_ms") != 0:
		d = time.Duration(GetConfigInt(options, "duration_ms")) * time.Millisecond
	default:
		return 0, fmt.Errorf("%w: %s: one of duration, duration_sec, duration_ms is required",
			ErrInvalidConfig, StepTypeDelay)
	}

	if d <= 0 || d > maxDelay {
		return 0, fmt.Errorf("%w: %s: duration %s out of range (0, %s]", ErrInvalidConfig, StepTypeDelay, d, maxDelay)
	}
	return d, nil
}
