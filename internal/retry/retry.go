// Package retry повторяет операцию с экспоненциальной задержкой.
//
// Попытки нумеруются с 1. Задержка перед попыткой k+1 равна
// InitialDelay * 2^(k-1), без jitter. Перед первой попыткой и после
// последней задержки нет.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/shaiso/stepflow/internal/domain"
)

// Policy — параметры повторных попыток.
type Policy struct {
	// MaxAttempts — максимальное количество попыток, включая первую.
	// Значение <= 0 трактуется как 1.
	MaxAttempts int

	// InitialDelay — задержка перед второй попыткой.
	InitialDelay time.Duration

	// MaxDelay — верхняя граница задержки. 0 — без ограничения.
	MaxDelay time.Duration

	// OnRetry вызывается после неудачной попытки перед ожиданием.
	// attempt — номер упавшей попытки, next — задержка до следующей.
	OnRetry func(attempt int, err error, next time.Duration)
}

// FromDomain переводит domain.RetryPolicy в Policy.
// nil возвращает политику с одной попыткой.
func FromDomain(p *domain.RetryPolicy) Policy {
	if p == nil {
		return Policy{MaxAttempts: 1}
	}
	return Policy{
		MaxAttempts:  p.MaxAttempts,
		InitialDelay: p.InitialDelay(),
		MaxDelay:     p.MaxDelay(),
	}
}

// Attempts возвращает нормализованное количество попыток.
func (p Policy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Permanent помечает ошибку как неповторяемую: Do вернёт её без новых попыток.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do выполняет op до успеха или исчерпания попыток.
//
// При исчерпании возвращается ошибка последней попытки как есть.
// Отмена ctx во время ожидания возвращает ctx.Err() сразу.
func Do(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attempt := 0
	operation := func() error {
		attempt++
		return op(ctx, attempt)
	}

	notify := func(err error, next time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, next)
		}
	}

	return backoff.RetryNotify(operation, p.backOff(ctx), notify)
}

// WithRetry — обёртка над Do для операций, возвращающих значение.
func WithRetry[T any](ctx context.Context, maxAttempts int, initialDelay time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	p := Policy{MaxAttempts: maxAttempts, InitialDelay: initialDelay}

	err := Do(ctx, p, func(ctx context.Context, _ int) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// backOff строит детерминированный экспоненциальный backoff под политику.
func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	initial, maxInterval := p.InitialDelay, p.MaxDelay
	if maxInterval <= 0 {
		maxInterval = time.Duration(math.MaxInt64)
	}
	if initial > maxInterval {
		initial = maxInterval
	}

	exp := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.Attempts()-1)), ctx)
}
