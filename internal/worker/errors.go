package worker

import "errors"

// Ошибки executor'а.
var (
	// ErrHandlerPanic — handler запаниковал во время выполнения.
	ErrHandlerPanic = errors.New("step handler panicked")
)

// cancelledMessage — текст ошибки шага, прерванного отменой run.
const cancelledMessage = "cancelled"
