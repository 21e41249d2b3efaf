package steps

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry — реестр handler'ов по типу шага.
//
// Регистрация происходит при старте интеграции, после этого реестр
// только читается. Потокобезопасен.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewRegistry создаёт пустой реестр.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger.With("component", "registry"),
	}
}

// DefaultRegistry создаёт реестр со всеми встроенными шагами.
func DefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)

	r.Register(StepTypeDelay, NewDelayStep())
	r.Register(StepTypeHTTP, NewHTTPStep())
	r.Register(StepTypeTransform, NewTransformStep())

	return r
}

// Register связывает тип шага с handler'ом.
// Повторная регистрация перезаписывает предыдущий handler.
func (r *Registry) Register(stepType string, h Handler) {
	r.mu.Lock()
	_, exists := r.handlers[stepType]
	r.handlers[stepType] = h
	r.mu.Unlock()

	if exists {
		r.logger.Warn("step handler overwritten", "type", stepType)
	}
}

// Resolve возвращает handler по типу.
// Возвращает ErrUnknownStepType, если тип не зарегистрирован.
func (r *Registry) Resolve(stepType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.handlers[stepType]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStepType, stepType)
	}

	return h, nil
}

// Has проверяет, зарегистрирован ли тип.
func (r *Registry) Has(stepType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[stepType]
	return exists
}

// Types возвращает отсортированный список зарегистрированных типов.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Count возвращает количество зарегистрированных типов.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Unregister удаляет тип из реестра.
func (r *Registry) Unregister(stepType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, stepType)
}
