package steps

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Ошибки шагов.
var (
	// ErrUnknownStepType — тип шага не зарегистрирован в реестре.
	ErrUnknownStepType = errors.New("unknown step type")

	// ErrInvalidConfig — невалидная конфигурация шага.
	ErrInvalidConfig = errors.New("invalid step config")

	// ErrStepTimeout — шаг превысил таймаут.
	ErrStepTimeout = errors.New("step execution timeout")

	// ErrStepCancelled — выполнение шага отменено.
	ErrStepCancelled = errors.New("step execution cancelled")
)

// ContextError переводит ошибку ctx в ошибку шага: истёкший дедлайн
// попытки — ErrStepTimeout, отмена — ErrStepCancelled. nil, если ctx жив.
func ContextError(ctx context.Context) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrStepTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrStepCancelled, err)
	}
}

// Handler — исполнитель одного типа шага.
//
// Handler получает общие входные данные workflow и опции шага,
// возвращает непрозрачный результат или ошибку.
// Handler должен проверять ctx.Done() на долгих операциях.
type Handler interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc позволяет использовать обычную функцию как Handler.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// Execute вызывает f(ctx, req).
func (f HandlerFunc) Execute(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Request — входные данные для выполнения шага.
type Request struct {
	// StepID — идентификатор шага (ID или Name из StepDef).
	StepID string

	// Type — тип шага.
	Type string

	// Input — общие входные данные run. Handler не должен их изменять.
	Input map[string]any

	// Options — опции шага из StepDef, передаются как есть.
	Options map[string]any

	// Timeout — таймаут одной попытки. 0 — без таймаута.
	Timeout time.Duration
}

// Response — результат выполнения шага.
type Response struct {
	// Outputs — полезная нагрузка, попадает в StepResult.Result.
	Outputs map[string]any
}

// NewRequest создаёт новый Request.
func NewRequest(stepID, stepType string, input, options map[string]any, timeout time.Duration) *Request {
	if input == nil {
		input = make(map[string]any)
	}
	if options == nil {
		options = make(map[string]any)
	}
	return &Request{
		StepID:  stepID,
		Type:    stepType,
		Input:   input,
		Options: options,
		Timeout: timeout,
	}
}

// NewResponse создаёт новый Response с outputs.
func NewResponse(outputs map[string]any) *Response {
	if outputs == nil {
		outputs = make(map[string]any)
	}
	return &Response{
		Outputs: outputs,
	}
}

// EmptyResponse возвращает пустой Response.
func EmptyResponse() *Response {
	return &Response{
		Outputs: make(map[string]any),
	}
}

// GetConfigString извлекает строковое значение из опций.
func GetConfigString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetConfigInt извлекает числовое значение из опций.
func GetConfigInt(config map[string]any, key string) int {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// GetConfigBool извлекает булево значение из опций.
func GetConfigBool(config map[string]any, key string, defaultVal bool) bool {
	if v, ok := config[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// GetConfigMap извлекает map из опций.
func GetConfigMap(config map[string]any, key string) map[string]any {
	if v, ok := config[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}

// GetConfigMapString извлекает map[string]string из опций.
func GetConfigMapString(config map[string]any, key string) map[string]string {
	if v, ok := config[key]; ok {
		switch m := v.(type) {
		case map[string]string:
			return m
		case map[string]any:
			result := make(map[string]string)
			for k, val := range m {
				if s, ok := val.(string); ok {
					result[k] = s
				}
			}
			return result
		}
	}
	return nil
}
