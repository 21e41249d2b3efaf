package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shaiso/stepflow/internal/engine"
)

// StepTypeTransform — тип шага трансформации.
const StepTypeTransform = "transform"

// TransformStep — шаг трансформации данных run.
//
// Опции:
//
//	{
//	    "pick": ["customerId", "plan"],
//	    "mappings": {
//	        "email": "{{ lower .Inputs.email }}",
//	        "tier": "{{ default \"basic\" .Inputs.tier }}",
//	        "address": {"city": "{{ .Inputs.city }}"}
//	    }
//	}
//
// pick копирует ключи входа как есть, mappings рендерятся поверх них.
// Строковый результат рендера, похожий на JSON-скаляр, объект или массив,
// декодируется (например "10" → int64(10)). Без pick и mappings шаг
// возвращает копию входа.
type TransformStep struct{}

// NewTransformStep создаёт новый TransformStep.
func NewTransformStep() *TransformStep {
	return &TransformStep{}
}

// Execute выполняет трансформацию.
func (s *TransformStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := ContextError(ctx); err != nil {
		return nil, err
	}

	pick, err := stringList(req.Options["pick"])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: pick: %v", ErrInvalidConfig, StepTypeTransform, err)
	}
	mappings := GetConfigMap(req.Options, "mappings")
	if mappings == nil {
		if m := GetConfigMapString(req.Options, "mappings"); m != nil {
			mappings = make(map[string]any, len(m))
			for k, v := range m {
				mappings[k] = v
			}
		}
	}

	if len(pick) == 0 && len(mappings) == 0 {
		return NewResponse(copyInput(req.Input)), nil
	}

	outputs := make(map[string]any, len(pick)+len(mappings))
	for _, key := range pick {
		if v, ok := req.Input[key]; ok {
			outputs[key] = v
		}
	}

	tmplCtx := engine.NewContext(req.Input, req.Options)
	for key, raw := range mappings {
		rendered, err := engine.RenderValue(raw, tmplCtx)
		if err != nil {
			return nil, fmt.Errorf("transform %s: %w", key, err)
		}
		outputs[key] = decodeRendered(rendered)
	}

	return NewResponse(outputs), nil
}

func copyInput(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = v
	}
	return out
}

func stringList(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list, got %T", raw)
	}
}

// decodeRendered приводит строки результата рендера к JSON-значениям.
// Вложенные map и slice обходятся рекурсивно.
func decodeRendered(v any) any {
	switch t := v.(type) {
	case string:
		return decodeScalar(t)
	case map[string]any:
		for k, item := range t {
			t[k] = decodeRendered(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = decodeRendered(item)
		}
		return t
	default:
		return v
	}
}

func decodeScalar(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil || dec.InputOffset() != int64(len(trimmed)) {
		return s
	}

	// строки в кавычках оставляем исходными
	if _, ok := out.(string); ok {
		return s
	}
	return normalizeNumbers(out)
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	default:
		return v
	}
}
