package integrations

import (
	"context"
	"fmt"

	"github.com/shaiso/stepflow/internal/steps"
)

// OptionSimulateFailure — опция шага, заставляющая handler упасть.
// Используется для проверки поведения workflow при отказах.
const OptionSimulateFailure = "simulate_failure"

// vendorHandler — handler шага интеграции.
//
// local проверяет опции и строит результат локального режима.
// Если клиент не в локальном режиме, результатом становится ответ сервиса.
type vendorHandler struct {
	client *VendorClient
	path   string
	local  func(req *steps.Request) (map[string]any, error)
}

// Execute реализует steps.Handler.
func (h *vendorHandler) Execute(ctx context.Context, req *steps.Request) (*steps.Response, error) {
	if steps.GetConfigBool(req.Options, OptionSimulateFailure, false) {
		return nil, fmt.Errorf("%w: %s", ErrSimulatedFailure, req.Type)
	}

	out, err := h.local(req)
	if err != nil {
		return nil, err
	}
	if h.client.Offline() {
		return steps.NewResponse(out), nil
	}

	remote, err := h.client.Call(ctx, h.path, map[string]any{
		"step":    req.StepID,
		"type":    req.Type,
		"input":   req.Input,
		"options": req.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", h.client.Name(), req.Type, err)
	}
	return steps.NewResponse(remote), nil
}

// stringOption возвращает строковую опцию или def.
func stringOption(req *steps.Request, key, def string) string {
	if v := steps.GetConfigString(req.Options, key); v != "" {
		return v
	}
	return def
}

// stringsOption возвращает список строк из опций.
func stringsOption(req *steps.Request, key string) []string {
	switch v := req.Options[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// requireOption возвращает обязательную строковую опцию.
func requireOption(req *steps.Request, key string) (string, error) {
	v := steps.GetConfigString(req.Options, key)
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", steps.ErrInvalidConfig, key)
	}
	return v, nil
}

// stepRef возвращает идентификатор шага для локальных URL.
func stepRef(req *steps.Request) string {
	if req.StepID != "" {
		return req.StepID
	}
	return req.Type
}
