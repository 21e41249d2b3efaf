package integrations

import "errors"

var (
	// ErrOffline — клиент в локальном режиме, сетевой вызов невозможен.
	ErrOffline = errors.New("vendor client is offline")

	// ErrInvalidResponse — ответ сервиса не является JSON-объектом.
	ErrInvalidResponse = errors.New("invalid vendor response")

	// ErrSimulatedFailure — шаг упал по опции simulate_failure.
	ErrSimulatedFailure = errors.New("simulated failure")

	// ErrTemplateNotFound — неизвестный шаблон документа.
	ErrTemplateNotFound = errors.New("template not found")
)
