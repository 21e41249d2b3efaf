package domain

import "time"

// WorkflowDef — определение рабочего процесса.
//
// Шаги выполняются строго в порядке объявления, без параллелизма.
// Один и тот же WorkflowDef может запускаться многократно, каждый запуск
// порождает свой RunRecord.
type WorkflowDef struct {
	// Name — человекочитаемый идентификатор workflow (например, "onboarding_workflow").
	Name string `json:"name" yaml:"name"`

	// Description — описание назначения workflow.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Integration — интеграция, чей реестр handler'ов исполняет шаги
	// ("documents", "orchestration"). Пустое значение — интеграция по умолчанию.
	Integration string `json:"integration,omitempty" yaml:"integration,omitempty"`

	// CriticalByDefault — критичность шагов, у которых Critical не задан явно.
	// Документный workflow по умолчанию некритичен, оркестрационный — критичен.
	CriticalByDefault bool `json:"criticalByDefault" yaml:"critical_by_default"`

	// Steps — упорядоченный список шагов.
	Steps []StepDef `json:"steps" yaml:"steps"`
}

// StepDef — определение шага в workflow.
type StepDef struct {
	// ID — необязательный идентификатор шага, попадает в StepResult.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Name — человекочитаемое имя шага.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Type — тег, по которому из реестра выбирается handler
	// ("generate", "compress", "api_call", "ai_processing", ...).
	Type string `json:"type" yaml:"type"`

	// Options — непрозрачная конфигурация, передаётся handler'у как есть.
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`

	// Critical — падение критичного шага прерывает workflow.
	// Nil означает WorkflowDef.CriticalByDefault.
	Critical *bool `json:"critical,omitempty" yaml:"critical,omitempty"`

	// TimeoutSec — таймаут одного вызова handler'а.
	// 0 — таймаут executor'а по умолчанию.
	TimeoutSec int `json:"timeoutSec,omitempty" yaml:"timeout_sec,omitempty"`

	// Retry — политика повторных попыток для этого шага.
	// Переопределяет политику executor'а.
	Retry *RetryPolicy `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// RetryPolicy — политика повторных попыток.
//
// Задержка перед попыткой k+1 равна InitialDelayMs * 2^(k-1).
type RetryPolicy struct {
	// MaxAttempts — максимальное количество попыток (включая первую).
	MaxAttempts int `json:"maxAttempts,omitempty" yaml:"max_attempts,omitempty"`

	// InitialDelayMs — задержка перед второй попыткой в миллисекундах.
	InitialDelayMs int `json:"initialDelayMs,omitempty" yaml:"initial_delay_ms,omitempty"`

	// MaxDelayMs — верхняя граница задержки. 0 — без ограничения.
	MaxDelayMs int `json:"maxDelayMs,omitempty" yaml:"max_delay_ms,omitempty"`
}

// InitialDelay возвращает начальную задержку как time.Duration.
func (p *RetryPolicy) InitialDelay() time.Duration {
	return time.Duration(p.InitialDelayMs) * time.Millisecond
}

// MaxDelay возвращает верхнюю границу задержки как time.Duration.
func (p *RetryPolicy) MaxDelay() time.Duration {
	return time.Duration(p.MaxDelayMs) * time.Millisecond
}

// IsCritical определяет критичность шага с учётом значения по умолчанию workflow.
func (w *WorkflowDef) IsCritical(step StepDef) bool {
	if step.Critical != nil {
		return *step.Critical
	}
	return w.CriticalByDefault
}

// Timeout возвращает таймаут шага. 0 — не задан.
func (s StepDef) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// Label возвращает имя шага для логов: Name, ID или Type.
func (s StepDef) Label() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.ID != "":
		return s.ID
	default:
		return s.Type
	}
}

// Bool возвращает указатель на значение. Удобно для StepDef.Critical.
func Bool(v bool) *bool {
	return &v
}
