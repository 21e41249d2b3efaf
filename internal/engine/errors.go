package engine

import "errors"

// Ошибки валидации WorkflowDef.
var (
	// ErrEmptyName — workflow не имеет имени.
	ErrEmptyName = errors.New("workflow has empty name")

	// ErrEmptySteps — workflow не содержит шагов.
	ErrEmptySteps = errors.New("workflow has no steps")

	// ErrEmptyStepType — шаг не имеет типа.
	ErrEmptyStepType = errors.New("step has empty type")

	// ErrDuplicateStepID — несколько шагов с одинаковым ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrUnknownStepType — тип шага не зарегистрирован в реестре.
	ErrUnknownStepType = errors.New("unknown step type")

	// ErrInvalidTimeout — отрицательный таймаут шага.
	ErrInvalidTimeout = errors.New("invalid step timeout")

	// ErrInvalidRetry — невалидная политика retry.
	ErrInvalidRetry = errors.New("invalid retry policy")

	// ErrInvalidDefinition — определение не удалось разобрать.
	ErrInvalidDefinition = errors.New("invalid workflow definition")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	StepID  string // метка шага, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StepID != "" {
		return "step " + e.StepID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stepID, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
