package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/stepflow/internal/domain"
)

// TypeSet — набор известных типов шагов. Реализуется steps.Registry.
type TypeSet interface {
	Has(stepType string) bool
}

// ParseJSON разбирает WorkflowDef из JSON.
// Неизвестные поля считаются ошибкой.
func ParseJSON(data []byte) (*domain.WorkflowDef, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var def domain.WorkflowDef
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return &def, nil
}

// ParseYAML разбирает WorkflowDef из YAML.
func ParseYAML(data []byte) (*domain.WorkflowDef, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def domain.WorkflowDef
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return &def, nil
}

// ParseFile выбирает формат по расширению файла: .json или .yaml/.yml.
func ParseFile(name string, data []byte) (*domain.WorkflowDef, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("%w: unsupported file extension %q", ErrInvalidDefinition, filepath.Ext(name))
	}
}

// Validate выполняет pre-flight проверку WorkflowDef.
//
// Проверяет:
// - Наличие имени и шагов
// - Наличие типа у каждого шага
// - Уникальность ID шагов (если заданы)
// - Неотрицательные таймауты и параметры retry
// - Регистрацию типов в types (если types != nil)
//
// Ошибка здесь — ошибка вызывающего кода: run не создаётся.
func Validate(def *domain.WorkflowDef, types TypeSet) error {
	if def == nil || len(def.Steps) == 0 {
		return ErrEmptySteps
	}

	if strings.TrimSpace(def.Name) == "" {
		return NewValidationError("", "name", "workflow has empty name", ErrEmptyName)
	}

	stepIDs := make(map[string]bool)

	for i := range def.Steps {
		if err := ValidateStep(i, &def.Steps[i], stepIDs, types); err != nil {
			return err
		}
	}

	return nil
}

// ValidateStep валидирует один шаг.
// stepIDs — уже встреченные ID шагов (для проверки уникальности).
func ValidateStep(index int, step *domain.StepDef, stepIDs map[string]bool, types TypeSet) error {
	label := fmt.Sprintf("#%d", index+1)
	if l := step.Label(); l != "" {
		label += " (" + l + ")"
	}

	if step.ID != "" {
		if stepIDs[step.ID] {
			return NewValidationError(label, "id",
				fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID)
		}
		stepIDs[step.ID] = true
	}

	if err := validateStepType(label, step.Type, types); err != nil {
		return err
	}

	if step.TimeoutSec < 0 {
		return NewValidationError(label, "timeout_sec",
			fmt.Sprintf("negative timeout: %d", step.TimeoutSec), ErrInvalidTimeout)
	}

	if r := step.Retry; r != nil {
		if r.MaxAttempts < 0 || r.InitialDelayMs < 0 || r.MaxDelayMs < 0 {
			return NewValidationError(label, "retry",
				"retry values must not be negative", ErrInvalidRetry)
		}
	}

	return nil
}

// validateStepType проверяет, что тип шага задан и зарегистрирован.
func validateStepType(label, stepType string, types TypeSet) error {
	if strings.TrimSpace(stepType) == "" {
		return NewValidationError(label, "type",
			"step has empty type", ErrEmptyStepType)
	}

	if types != nil && !types.Has(stepType) {
		return NewValidationError(label, "type",
			fmt.Sprintf("unknown step type: %s", stepType), ErrUnknownStepType)
	}

	return nil
}
