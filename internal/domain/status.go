package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	in_progress → completed
//	            ↘ partial
//	            ↘ failed
//
// Все статусы, кроме in_progress, финальные.
type RunStatus string

const (
	// RunStatusInProgress — run выполняется.
	RunStatusInProgress RunStatus = "in_progress"

	// RunStatusCompleted — все шаги завершились успешно.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusPartial — часть некритичных шагов упала, workflow дошёл до конца.
	RunStatusPartial RunStatus = "partial"

	// RunStatusFailed — run прерван (критичный шаг, отмена) или упали все шаги.
	RunStatusFailed RunStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusPartial, RunStatusFailed:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// ParseRunStatus парсит строку в RunStatus.
// Второе значение false, если статус неизвестен.
func ParseRunStatus(s string) (RunStatus, bool) {
	switch RunStatus(s) {
	case RunStatusInProgress, RunStatusCompleted, RunStatusPartial, RunStatusFailed:
		return RunStatus(s), true
	default:
		return "", false
	}
}

// StepStatus — результат выполнения шага.
type StepStatus string

const (
	// StepStatusCompleted — handler завершился успешно.
	StepStatusCompleted StepStatus = "completed"

	// StepStatusFailed — handler вернул ошибку, запаниковал или был отменён.
	StepStatusFailed StepStatus = "failed"
)
