package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrInvalidWorkflow — WorkflowDef не прошёл pre-flight валидацию.
	ErrInvalidWorkflow = errors.New("invalid workflow")

	// ErrUnknownIntegration — для интеграции не создан Runner.
	ErrUnknownIntegration = errors.New("unknown integration")

	// ErrRunNotActive — run не выполняется в этом процессе.
	ErrRunNotActive = errors.New("run not in active runs")
)
