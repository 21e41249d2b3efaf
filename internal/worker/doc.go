// Package worker выполняет отдельные шаги workflow.
//
// # Обзор
//
// Executor — stateless компонент, который для одного StepDef:
//
//   - Находит handler в реестре по типу шага
//   - Вызывает его с таймаутом на каждую попытку
//   - Повторяет попытки согласно политике retry (internal/retry)
//   - Перехватывает панику handler'а
//   - Возвращает StepResult: completed с result или failed с error
//
// Executor не решает, продолжать ли workflow. Это делает
// orchestrator.Runner по статусу шага и ошибке Execute.
//
//	exec := worker.New(worker.Config{
//	    Resolver: registry,
//	    Timeout:  30 * time.Second,
//	    Retry:    retry.Policy{MaxAttempts: 1},
//	    Logger:   logger,
//	})
//
//	res, err := exec.Execute(ctx, stepDef, input)
//	switch {
//	case errors.Is(err, steps.ErrUnknownStepType):
//	    // прервать run
//	case errors.Is(err, steps.ErrStepCancelled):
//	    // прервать run
//	case res.Failed():
//	    // решает критичность шага
//	}
//
// # Retry
//
// Retry выполняется в процессе. StepDef.Retry переопределяет политику
// executor'а. Ошибки steps.ErrInvalidConfig не повторяются.
//
// # Таймауты
//
// StepDef.TimeoutSec, иначе Config.Timeout. Истечение таймаута попытки —
// обычная ошибка handler'а ("step execution timeout after 2s"),
// отмена родительского ctx — отмена шага ("cancelled").
package worker
