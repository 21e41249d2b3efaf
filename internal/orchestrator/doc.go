// Package orchestrator выполняет workflow.
//
// Runner отвечает за:
//   - Pre-flight валидацию WorkflowDef (engine.Validate)
//   - Создание RunRecord с уникальным run_id (UUIDv7)
//   - Последовательное выполнение шагов через worker.Executor
//   - Остановку после упавшего критичного шага, неизвестного типа или отмены
//   - Вычисление итогового статуса (completed, partial, failed)
//   - Сохранение записи в историю и уведомление Observer'ов
//
// Итоговый статус:
//   - failed — run прерван или упали все выполненные шаги
//   - partial — часть шагов упала, workflow дошёл до конца
//   - completed — все шаги завершились успешно
//
// Engines объединяет Runner'ы интеграций (documents, orchestration)
// с общей историей runs.
package orchestrator
