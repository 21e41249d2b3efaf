// Package scheduler реализует очистку истории run'ов по расписанию.
//
// Janitor по cron-выражению (HISTORY_PRUNE_CRON) вызывает Prune у
// хранилища истории, удаляя записи старше HISTORY_MAX_AGE.
//
// Структура:
//   - scheduler.go — Janitor (Tick, Start)
//   - cron.go      — парсинг cron-выражений
//
// Использование:
//
//	janitor, err := scheduler.New(scheduler.Config{
//	    Store:    history,
//	    CronExpr: cfg.HistoryPruneCron,
//	    Logger:   logger,
//	})
//	if err != nil {
//	    return err
//	}
//	go janitor.Start(ctx)
package scheduler
