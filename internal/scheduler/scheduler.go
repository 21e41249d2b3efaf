package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner — хранилище, умеющее удалять устаревшие записи.
// Реализуется repo.RunStore.
type Pruner interface {
	Prune(now time.Time) int
}

// Janitor — периодическая очистка истории run'ов по cron-расписанию.
type Janitor struct {
	store  Pruner
	expr   string
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// Config — конфигурация Janitor.
type Config struct {
	Store    Pruner
	CronExpr string // default: */5 * * * *
	Logger   *slog.Logger
}

// DefaultCronExpr — расписание очистки по умолчанию.
const DefaultCronExpr = "*/5 * * * *"

// New создаёт Janitor. Невалидное выражение — ошибка.
func New(cfg Config) (*Janitor, error) {
	expr := cfg.CronExpr
	if expr == "" {
		expr = DefaultCronExpr
	}
	if err := ValidateCronExpr(expr); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Janitor{
		store:  cfg.Store,
		expr:   expr,
		logger: logger.With("component", "janitor"),
		now:    time.Now,
	}, nil
}

// Tick выполняет одну очистку и возвращает количество удалённых записей.
func (j *Janitor) Tick() int {
	removed := j.store.Prune(j.now())
	if removed > 0 {
		j.logger.Info("history pruned", "removed", removed)
	} else {
		j.logger.Debug("history prune: nothing to remove")
	}
	return removed
}

// Start запускает очистку по расписанию и блокируется до отмены ctx.
func (j *Janitor) Start(ctx context.Context) error {
	c := cron.New(cron.WithParser(cronParser))
	if _, err := c.AddFunc(j.expr, func() { j.Tick() }); err != nil {
		return err
	}

	j.mu.Lock()
	j.cron = c
	j.mu.Unlock()

	c.Start()
	j.logger.Info("janitor started", "cron", j.expr)

	<-ctx.Done()

	// Ждём завершения текущей очистки
	<-c.Stop().Done()
	j.logger.Info("janitor stopped")
	return nil
}

// NextRun возвращает время следующей очистки. Нулевое время, если Janitor не запущен.
func (j *Janitor) NextRun() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cron == nil {
		return time.Time{}
	}
	entries := j.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
