package repo

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/shaiso/stepflow/internal/domain"
)

// Значения retention по умолчанию.
const (
	DefaultMaxRuns = 1000
	DefaultMaxAge  = 24 * time.Hour
)

// Archiver — внешнее хранилище завершённых runs (PgArchive).
type Archiver interface {
	Archive(ctx context.Context, rec *domain.RunRecord) error
}

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	Status       domain.RunStatus
	WorkflowName string
	Limit        int // 0 — без ограничения
}

// Summary — агрегаты по истории runs.
type Summary struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Partial    int `json:"partial"`
	Failed     int `json:"failed"`
	InProgress int `json:"inProgress"`

	// AvgDurationMs — средняя продолжительность завершённых runs.
	AvgDurationMs int64 `json:"avgDurationMs"`

	// Workflows — число runs по workflow, от самых частых.
	Workflows []WorkflowCount `json:"workflows,omitempty"`
}

// WorkflowCount — число runs одного workflow.
type WorkflowCount struct {
	Workflow string `json:"workflow"`
	Runs     int    `json:"runs"`
}

// RunStore — in-memory история runs процесса.
//
// Записи хранятся в порядке вставки. При превышении MaxRuns вытесняется
// самая старая запись, Prune удаляет записи старше MaxAge.
// Записи копируются при Put и Get, поэтому сохранённый run неизменяем.
type RunStore struct {
	mu       sync.RWMutex
	runs     *orderedmap.OrderedMap[string, *domain.RunRecord]
	maxRuns  int
	maxAge   time.Duration
	archiver Archiver
	logger   *slog.Logger
}

// StoreConfig — конфигурация RunStore.
type StoreConfig struct {
	// MaxRuns — максимум записей в памяти (default: 1000).
	MaxRuns int

	// MaxAge — срок хранения записи по EndedAtMs. 0 — без ограничения.
	MaxAge time.Duration

	// Archiver — опциональный write-through архив.
	Archiver Archiver

	// Logger
	Logger *slog.Logger
}

// NewRunStore создаёт новый RunStore.
func NewRunStore(cfg StoreConfig) *RunStore {
	maxRuns := cfg.MaxRuns
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RunStore{
		runs:     orderedmap.New[string, *domain.RunRecord](),
		maxRuns:  maxRuns,
		maxAge:   cfg.MaxAge,
		archiver: cfg.Archiver,
		logger:   logger.With("component", "run_store"),
	}
}

// Put сохраняет копию записи.
//
// Ошибка архива возвращается после того, как запись уже сохранена в памяти.
func (s *RunStore) Put(ctx context.Context, rec *domain.RunRecord) error {
	if rec == nil || rec.RunID == "" {
		return fmt.Errorf("%w: run record without id", ErrInvalidState)
	}

	stored := rec.Clone()

	s.mu.Lock()
	if _, exists := s.runs.Get(stored.RunID); exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: run %s", ErrAlreadyExists, stored.RunID)
	}
	s.runs.Set(stored.RunID, stored)
	evicted := s.evictLocked()
	s.mu.Unlock()

	if evicted > 0 {
		s.logger.Debug("evicted oldest runs", "count", evicted, "max_runs", s.maxRuns)
	}

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, stored); err != nil {
			return fmt.Errorf("archive run %s: %w", stored.RunID, err)
		}
	}

	return nil
}

// evictLocked вытесняет самые старые записи сверх MaxRuns.
func (s *RunStore) evictLocked() int {
	evicted := 0
	for s.runs.Len() > s.maxRuns {
		oldest := s.runs.Oldest()
		s.runs.Delete(oldest.Key)
		evicted++
	}
	return evicted
}

// Get возвращает копию записи по run_id.
func (s *RunStore) Get(runID string) (*domain.RunRecord, error) {
	s.mu.RLock()
	rec, ok := s.runs.Get(runID)
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return rec.Clone(), nil
}

// List возвращает копии записей, от новых к старым.
func (s *RunStore) List(filter RunFilter) []domain.RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.RunRecord, 0)
	for pair := s.runs.Newest(); pair != nil; pair = pair.Prev() {
		rec := pair.Value
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.WorkflowName != "" && rec.WorkflowName != filter.WorkflowName {
			continue
		}

		result = append(result, *rec.Clone())
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result
}

// Summary возвращает количество runs по статусам, среднюю
// продолжительность и число runs по workflow.
func (s *RunStore) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		sum      Summary
		finished int64
		totalMs  int64
	)
	perWorkflow := make(map[string]int)
	for pair := s.runs.Oldest(); pair != nil; pair = pair.Next() {
		rec := pair.Value
		sum.Total++
		perWorkflow[rec.WorkflowName]++
		if rec.IsFinished() {
			finished++
			totalMs += rec.DurationMs
		}
		switch rec.Status {
		case domain.RunStatusCompleted:
			sum.Completed++
		case domain.RunStatusPartial:
			sum.Partial++
		case domain.RunStatusFailed:
			sum.Failed++
		case domain.RunStatusInProgress:
			sum.InProgress++
		}
	}

	if finished > 0 {
		sum.AvgDurationMs = totalMs / finished
	}
	for name, n := range perWorkflow {
		sum.Workflows = append(sum.Workflows, WorkflowCount{Workflow: name, Runs: n})
	}
	slices.SortFunc(sum.Workflows, func(a, b WorkflowCount) int {
		if a.Runs != b.Runs {
			return cmp.Compare(b.Runs, a.Runs)
		}
		return cmp.Compare(a.Workflow, b.Workflow)
	})
	return sum
}

// Len возвращает количество записей.
func (s *RunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs.Len()
}

// Prune удаляет записи, завершённые раньше now - MaxAge.
// Возвращает количество удалённых записей.
func (s *RunStore) Prune(now time.Time) int {
	if s.maxAge <= 0 {
		return 0
	}
	cutoff := now.Add(-s.maxAge).UnixMilli()

	s.mu.Lock()
	var expired []string
	for pair := s.runs.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.EndedAtMs != 0 && pair.Value.EndedAtMs < cutoff {
			expired = append(expired, pair.Key)
		}
	}
	for _, id := range expired {
		s.runs.Delete(id)
	}
	s.mu.Unlock()

	if len(expired) > 0 {
		s.logger.Info("pruned expired runs", "count", len(expired), "max_age", s.maxAge)
	}
	return len(expired)
}
