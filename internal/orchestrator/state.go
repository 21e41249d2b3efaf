package orchestrator

import (
	"sort"
	"sync"

	"github.com/shaiso/stepflow/internal/domain"
)

// activeRuns — runs, выполняющиеся в процессе (runID → запись).
//
// Запись изменяется только под блокировкой, читатели получают копии.
type activeRuns struct {
	mu   sync.RWMutex
	runs map[string]*domain.RunRecord
}

func newActiveRuns() *activeRuns {
	return &activeRuns{runs: make(map[string]*domain.RunRecord)}
}

func (a *activeRuns) add(rec *domain.RunRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs[rec.RunID] = rec
}

// update применяет fn к записи под блокировкой.
func (a *activeRuns) update(rec *domain.RunRecord, fn func(*domain.RunRecord)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(rec)
}

func (a *activeRuns) remove(runID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.runs, runID)
}

func (a *activeRuns) snapshot(rec *domain.RunRecord) *domain.RunRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return rec.Clone()
}

func (a *activeRuns) get(runID string) (*domain.RunRecord, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.runs[runID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// list возвращает копии активных runs, от новых к старым.
func (a *activeRuns) list() []domain.RunRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make([]domain.RunRecord, 0, len(a.runs))
	for _, rec := range a.runs {
		result = append(result, *rec.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAtMs != result[j].StartedAtMs {
			return result[i].StartedAtMs > result[j].StartedAtMs
		}
		return result[i].RunID > result[j].RunID
	})
	return result
}

func (a *activeRuns) count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.runs)
}
