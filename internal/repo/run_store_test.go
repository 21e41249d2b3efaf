package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/stepflow/internal/domain"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newRecord создаёт завершённый run с одним шагом.
func newRecord(id, workflow string, ok bool, endedAt time.Time) *domain.RunRecord {
	rec := domain.NewRunRecord(id, workflow, "documents", endedAt.Add(-time.Second))
	step := domain.StepResult{Type: "generate", Status: domain.StepStatusCompleted, Result: map[string]any{"documentId": "doc-" + id}}
	if !ok {
		step = domain.StepResult{Type: "generate", Status: domain.StepStatusFailed, Error: "boom"}
	}
	rec.AppendStep(step)
	rec.Finish("", endedAt)
	return rec
}

// fakeArchiver запоминает архивированные run_id.
type fakeArchiver struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (a *fakeArchiver) Archive(ctx context.Context, rec *domain.RunRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, rec.RunID)
	return a.err
}

func TestRunStore_PutGet(t *testing.T) {
	s := NewRunStore(StoreConfig{})
	rec := newRecord("r1", "document_onboarding_pack", true, baseTime)

	if err := s.Put(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get("r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestRunStore_GetNotFound(t *testing.T) {
	s := NewRunStore(StoreConfig{})

	_, err := s.Get("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRunStore_Immutable(t *testing.T) {
	s := NewRunStore(StoreConfig{})
	rec := newRecord("r1", "wf", true, baseTime)
	if err := s.Put(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Изменение исходной записи не затрагивает хранилище
	rec.Steps[0].Result["documentId"] = "mutated"
	rec.Status = domain.RunStatusFailed

	got, _ := s.Get("r1")
	if got.Status != domain.RunStatusCompleted || got.Steps[0].Result["documentId"] != "doc-r1" {
		t.Errorf("stored record changed through caller copy: %+v", got)
	}

	// Изменение полученной копии тоже
	got.Steps[0].Result["documentId"] = "mutated"
	again, _ := s.Get("r1")
	if again.Steps[0].Result["documentId"] != "doc-r1" {
		t.Error("stored record changed through Get copy")
	}
}

func TestRunStore_ImmutableTypedResults(t *testing.T) {
	s := NewRunStore(StoreConfig{})
	rec := domain.NewRunRecord("r1", "wf", "orchestration", baseTime.Add(-time.Second))
	rec.AppendStep(domain.StepResult{
		Type:   "data_collection",
		Status: domain.StepStatusCompleted,
		Result: map[string]any{
			"headers": map[string]string{"X": "orig"},
			"points":  []map[string]any{{"source": "orig"}},
		},
	})
	rec.Finish("", baseTime)
	if err := s.Put(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := s.Get("r1")
	got.Steps[0].Result["headers"].(map[string]string)["X"] = "mutated"
	got.Steps[0].Result["points"].([]map[string]any)[0]["source"] = "mutated"

	again, _ := s.Get("r1")
	if v := again.Steps[0].Result["headers"].(map[string]string)["X"]; v != "orig" {
		t.Errorf("stored headers X=%s, want orig", v)
	}
	if v := again.Steps[0].Result["points"].([]map[string]any)[0]["source"]; v != "orig" {
		t.Errorf("stored points[0].source=%v, want orig", v)
	}
}

func TestRunStore_PutDuplicateAndInvalid(t *testing.T) {
	s := NewRunStore(StoreConfig{})
	rec := newRecord("r1", "wf", true, baseTime)

	if err := s.Put(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Put(context.Background(), rec); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
	if err := s.Put(context.Background(), &domain.RunRecord{}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if err := s.Put(context.Background(), nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for nil, got %v", err)
	}
}

func TestRunStore_List(t *testing.T) {
	s := NewRunStore(StoreConfig{})
	ctx := context.Background()

	s.Put(ctx, newRecord("r1", "onboarding_workflow", true, baseTime))
	s.Put(ctx, newRecord("r2", "churn_prevention", false, baseTime.Add(time.Minute)))
	s.Put(ctx, newRecord("r3", "onboarding_workflow", false, baseTime.Add(2*time.Minute)))
	s.Put(ctx, newRecord("r4", "onboarding_workflow", true, baseTime.Add(3*time.Minute)))

	ids := func(recs []domain.RunRecord) []string {
		out := make([]string, 0, len(recs))
		for _, r := range recs {
			out = append(out, r.RunID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter RunFilter
		want   []string
	}{
		{name: "all newest first", filter: RunFilter{}, want: []string{"r4", "r3", "r2", "r1"}},
		{name: "limit", filter: RunFilter{Limit: 2}, want: []string{"r4", "r3"}},
		{name: "by status", filter: RunFilter{Status: domain.RunStatusFailed}, want: []string{"r3", "r2"}},
		{name: "by workflow", filter: RunFilter{WorkflowName: "onboarding_workflow"}, want: []string{"r4", "r3", "r1"}},
		{
			name:   "status and workflow with limit",
			filter: RunFilter{Status: domain.RunStatusCompleted, WorkflowName: "onboarding_workflow", Limit: 1},
			want:   []string{"r4"},
		},
		{name: "no match", filter: RunFilter{WorkflowName: "unknown"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ids(s.List(tt.filter))); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunStore_EvictsOldest(t *testing.T) {
	s := NewRunStore(StoreConfig{MaxRuns: 3})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if err := s.Put(ctx, newRecord(fmt.Sprintf("r%d", i), "wf", true, baseTime)); err != nil {
			t.Fatalf("put r%d: %v", i, err)
		}
	}

	if s.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", s.Len())
	}
	for _, id := range []string{"r1", "r2"} {
		if _, err := s.Get(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("%s should be evicted, got %v", id, err)
		}
	}
	if _, err := s.Get("r5"); err != nil {
		t.Errorf("r5 should be retained: %v", err)
	}
}

func TestRunStore_Prune(t *testing.T) {
	s := NewRunStore(StoreConfig{MaxAge: time.Hour})
	ctx := context.Background()

	s.Put(ctx, newRecord("old", "wf", true, baseTime.Add(-2*time.Hour)))
	s.Put(ctx, newRecord("fresh", "wf", true, baseTime.Add(-10*time.Minute)))

	if removed := s.Prune(baseTime); removed != 1 {
		t.Errorf("expected 1 pruned, got %d", removed)
	}
	if _, err := s.Get("old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old should be pruned, got %v", err)
	}
	if _, err := s.Get("fresh"); err != nil {
		t.Errorf("fresh should be retained: %v", err)
	}

	// Без MaxAge ничего не удаляется
	unlimited := NewRunStore(StoreConfig{})
	unlimited.Put(ctx, newRecord("old", "wf", true, baseTime.Add(-48*time.Hour)))
	if removed := unlimited.Prune(baseTime); removed != 0 {
		t.Errorf("expected nothing pruned, got %d", removed)
	}
}

func TestRunStore_Summary(t *testing.T) {
	s := NewRunStore(StoreConfig{})
	ctx := context.Background()

	s.Put(ctx, newRecord("r1", "wf", true, baseTime))
	s.Put(ctx, newRecord("r2", "wf", false, baseTime))

	partial := domain.NewRunRecord("r3", "wf", "", baseTime)
	partial.AppendStep(domain.StepResult{Type: "a", Status: domain.StepStatusCompleted, Result: map[string]any{}})
	partial.AppendStep(domain.StepResult{Type: "b", Status: domain.StepStatusFailed, Error: "x"})
	partial.Finish("", baseTime)
	s.Put(ctx, partial)

	s.Put(ctx, newRecord("r4", "churn_prevention", true, baseTime))

	// r1, r2, r4 длятся 1s, r3 — 0
	want := Summary{
		Total:         4,
		Completed:     2,
		Partial:       1,
		Failed:        1,
		AvgDurationMs: 750,
		Workflows: []WorkflowCount{
			{Workflow: "wf", Runs: 3},
			{Workflow: "churn_prevention", Runs: 1},
		},
	}
	if diff := cmp.Diff(want, s.Summary()); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestRunStore_SummaryEmpty(t *testing.T) {
	s := NewRunStore(StoreConfig{})
	if diff := cmp.Diff(Summary{}, s.Summary()); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestRunStore_Archiver(t *testing.T) {
	arch := &fakeArchiver{}
	s := NewRunStore(StoreConfig{Archiver: arch})

	if err := s.Put(context.Background(), newRecord("r1", "wf", true, baseTime)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"r1"}, arch.ids); diff != "" {
		t.Errorf("archived ids mismatch (-want +got):\n%s", diff)
	}

	// Ошибка архива возвращается, но запись уже в памяти
	arch.err = errors.New("connection refused")
	err := s.Put(context.Background(), newRecord("r2", "wf", true, baseTime))
	if err == nil || !errors.Is(err, arch.err) {
		t.Fatalf("expected archive error, got %v", err)
	}
	if _, err := s.Get("r2"); err != nil {
		t.Errorf("r2 should be stored despite archive failure: %v", err)
	}
}

func TestRunStore_ConcurrentPut(t *testing.T) {
	s := NewRunStore(StoreConfig{MaxRuns: 50})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Put(ctx, newRecord(fmt.Sprintf("r%d", i), "wf", i%2 == 0, baseTime))
			s.List(RunFilter{Limit: 5})
		}(i)
	}
	wg.Wait()

	if s.Len() != 50 {
		t.Errorf("expected 50 records, got %d", s.Len())
	}
}
