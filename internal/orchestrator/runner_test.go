package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/engine"
	"github.com/shaiso/stepflow/internal/repo"
	"github.com/shaiso/stepflow/internal/steps"
)

// callLog — потокобезопасный журнал вызовов handler'ов.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// okHandler записывает вызов и возвращает тип шага в результате.
func okHandler(log *callLog, typ string) steps.Handler {
	return steps.HandlerFunc(func(ctx context.Context, req *steps.Request) (*steps.Response, error) {
		log.add(typ)
		return steps.NewResponse(map[string]any{"step": typ}), nil
	})
}

func failHandler(log *callLog, typ string) steps.Handler {
	return steps.HandlerFunc(func(ctx context.Context, req *steps.Request) (*steps.Response, error) {
		log.add(typ)
		return nil, errors.New(typ + " failed")
	})
}

// newTestRunner создаёт Runner с документными handler'ами:
// generate и watermark успешны, compress падает.
func newTestRunner(t *testing.T, observers ...Observer) (*Runner, *repo.RunStore, *callLog) {
	t.Helper()

	log := &callLog{}
	reg := steps.NewRegistry(nil)
	reg.Register("generate", okHandler(log, "generate"))
	reg.Register("compress", failHandler(log, "compress"))
	reg.Register("watermark", okHandler(log, "watermark"))

	store := repo.NewRunStore(repo.StoreConfig{})
	r := NewRunner(Config{
		Integration: "documents",
		Registry:    reg,
		Store:       store,
		Observers:   observers,
	})
	return r, store, log
}

func stepTypes(rec *domain.RunRecord) []string {
	out := make([]string, 0, len(rec.Steps))
	for _, s := range rec.Steps {
		out = append(out, s.Type)
	}
	return out
}

func TestRun_PartialNonCritical(t *testing.T) {
	r, store, log := newTestRunner(t)

	def := domain.WorkflowDef{
		Name: "document_onboarding_pack",
		Steps: []domain.StepDef{
			{Type: "generate"},
			{Type: "compress", Critical: domain.Bool(false)},
			{Type: "watermark"},
		},
	}

	rec, err := r.Run(context.Background(), def, map[string]any{"customerId": "c-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Status != domain.RunStatusPartial {
		t.Errorf("expected partial, got %s", rec.Status)
	}
	if rec.FailedCount != 1 || rec.AbortReason != "" {
		t.Errorf("unexpected failed=%d abort=%q", rec.FailedCount, rec.AbortReason)
	}
	if diff := cmp.Diff([]string{"generate", "compress", "watermark"}, stepTypes(rec)); diff != "" {
		t.Errorf("step order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"generate", "compress", "watermark"}, log.get()); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
	if rec.Steps[1].Error != "compress failed" || rec.Steps[1].Result != nil {
		t.Errorf("unexpected failed step: %+v", rec.Steps[1])
	}
	if rec.Integration != "documents" || rec.WorkflowName != "document_onboarding_pack" {
		t.Errorf("unexpected identity: %+v", rec)
	}
	if rec.EndedAtMs < rec.StartedAtMs || rec.DurationMs != rec.EndedAtMs-rec.StartedAtMs {
		t.Errorf("inconsistent timing: %+v", rec)
	}

	stored, err := store.Get(rec.RunID)
	if err != nil {
		t.Fatalf("run not stored: %v", err)
	}
	if diff := cmp.Diff(rec, stored); diff != "" {
		t.Errorf("stored record mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_CriticalFailureAborts(t *testing.T) {
	r, _, log := newTestRunner(t)

	def := domain.WorkflowDef{
		Name:              "onboarding_workflow",
		CriticalByDefault: true,
		Steps: []domain.StepDef{
			{Type: "generate"},
			{Type: "compress"},
			{Type: "watermark"},
		},
	}

	rec, err := r.Run(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Status != domain.RunStatusFailed {
		t.Errorf("expected failed, got %s", rec.Status)
	}
	if len(rec.Steps) != 2 {
		t.Errorf("expected 2 step results, got %d", len(rec.Steps))
	}
	if rec.AbortReason != domain.AbortCriticalStep {
		t.Errorf("expected %s, got %q", domain.AbortCriticalStep, rec.AbortReason)
	}
	for _, call := range log.get() {
		if call == "watermark" {
			t.Error("step after critical failure must not run")
		}
	}
}

func TestRun_StepCriticalOverridesDefault(t *testing.T) {
	r, _, _ := newTestRunner(t)

	def := domain.WorkflowDef{
		Name:              "onboarding_workflow",
		CriticalByDefault: false,
		Steps: []domain.StepDef{
			{Type: "compress", Critical: domain.Bool(true)},
			{Type: "generate"},
		},
	}

	rec, _ := r.Run(context.Background(), def, nil)
	if len(rec.Steps) != 1 || rec.Status != domain.RunStatusFailed {
		t.Errorf("expected abort after first step, got %d steps, %s", len(rec.Steps), rec.Status)
	}
}

func TestRun_Statuses(t *testing.T) {
	tests := []struct {
		name   string
		types  []string
		status domain.RunStatus
		failed int
	}{
		{name: "all succeed", types: []string{"generate", "watermark"}, status: domain.RunStatusCompleted, failed: 0},
		{name: "all fail", types: []string{"compress", "compress"}, status: domain.RunStatusFailed, failed: 2},
		{name: "single failure", types: []string{"compress"}, status: domain.RunStatusFailed, failed: 1},
		{name: "mixed", types: []string{"compress", "generate"}, status: domain.RunStatusPartial, failed: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newTestRunner(t)

			def := domain.WorkflowDef{Name: "wf"}
			for _, typ := range tt.types {
				def.Steps = append(def.Steps, domain.StepDef{Type: typ})
			}

			rec, err := r.Run(context.Background(), def, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Status != tt.status || rec.FailedCount != tt.failed {
				t.Errorf("expected %s/%d, got %s/%d", tt.status, tt.failed, rec.Status, rec.FailedCount)
			}
			if len(rec.Steps) != len(tt.types) {
				t.Errorf("expected %d steps, got %d", len(tt.types), len(rec.Steps))
			}
		})
	}
}

func TestRun_InvalidWorkflow(t *testing.T) {
	tests := []struct {
		name string
		def  domain.WorkflowDef
		want error
	}{
		{name: "empty steps", def: domain.WorkflowDef{Name: "wf"}, want: engine.ErrEmptySteps},
		{
			name: "unknown type",
			def:  domain.WorkflowDef{Name: "wf", Steps: []domain.StepDef{{Type: "generate"}, {Type: "teleport"}}},
			want: engine.ErrUnknownStepType,
		},
		{
			name: "empty type",
			def:  domain.WorkflowDef{Name: "wf", Steps: []domain.StepDef{{Type: ""}}},
			want: engine.ErrEmptyStepType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store, log := newTestRunner(t)

			rec, err := r.Run(context.Background(), tt.def, nil)
			if !errors.Is(err, ErrInvalidWorkflow) || !errors.Is(err, tt.want) {
				t.Errorf("expected ErrInvalidWorkflow wrapping %v, got %v", tt.want, err)
			}
			if rec != nil {
				t.Errorf("expected no record, got %+v", rec)
			}
			if len(log.get()) != 0 {
				t.Errorf("no step should run, got %v", log.get())
			}
			if store.Len() != 0 {
				t.Errorf("nothing should be stored, got %d", store.Len())
			}
		})
	}
}

func TestRun_HandlerRemovedAtRuntime(t *testing.T) {
	r, store, _ := newTestRunner(t)
	r.Registry().Register("unregister", steps.HandlerFunc(func(ctx context.Context, req *steps.Request) (*steps.Response, error) {
		r.Registry().Unregister("watermark")
		return steps.EmptyResponse(), nil
	}))

	def := domain.WorkflowDef{
		Name: "wf",
		Steps: []domain.StepDef{
			{Type: "unregister", Critical: domain.Bool(false)},
			{Type: "watermark", Critical: domain.Bool(false)},
			{Type: "generate"},
		},
	}

	rec, err := r.Run(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != domain.RunStatusFailed || rec.AbortReason != domain.AbortUnknownStep {
		t.Errorf("expected failed/%s, got %s/%q", domain.AbortUnknownStep, rec.Status, rec.AbortReason)
	}
	if len(rec.Steps) != 2 || rec.Steps[1].Error != "unknown step type: watermark" {
		t.Errorf("unexpected steps: %+v", rec.Steps)
	}
	if store.Len() != 1 {
		t.Errorf("aborted run should be stored")
	}
}

func TestRun_Cancellation(t *testing.T) {
	log := &callLog{}
	started := make(chan struct{})

	reg := steps.NewRegistry(nil)
	reg.Register("generate", steps.HandlerFunc(func(ctx context.Context, req *steps.Request) (*steps.Response, error) {
		log.add("generate")
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	reg.Register("watermark", okHandler(log, "watermark"))

	store := repo.NewRunStore(repo.StoreConfig{})
	r := NewRunner(Config{Registry: reg, Store: store})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	def := domain.WorkflowDef{
		Name:  "wf",
		Steps: []domain.StepDef{{Type: "generate"}, {Type: "watermark"}},
	}

	rec, err := r.Run(ctx, def, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Status != domain.RunStatusFailed || rec.AbortReason != domain.AbortCancelled {
		t.Errorf("expected failed/cancelled, got %s/%q", rec.Status, rec.AbortReason)
	}
	if len(rec.Steps) != 1 || rec.Steps[0].Error != "cancelled" {
		t.Errorf("unexpected steps: %+v", rec.Steps)
	}
	if diff := cmp.Diff([]string{"generate"}, log.get()); diff != "" {
		t.Errorf("call log mismatch (-want +got):\n%s", diff)
	}
	if _, err := store.Get(rec.RunID); err != nil {
		t.Errorf("cancelled run should be stored: %v", err)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	r, _, log := newTestRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := r.Run(ctx, domain.WorkflowDef{Name: "wf", Steps: []domain.StepDef{{Type: "generate"}}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.Steps) != 1 || rec.Steps[0].Error != "cancelled" || rec.AbortReason != domain.AbortCancelled {
		t.Errorf("unexpected record: %+v", rec)
	}
	if len(log.get()) != 0 {
		t.Errorf("handler should not run, got %v", log.get())
	}
}

func TestRun_ConcurrentRuns(t *testing.T) {
	r, store, _ := newTestRunner(t)

	def := domain.WorkflowDef{
		Name:  "wf",
		Steps: []domain.StepDef{{Type: "generate"}, {Type: "compress"}, {Type: "watermark"}},
	}

	const n = 25
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := r.Run(context.Background(), def, map[string]any{"shared": true})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if len(rec.Steps) != 3 || rec.Status != domain.RunStatusPartial {
				t.Errorf("unexpected record: %d steps, %s", len(rec.Steps), rec.Status)
			}
			ids <- rec.RunID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate run id %s", id)
		}
		seen[id] = true
	}
	if store.Len() != n {
		t.Errorf("expected %d stored runs, got %d", n, store.Len())
	}
	if r.ActiveCount() != 0 {
		t.Errorf("no runs should remain active, got %d", r.ActiveCount())
	}
}

func TestRun_StepTimestampsOrdered(t *testing.T) {
	r, _, _ := newTestRunner(t)
	def := domain.WorkflowDef{
		Name:  "wf",
		Steps: []domain.StepDef{{Type: "generate"}, {Type: "compress"}, {Type: "watermark"}},
	}

	rec, _ := r.Run(context.Background(), def, nil)
	for i := 1; i < len(rec.Steps); i++ {
		if rec.Steps[i].TimestampMs < rec.Steps[i-1].TimestampMs {
			t.Errorf("step %d timestamp before step %d", i, i-1)
		}
	}
}

// recordingObserver записывает события run.
type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) add(e string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordingObserver) RunStarted(ctx context.Context, rec *domain.RunRecord) {
	o.add("started:" + string(rec.Status))
}

func (o *recordingObserver) StepFinished(ctx context.Context, rec *domain.RunRecord, step domain.StepResult) {
	o.add("step:" + step.Type + ":" + string(step.Status))
}

func (o *recordingObserver) RunFinished(ctx context.Context, rec *domain.RunRecord) {
	o.add("finished:" + string(rec.Status))
}

func TestRun_Observers(t *testing.T) {
	obs := &recordingObserver{}
	r, _, _ := newTestRunner(t, obs)

	def := domain.WorkflowDef{
		Name:  "wf",
		Steps: []domain.StepDef{{Type: "generate"}, {Type: "compress"}},
	}
	if _, err := r.Run(context.Background(), def, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"started:in_progress",
		"step:generate:completed",
		"step:compress:failed",
		"finished:partial",
	}
	if diff := cmp.Diff(want, obs.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

// failingStore всегда возвращает ошибку.
type failingStore struct{ err error }

func (s failingStore) Put(ctx context.Context, rec *domain.RunRecord) error { return s.err }

func TestRun_StoreErrorReturnedWithRecord(t *testing.T) {
	reg := steps.NewRegistry(nil)
	reg.Register("generate", okHandler(&callLog{}, "generate"))

	storeErr := errors.New("archive unavailable")
	r := NewRunner(Config{Registry: reg, Store: failingStore{err: storeErr}})

	rec, err := r.Run(context.Background(), domain.WorkflowDef{Name: "wf", Steps: []domain.StepDef{{Type: "generate"}}}, nil)
	if !errors.Is(err, storeErr) {
		t.Errorf("expected store error, got %v", err)
	}
	if rec == nil || rec.Status != domain.RunStatusCompleted {
		t.Errorf("record should be returned with the error, got %+v", rec)
	}
}

func TestRunner_ActiveRuns(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	reg := steps.NewRegistry(nil)
	reg.Register("merge", steps.HandlerFunc(func(ctx context.Context, req *steps.Request) (*steps.Response, error) {
		close(entered)
		<-release
		return steps.EmptyResponse(), nil
	}))

	r := NewRunner(Config{Registry: reg, Store: repo.NewRunStore(repo.StoreConfig{})})

	done := make(chan *domain.RunRecord)
	go func() {
		rec, _ := r.Run(context.Background(), domain.WorkflowDef{Name: "wf", Steps: []domain.StepDef{{Type: "merge"}}}, nil)
		done <- rec
	}()

	<-entered
	active := r.ActiveRuns()
	if len(active) != 1 || active[0].Status != domain.RunStatusInProgress {
		t.Fatalf("expected one in-progress run, got %+v", active)
	}
	if _, err := r.Active(active[0].RunID); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	close(release)
	select {
	case rec := <-done:
		if _, err := r.Active(rec.RunID); !errors.Is(err, ErrRunNotActive) {
			t.Errorf("expected ErrRunNotActive after finish, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish")
	}
}
