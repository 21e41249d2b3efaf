package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/shaiso/stepflow/internal/domain"
)

// Engines — набор Runner'ов по интеграциям с общей историей.
//
// WorkflowDef.Integration выбирает Runner, пустое значение —
// интеграция по умолчанию.
type Engines struct {
	runners     map[string]*Runner
	defaultName string
}

// NewEngines создаёт набор. defaultName должен совпадать с одной из интеграций.
func NewEngines(defaultName string, runners ...*Runner) (*Engines, error) {
	e := &Engines{
		runners:     make(map[string]*Runner, len(runners)),
		defaultName: defaultName,
	}
	for _, r := range runners {
		e.runners[r.Integration()] = r
	}
	if _, ok := e.runners[defaultName]; !ok {
		return nil, fmt.Errorf("%w: default %q", ErrUnknownIntegration, defaultName)
	}
	return e, nil
}

// Get возвращает Runner интеграции.
func (e *Engines) Get(integration string) (*Runner, error) {
	if integration == "" {
		integration = e.defaultName
	}
	r, ok := e.runners[integration]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIntegration, integration)
	}
	return r, nil
}

// Run выполняет def на Runner'е его интеграции.
func (e *Engines) Run(ctx context.Context, def domain.WorkflowDef, input map[string]any) (*domain.RunRecord, error) {
	r, err := e.Get(def.Integration)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, def, input)
}

// Integrations возвращает отсортированные имена интеграций.
func (e *Engines) Integrations() []string {
	names := make([]string, 0, len(e.runners))
	for name := range e.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StepTypes возвращает зарегистрированные типы шагов по интеграциям.
func (e *Engines) StepTypes() map[string][]string {
	types := make(map[string][]string, len(e.runners))
	for name, r := range e.runners {
		types[name] = r.Registry().Types()
	}
	return types
}

// Active ищет выполняющийся run во всех интеграциях.
func (e *Engines) Active(runID string) (*domain.RunRecord, error) {
	for _, r := range e.runners {
		if rec, err := r.Active(runID); err == nil {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRunNotActive, runID)
}

// ActiveRuns возвращает выполняющиеся runs всех интеграций, от новых к старым.
func (e *Engines) ActiveRuns() []domain.RunRecord {
	all := newActiveRuns()
	for _, r := range e.runners {
		for _, rec := range r.ActiveRuns() {
			rec := rec
			all.add(&rec)
		}
	}
	return all.list()
}

// ActiveCount возвращает общее количество выполняющихся runs.
func (e *Engines) ActiveCount() int {
	n := 0
	for _, r := range e.runners {
		n += r.ActiveCount()
	}
	return n
}
