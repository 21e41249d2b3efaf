package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/engine"
)

func TestBuiltin(t *testing.T) {
	c, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}

	var names []string
	for _, def := range c.List() {
		names = append(names, def.Name)
	}
	want := []string{"churn_prevention", "document_onboarding_pack", "onboarding_workflow"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}

	churn, err := c.Get("churn_prevention")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if churn.Integration != "orchestration" || !churn.CriticalByDefault {
		t.Errorf("unexpected churn_prevention: %+v", churn)
	}
	// follow-up явно некритичен
	if churn.IsCritical(churn.Steps[3]) {
		t.Error("expected followup step to be non-critical")
	}
	if churn.Steps[1].Retry == nil || churn.Steps[1].Retry.MaxAttempts != 3 {
		t.Errorf("expected retry on analysis step, got %+v", churn.Steps[1].Retry)
	}

	docs, err := c.Get("document_onboarding_pack")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if docs.Integration != "documents" || docs.CriticalByDefault {
		t.Errorf("unexpected document_onboarding_pack: %+v", docs)
	}
	if !docs.IsCritical(docs.Steps[0]) {
		t.Error("expected welcome step to be critical")
	}
}

func TestGet_NotFound(t *testing.T) {
	_, err := New().Get("missing")
	if !errors.Is(err, ErrWorkflowNotFound) {
		t.Errorf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestAdd_Duplicate(t *testing.T) {
	c := New()
	def := domain.WorkflowDef{Name: "wf", Steps: []domain.StepDef{{Type: "delay"}}}

	if err := c.Add(def); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := c.Add(def); !errors.Is(err, ErrDuplicateWorkflow) {
		t.Errorf("expected ErrDuplicateWorkflow, got %v", err)
	}
}

func TestAdd_Invalid(t *testing.T) {
	c := New()

	err := c.Add(domain.WorkflowDef{Name: "empty"})
	if !errors.Is(err, engine.ErrEmptySteps) {
		t.Errorf("expected ErrEmptySteps, got %v", err)
	}

	err = c.Add(domain.WorkflowDef{Steps: []domain.StepDef{{Type: "delay"}}})
	if !errors.Is(err, engine.ErrEmptyName) {
		t.Errorf("expected ErrEmptyName, got %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty catalog, got %d", c.Len())
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.yaml":    "name: from_yaml\nsteps:\n  - type: delay\n",
		"b.json":    `{"name": "from_json", "steps": [{"type": "http"}]}`,
		"notes.txt": "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	c := New()
	if err := c.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 workflows, got %d", c.Len())
	}
	if _, err := c.Get("from_json"); err != nil {
		t.Errorf("Get from_json: %v", err)
	}
}

func TestLoadFS_UnknownField(t *testing.T) {
	fsys := fstest.MapFS{
		"wf/bad.yaml": {Data: []byte("name: bad\nstages: []\n")},
	}

	err := New().LoadFS(fsys, "wf")
	if !errors.Is(err, engine.ErrInvalidDefinition) {
		t.Errorf("expected ErrInvalidDefinition, got %v", err)
	}
}
