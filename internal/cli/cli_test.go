package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/viper"

	"github.com/shaiso/stepflow/internal/api"
	"github.com/shaiso/stepflow/internal/app"
	"github.com/shaiso/stepflow/internal/config"
	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/mq"
	"github.com/shaiso/stepflow/internal/repo"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T) *app.App {
	t.Helper()

	cfg, err := config.Load(viper.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	a, err := app.New(context.Background(), cfg, discardLogger(), app.Options{})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func newTestServer(t *testing.T) *Client {
	t.Helper()

	a := newTestApp(t)
	mux := http.NewServeMux()
	api.NewHandler(api.Config{
		Engines: a.Engines,
		History: a.History,
		Catalog: a.Catalog,
		Logger:  discardLogger(),
	}).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestClient_Workflows(t *testing.T) {
	client := newTestServer(t)

	workflows, err := client.ListWorkflows()
	if err != nil {
		t.Fatalf("ListWorkflows: %v", err)
	}
	names := make([]string, len(workflows))
	for i, w := range workflows {
		names[i] = w.Name
	}
	want := []string{"churn_prevention", "document_onboarding_pack", "onboarding_workflow"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("workflows mismatch (-want +got):\n%s", diff)
	}

	def, err := client.GetWorkflow("churn_prevention")
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if len(def.Steps) != 4 {
		t.Errorf("expected 4 steps, got %d", len(def.Steps))
	}

	if _, err := client.GetWorkflow("missing"); err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestClient_RunAndHistory(t *testing.T) {
	client := newTestServer(t)

	rec, err := client.RunWorkflow("document_onboarding_pack", map[string]any{"customer_name": "Acme"})
	if err != nil {
		t.Fatalf("RunWorkflow: %v", err)
	}
	if rec.Status != domain.RunStatusCompleted || len(rec.Steps) != 5 {
		t.Fatalf("unexpected run: %s with %d steps", rec.Status, len(rec.Steps))
	}

	got, err := client.GetRun(rec.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}

	runs, err := client.ListRuns(ListRunsOpts{Workflow: "document_onboarding_pack", Limit: 10})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != rec.RunID {
		t.Errorf("unexpected runs: %+v", runs)
	}

	sum, err := client.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	wantSum := &SummaryResponse{
		Total:     1,
		Completed: 1,
		Workflows: []repo.WorkflowCount{{Workflow: "document_onboarding_pack", Runs: 1}},
	}
	if diff := cmp.Diff(wantSum, sum, cmpopts.IgnoreFields(SummaryResponse{}, "AvgDurationMs")); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	if _, err := client.ListRuns(ListRunsOpts{Status: "bogus"}); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestClient_RunDefinition(t *testing.T) {
	client := newTestServer(t)

	def := domain.WorkflowDef{
		Name:        "adhoc",
		Integration: "documents",
		Steps: []domain.StepDef{
			{Type: "generate", Options: map[string]any{"template_id": "guide"}},
			{Type: "convert"}, // нет target_format
		},
	}

	rec, err := client.RunDefinition(def, nil)
	if err != nil {
		t.Fatalf("RunDefinition: %v", err)
	}
	if rec.Status != domain.RunStatusPartial || rec.FailedCount != 1 {
		t.Errorf("expected partial with 1 failure, got %s/%d", rec.Status, rec.FailedCount)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type cmdEnv struct {
	client *Client
	stdout bytes.Buffer
	stderr bytes.Buffer
	json   bool
	appFn  AppFunc
}

func newCmdEnv(t *testing.T) *cmdEnv {
	env := &cmdEnv{}
	env.appFn = func(ctx context.Context) (*app.App, error) {
		return newTestApp(t), nil
	}
	return env
}

func (e *cmdEnv) execute(args ...string) error {
	clientFn := func() *Client { return e.client }
	outputFn := func() *Output { return NewOutputTo(e.json, &e.stdout, &e.stderr) }

	if args == nil {
		args = []string{}
	}

	cmd := NewRunCmd(clientFn, outputFn, e.appFn)
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd.ExecuteContext(context.Background())
}

func TestRunCmd_LocalCatalog(t *testing.T) {
	env := newCmdEnv(t)

	if err := env.execute("--workflow", "churn_prevention", "--input", "customer_id=c-1"); err != nil {
		t.Fatalf("execute: %v", err)
	}

	out := env.stdout.String()
	if !strings.Contains(out, "completed (4 steps, 0 failed") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestRunCmd_LocalFileCriticalFailure(t *testing.T) {
	path := writeFile(t, "broken.yaml", `
name: broken
integration: documents
steps:
  - id: first
    type: generate
    critical: true
    options:
      simulate_failure: true
  - id: second
    type: compress
`)

	env := newCmdEnv(t)
	env.json = true

	err := env.execute(path)
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("expected ErrRunFailed, got %v", err)
	}

	var rec domain.RunRecord
	if err := json.Unmarshal(env.stdout.Bytes(), &rec); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if rec.AbortReason != domain.AbortCriticalStep || len(rec.Steps) != 1 {
		t.Errorf("expected abort after first step, got %q with %d steps", rec.AbortReason, len(rec.Steps))
	}
}

func TestRunCmd_Remote(t *testing.T) {
	env := newCmdEnv(t)
	env.client = newTestServer(t)
	env.json = true
	env.appFn = func(context.Context) (*app.App, error) {
		return nil, errors.New("local engine must not be used")
	}

	if err := env.execute("--remote", "--workflow", "onboarding_workflow"); err != nil {
		t.Fatalf("execute: %v", err)
	}

	var rec domain.RunRecord
	if err := json.Unmarshal(env.stdout.Bytes(), &rec); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if rec.WorkflowName != "onboarding_workflow" || rec.Status != domain.RunStatusCompleted {
		t.Errorf("unexpected run: %s/%s", rec.WorkflowName, rec.Status)
	}
}

func TestRunCmd_Args(t *testing.T) {
	env := newCmdEnv(t)

	if err := env.execute(); err == nil {
		t.Error("expected error without FILE and --workflow")
	}
	if err := env.execute("file.yaml", "--workflow", "x"); err == nil {
		t.Error("expected error with both FILE and --workflow")
	}
	if err := env.execute("--workflow", "missing"); err == nil {
		t.Error("expected error for unknown workflow")
	}
}

func TestParseInput(t *testing.T) {
	path := writeFile(t, "input.yaml", "customer_name: Acme\nplan: pro\nseats: 10\n")

	got, err := parseInput([]string{"plan=enterprise", "note=a=b"}, path)
	if err != nil {
		t.Fatalf("parseInput: %v", err)
	}

	want := map[string]any{
		"customer_name": "Acme",
		"plan":          "enterprise",
		"seats":         10,
		"note":          "a=b",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("input mismatch (-want +got):\n%s", diff)
	}

	if _, err := parseInput([]string{"novalue"}, ""); err == nil {
		t.Error("expected error for malformed pair")
	}
}

func TestPrintRecord(t *testing.T) {
	rec := &domain.RunRecord{
		RunID:        "run-1",
		WorkflowName: "wf",
		Status:       domain.RunStatusPartial,
		FailedCount:  1,
		DurationMs:   1500,
		Steps: []domain.StepResult{
			{Name: "Generate", Type: "generate", Status: domain.StepStatusCompleted, Attempts: 1, DurationMs: 500},
			{StepID: "conv", Type: "convert", Status: domain.StepStatusFailed, Attempts: 2, Error: "missing target_format"},
		},
	}

	var stdout bytes.Buffer
	printRecord(NewOutputTo(false, &stdout, io.Discard), rec)

	out := stdout.String()
	for _, want := range []string{"Generate", "conv", "missing target_format", "run run-1: partial (2 steps, 1 failed, 1.5s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestParseBindings(t *testing.T) {
	keys, err := parseBindings([]string{"run.finished", "step.finished"})
	if err != nil {
		t.Fatalf("parseBindings: %v", err)
	}
	want := []mq.RoutingKey{mq.RoutingKeyRunFinished, mq.RoutingKeyStepFinished}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("bindings mismatch (-want +got):\n%s", diff)
	}

	if _, err := parseBindings([]string{"run.deleted"}); err == nil {
		t.Error("expected error for unknown event type")
	}
}

func TestFormatEvent(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	step := &mq.Message{
		Type:      mq.MessageTypeStepFinished,
		Timestamp: ts,
		Payload: mq.StepEventPayload{
			RunID: "run-1",
			Index: 0,
			Step:  domain.StepResult{Type: "generate", Status: domain.StepStatusFailed, Error: "boom", DurationMs: 20},
		},
	}
	line, err := formatEvent(step)
	if err != nil {
		t.Fatalf("formatEvent: %v", err)
	}
	if want := "12:00:00.000 step.finished run-1 #1 generate failed (20ms): boom"; line != want {
		t.Errorf("expected %q, got %q", want, line)
	}

	finished := &mq.Message{
		Type:      mq.MessageTypeRunFinished,
		Timestamp: ts,
		Payload: mq.RunEventPayload{
			RunID:        "run-1",
			WorkflowName: "wf",
			Status:       domain.RunStatusFailed,
			StepCount:    1,
			FailedCount:  1,
			AbortReason:  domain.AbortCriticalStep,
			DurationMs:   20,
		},
	}
	line, err = formatEvent(finished)
	if err != nil {
		t.Fatalf("formatEvent: %v", err)
	}
	if !strings.HasSuffix(line, "aborted: critical_step_failed") || !strings.Contains(line, "run-1 wf failed (1/1 failed") {
		t.Errorf("unexpected line %q", line)
	}
}
