package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shaiso/stepflow/internal/catalog"
	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/integrations"
	"github.com/shaiso/stepflow/internal/orchestrator"
	"github.com/shaiso/stepflow/internal/repo"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	mux     *http.ServeMux
	history *repo.RunStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := discardLogger()

	history := repo.NewRunStore(repo.StoreConfig{Logger: logger})

	var runners []*orchestrator.Runner
	for _, name := range integrations.Names() {
		reg, err := integrations.NewRegistry(name, integrations.NewVendorClient(integrations.ClientConfig{Name: name}), logger)
		if err != nil {
			t.Fatalf("NewRegistry: %v", err)
		}
		runners = append(runners, orchestrator.NewRunner(orchestrator.Config{
			Integration: name,
			Registry:    reg,
			Store:       history,
			Logger:      logger,
		}))
	}
	engines, err := orchestrator.NewEngines(integrations.IntegrationOrchestration, runners...)
	if err != nil {
		t.Fatalf("NewEngines: %v", err)
	}

	cat, err := catalog.Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}

	mux := http.NewServeMux()
	NewHandler(Config{Engines: engines, History: history, Catalog: cat, Logger: logger}).RegisterRoutes(mux)

	return &testServer{mux: mux, history: history}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

type runEnvelope struct {
	Data domain.RunRecord `json:"data"`
}

type runsEnvelope struct {
	Data  []domain.RunRecord `json:"data"`
	Total int                `json:"total"`
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	health := decode[HealthResponse](t, rec)
	if health.Status != "ok" || health.Workflows != 3 {
		t.Errorf("unexpected health: %+v", health)
	}
	if len(health.StepTypes[integrations.IntegrationDocuments]) != 8 {
		t.Errorf("unexpected documents step types: %v", health.StepTypes[integrations.IntegrationDocuments])
	}
}

func TestListWorkflows(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/workflows", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := decode[struct {
		Data []WorkflowResponse `json:"data"`
	}](t, rec)
	if len(body.Data) != 3 || body.Data[0].Name != "churn_prevention" {
		t.Errorf("unexpected workflows: %+v", body.Data)
	}
}

func TestRunWorkflow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/workflows/churn_prevention/runs", RunWorkflowRequest{
		Input: map[string]any{"user_id": "u1"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	run := decode[runEnvelope](t, rec).Data
	if run.Status != domain.RunStatusCompleted {
		t.Errorf("expected completed, got %s", run.Status)
	}
	if len(run.Steps) != 4 || run.Integration != integrations.IntegrationOrchestration {
		t.Errorf("unexpected run: %+v", run)
	}

	// run доступен по id
	rec = s.do(t, http.MethodGet, "/api/v1/runs/"+run.RunID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode[runEnvelope](t, rec).Data; got.RunID != run.RunID {
		t.Errorf("expected run %s, got %s", run.RunID, got.RunID)
	}
}

func TestRunWorkflow_EmptyBody(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/workflows/onboarding_workflow/runs", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRunWorkflow_NotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/workflows/missing/runs", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	body := decode[ErrorResponse](t, rec)
	if body.Error.Code != ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND, got %s", body.Error.Code)
	}
}

func TestRunDefinition_Partial(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/runs", RunDefinitionRequest{
		Workflow: domain.WorkflowDef{
			Name:        "adhoc_docs",
			Integration: integrations.IntegrationDocuments,
			Steps: []domain.StepDef{
				{Type: "generate"},
				{Type: "compress", Options: map[string]any{integrations.OptionSimulateFailure: true}},
			},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	run := decode[runEnvelope](t, rec).Data
	if run.Status != domain.RunStatusPartial || run.FailedCount != 1 {
		t.Errorf("expected partial with 1 failure, got %s/%d", run.Status, run.FailedCount)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/runs?status=partial&workflow=adhoc_docs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	runs := decode[runsEnvelope](t, rec)
	if runs.Total != 1 || runs.Data[0].RunID != run.RunID {
		t.Errorf("unexpected runs: %+v", runs)
	}
}

func TestRunDefinition_Invalid(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/runs", RunDefinitionRequest{
		Workflow: domain.WorkflowDef{
			Name:  "bad",
			Steps: []domain.StepDef{{Type: "teleport"}},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if s.history.Len() != 0 {
		t.Errorf("invalid workflow must not be stored, got %d runs", s.history.Len())
	}

	rec = s.do(t, http.MethodPost, "/api/v1/runs", RunDefinitionRequest{
		Workflow: domain.WorkflowDef{
			Name:        "bad",
			Integration: "crm",
			Steps:       []domain.StepDef{{Type: "delay"}},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown integration, got %d", rec.Code)
	}
}

func TestListRuns_InvalidParams(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/v1/runs?status=done", "/api/v1/runs?limit=-1", "/api/v1/runs?limit=x"} {
		rec := s.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/runs/unknown", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRunsSummary(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodPost, "/api/v1/workflows/churn_prevention/runs", nil)
	s.do(t, http.MethodPost, "/api/v1/workflows/document_onboarding_pack/runs", nil)

	rec := s.do(t, http.MethodGet, "/api/v1/runs/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := decode[struct {
		Data repo.Summary `json:"data"`
	}](t, rec)
	if body.Data.Total != 2 || body.Data.Completed != 2 {
		t.Errorf("unexpected summary: %+v", body.Data)
	}
	if len(body.Data.Workflows) != 2 || body.Data.Workflows[0].Runs != 1 {
		t.Errorf("unexpected per-workflow counts: %+v", body.Data.Workflows)
	}
}

func TestRecovery(t *testing.T) {
	logger := discardLogger()
	h := Chain(Recovery(logger), Logging(logger))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
