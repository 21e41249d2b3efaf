package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/stepflow/internal/domain"
)

func TestMetrics_Observer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	ctx := context.Background()

	rec := &domain.RunRecord{RunID: "r1", WorkflowName: "onboarding_workflow", Status: domain.RunStatusInProgress}

	m.RunStarted(ctx, rec)
	if got := testutil.ToFloat64(m.runsActive); got != 1 {
		t.Errorf("expected 1 active run, got %v", got)
	}

	m.StepFinished(ctx, rec, domain.StepResult{Type: "api_call", Status: domain.StepStatusCompleted, DurationMs: 120})
	m.StepFinished(ctx, rec, domain.StepResult{Type: "api_call", Status: domain.StepStatusFailed, DurationMs: 80})

	rec.Status = domain.RunStatusPartial
	rec.DurationMs = 200
	m.RunFinished(ctx, rec)

	if got := testutil.ToFloat64(m.runsActive); got != 0 {
		t.Errorf("expected 0 active runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("onboarding_workflow", "partial")); got != 1 {
		t.Errorf("expected 1 partial run, got %v", got)
	}
	if got := testutil.ToFloat64(m.stepsTotal.WithLabelValues("api_call", "failed")); got != 1 {
		t.Errorf("expected 1 failed step, got %v", got)
	}
	if got := testutil.CollectAndCount(m.stepDuration); got != 1 {
		t.Errorf("expected 1 step duration series, got %d", got)
	}
}
