package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/stepflow/internal/domain"
)

// Metrics — Prometheus метрики выполнения workflow.
//
// Реализует orchestrator.Observer.
type Metrics struct {
	runsTotal    *prometheus.CounterVec
	runsActive   prometheus.Gauge
	stepsTotal   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	runDuration  *prometheus.HistogramVec
}

// NewMetrics регистрирует метрики в reg.
// nil означает prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stepflow_runs_total",
			Help: "Finished workflow runs by workflow and final status",
		}, []string{"workflow", "status"}),

		runsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stepflow_runs_in_progress",
			Help: "Workflow runs currently executing",
		}),

		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stepflow_steps_total",
			Help: "Executed steps by type and status",
		}, []string{"type", "status"}),

		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stepflow_step_duration_seconds",
			Help:    "Step execution time including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),

		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stepflow_run_duration_seconds",
			Help:    "Workflow run execution time",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"workflow"}),
	}
}

// RunStarted увеличивает счётчик активных runs.
func (m *Metrics) RunStarted(_ context.Context, _ *domain.RunRecord) {
	m.runsActive.Inc()
}

// StepFinished учитывает шаг и его длительность.
func (m *Metrics) StepFinished(_ context.Context, _ *domain.RunRecord, step domain.StepResult) {
	m.stepsTotal.WithLabelValues(step.Type, string(step.Status)).Inc()
	m.stepDuration.WithLabelValues(step.Type).Observe(msToSeconds(step.DurationMs))
}

// RunFinished учитывает итог run.
func (m *Metrics) RunFinished(_ context.Context, rec *domain.RunRecord) {
	m.runsActive.Dec()
	m.runsTotal.WithLabelValues(rec.WorkflowName, string(rec.Status)).Inc()
	m.runDuration.WithLabelValues(rec.WorkflowName).Observe(msToSeconds(rec.DurationMs))
}

func msToSeconds(ms int64) float64 {
	return (time.Duration(ms) * time.Millisecond).Seconds()
}
