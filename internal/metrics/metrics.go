// Package metrics holds the Prometheus collectors for pipeline steps, LLM calls, and change requests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/llm"
)

const namespace = "pmforge"

// Metrics owns a private registry so tests and multiple servers never collide.
type Metrics struct {
	registry      *prometheus.Registry
	steps         *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	runs          *prometheus.CounterVec
	llmCalls      *prometheus.CounterVec
	llmDuration   prometheus.Histogram
	changeResults *prometheus.CounterVec
}

// New registers every collector, plus the Go and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_steps_total",
			Help:      "Pipeline steps by step id and status.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_step_duration_seconds",
			Help:      "Wall time of pipeline steps.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"step"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"status"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "LLM calls by outcome. Every non-ok outcome is one retried or failed attempt.",
		}, []string{"outcome"}),
		llmDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "Wall time of LLM calls.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
		}),
		changeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_requests_total",
			Help:      "Applied change requests by op and result.",
		}, []string{"op", "result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.steps, m.stepDuration, m.runs, m.llmCalls, m.llmDuration, m.changeResults,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveStep records one pipeline step. It matches planner.StepObserver.
func (m *Metrics) ObserveStep(step, status string, elapsed time.Duration) {
	m.steps.WithLabelValues(step, status).Inc()
	m.stepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}

// ObserveRun records one finished pipeline run.
func (m *Metrics) ObserveRun(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.runs.WithLabelValues(status).Inc()
}

// ObserveLLM records one LLM call. It matches llm.Observer.
func (m *Metrics) ObserveLLM(outcome llm.CallOutcome, elapsed time.Duration) {
	m.llmCalls.WithLabelValues(string(outcome)).Inc()
	m.llmDuration.Observe(elapsed.Seconds())
}

// ObserveChange records one change-request outcome. It matches schedule.ChangeObserver.
func (m *Metrics) ObserveChange(op domain.ChangeOp, ok bool) {
	result := "applied"
	if !ok {
		result = "rejected"
	}
	m.changeResults.WithLabelValues(string(op), result).Inc()
}
