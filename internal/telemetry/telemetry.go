// Package telemetry defines the Prometheus metrics the Master Controller
// records for stage duration and gate verdicts. Nothing in this module
// serves an HTTP /metrics endpoint: exposing the registry is left to the
// embedding application, consistent with spec.md's non-goal of shipping a
// UI or outer surface.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Telemetry holds one run's (or one process's) metric instruments,
// registered against its own Registry rather than the global default —
// constructed explicitly and threaded through the Master the same way
// its logger is, never a package-level global.
type Telemetry struct {
	Registry *prometheus.Registry

	StageDurationSeconds *prometheus.HistogramVec
	GateVerdictsTotal    *prometheus.CounterVec
	WorkerRetriesTotal   *prometheus.CounterVec
	RunsTotal            *prometheus.CounterVec
}

// New builds a Telemetry with all instruments registered against a fresh
// registry.
func New() *Telemetry {
	reg := prometheus.NewRegistry()

	t := &Telemetry{
		Registry: reg,
		StageDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shipyard_stage_duration_seconds",
				Help:    "Duration of a completed pipeline stage, by stage ID.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),
		GateVerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipyard_gate_verdicts_total",
				Help: "Total gate evaluations, by gate ID and verdict (pass/fail).",
			},
			[]string{"gate", "verdict"},
		),
		WorkerRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipyard_worker_retries_total",
				Help: "Total worker dispatch retries, by worker ID.",
			},
			[]string{"worker"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipyard_runs_total",
				Help: "Total completed runs, by terminal status (shipped/aborted).",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(t.StageDurationSeconds, t.GateVerdictsTotal, t.WorkerRetriesTotal, t.RunsTotal)
	return t
}

// ObserveStageDuration records how long stageID took to complete.
func (t *Telemetry) ObserveStageDuration(stageID string, seconds float64) {
	if t == nil {
		return
	}
	t.StageDurationSeconds.WithLabelValues(stageID).Observe(seconds)
}

// RecordGateVerdict records one gate evaluation's outcome.
func (t *Telemetry) RecordGateVerdict(gateID string, passed bool) {
	if t == nil {
		return
	}
	verdict := "fail"
	if passed {
		verdict = "pass"
	}
	t.GateVerdictsTotal.WithLabelValues(gateID, verdict).Inc()
}

// RecordWorkerRetry records one retried dispatch attempt for workerID.
func (t *Telemetry) RecordWorkerRetry(workerID string) {
	if t == nil {
		return
	}
	t.WorkerRetriesTotal.WithLabelValues(workerID).Inc()
}

// RecordRunComplete records one run's terminal status.
func (t *Telemetry) RecordRunComplete(status string) {
	if t == nil {
		return
	}
	t.RunsTotal.WithLabelValues(status).Inc()
}
