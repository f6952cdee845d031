// Package master implements the Master Controller: the deterministic
// state machine that walks a Pipeline's stages in topological order,
// dispatches each stage's worker with bounded retry, evaluates its gate,
// persists Run State and the Evidence Chain after every mutation, and
// supports resuming a crashed run from disk alone.
package master

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/shipyard/internal/evidence"
	"github.com/antigravity-dev/shipyard/internal/gate"
	"github.com/antigravity-dev/shipyard/internal/pipeline"
	"github.com/antigravity-dev/shipyard/internal/runstate"
	"github.com/antigravity-dev/shipyard/internal/specs"
	"github.com/antigravity-dev/shipyard/internal/telemetry"
	"github.com/antigravity-dev/shipyard/internal/worker"
)

// Options configures a Master. MaxRetries defaults to 2 when zero, per
// spec.md §4.H's dispatch_with_retry.
type Options struct {
	MaxRetries int
	PersistDir string

	// RetryBackoffBase/RetryBackoffMax bound the delay before a retried
	// worker dispatch; zero base means retries happen with no delay.
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

func (o Options) maxRetries() int {
	if o.MaxRetries <= 0 {
		return 2
	}
	return o.MaxRetries
}

// Master is the run orchestrator. One Master may drive many sequential
// runs; it holds no per-run mutable state itself — that lives in the
// State and Chain passed through Run/Resume.
type Master struct {
	workers  *worker.Registry
	gates    *gate.Registry
	pipeline *pipeline.Pipeline
	opts     Options
	log      *slog.Logger
	tel      *telemetry.Telemetry
}

// New constructs a Master wired to the given registries and pipeline.
func New(workers *worker.Registry, gates *gate.Registry, pl *pipeline.Pipeline, opts Options, log *slog.Logger) *Master {
	if log == nil {
		log = slog.Default()
	}
	return &Master{workers: workers, gates: gates, pipeline: pl, opts: opts, log: log}
}

// WithTelemetry attaches a Telemetry instance the Master will report stage
// duration, gate verdicts, retries, and terminal run status to. Nil-safe:
// an unattached Master records nothing.
func (m *Master) WithTelemetry(tel *telemetry.Telemetry) *Master {
	m.tel = tel
	return m
}

// Outcome is a run's terminal result. GatesPassed/GatesFailed are pure
// audit counts over runState.gateResults (spec.md §7: "these are audit
// figures, not pipeline decisions") and are reported regardless of
// whether the run shipped or aborted.
type Outcome struct {
	Status       runstate.Status
	AbortReason  string
	StageReached evidence.Stage
	GatesPassed  int
	GatesFailed  int
}

func gateAuditCounts(state *runstate.State) (passed, failed int) {
	for _, r := range state.GateResults() {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

func runDir(persistDir, runID string) string {
	return filepath.Join(persistDir, runID)
}

// Run starts a brand-new run for spec and drives it to a terminal state.
// runID may be empty, in which case a fresh UUID is generated.
func (m *Master) Run(ctx context.Context, runID string, spec *specs.Spec) (Outcome, error) {
	if runID == "" {
		runID = uuid.NewString()
	}

	dir := runDir(m.opts.PersistDir, runID)
	statePath := filepath.Join(dir, "run-state.json")

	state, err := runstate.New(runID, spec, statePath)
	if err != nil {
		return Outcome{}, fmt.Errorf("master: create run state: %w", err)
	}

	return m.runFromState(ctx, state, spec)
}

// RunWithState drives a brand-new run from a *runstate.State the caller
// already constructed (via runstate.New) and handed to its own workers'
// constructors. Use this instead of Run when a worker needs to mutate Run
// State slots directly (spec.md §4's data flow: "worker mutates Run
// State slots"), since that requires the worker to hold the very State
// instance the Master will dispatch against, not a copy created later.
func (m *Master) RunWithState(ctx context.Context, state *runstate.State, spec *specs.Spec) (Outcome, error) {
	return m.runFromState(ctx, state, spec)
}

func (m *Master) runFromState(ctx context.Context, state *runstate.State, spec *specs.Spec) (Outcome, error) {
	runID := state.RunID()
	dir := runDir(m.opts.PersistDir, runID)
	chainPath := filepath.Join(dir, "evidence-chain.ndjson")

	chain := evidence.New()
	if _, err := chain.Append(evidence.Input{
		Type:     evidence.TypeRunStart,
		WorkerID: "master",
		Stage:    evidence.StageInitializing,
		Data: map[string]interface{}{
			"runId":      runID,
			"specHash":   spec.SpecHash(),
			"pipeline":   m.pipeline.ToEvidence(),
			"maxRetries": m.opts.maxRetries(),
		},
	}); err != nil {
		return Outcome{}, fmt.Errorf("master: append run_start: %w", err)
	}
	if err := persistChain(chain, chainPath); err != nil {
		return Outcome{}, err
	}

	m.log.Info("run started", "runId", runID, "specHash", spec.SpecHash())
	return m.executeLoop(ctx, state, chain, chainPath)
}

// Resume loads a previously persisted, non-terminal run and continues it.
// Workers whose stage is already complete are never re-invoked.
func (m *Master) Resume(ctx context.Context, persistDir, runID string) (Outcome, error) {
	statePath := filepath.Join(runDir(persistDir, runID), "run-state.json")
	state, err := runstate.Load(statePath)
	if err != nil {
		return Outcome{}, fmt.Errorf("master: load run state: %w", err)
	}
	return m.resumeFromState(ctx, persistDir, runID, state)
}

// ResumeWithState resumes a previously persisted, non-terminal run using a
// *runstate.State the caller already loaded (via runstate.Load) and handed
// to its own workers' constructors. Use this instead of Resume when a
// worker needs to mutate Run State slots directly, for the same reason
// RunWithState exists alongside Run.
func (m *Master) ResumeWithState(ctx context.Context, persistDir, runID string, state *runstate.State) (Outcome, error) {
	return m.resumeFromState(ctx, persistDir, runID, state)
}

func (m *Master) resumeFromState(ctx context.Context, persistDir, runID string, state *runstate.State) (Outcome, error) {
	dir := runDir(persistDir, runID)
	chainPath := filepath.Join(dir, "evidence-chain.ndjson")

	if state.Status() != runstate.StatusRunning {
		return Outcome{}, fmt.Errorf("master: cannot resume run %q: status is %q, not running", runID, state.Status())
	}

	chain, err := evidence.ReadFromFile(chainPath)
	if err != nil {
		return Outcome{}, fmt.Errorf("master: load evidence chain: %w", err)
	}

	if _, err := chain.Append(evidence.Input{
		Type:     evidence.TypeNote,
		WorkerID: "master",
		Stage:    state.CurrentStage(),
		Data:     map[string]interface{}{"event": "run_resumed", "runId": runID},
	}); err != nil {
		return Outcome{}, fmt.Errorf("master: append run_resumed note: %w", err)
	}
	if err := persistChain(chain, chainPath); err != nil {
		return Outcome{}, err
	}

	m.log.Info("run resumed", "runId", runID)
	return m.executeLoop(ctx, state, chain, chainPath)
}

func (m *Master) executeLoop(ctx context.Context, state *runstate.State, chain *evidence.Chain, chainPath string) (Outcome, error) {
	lastStage := evidence.Stage("")
	for _, stageID := range m.pipeline.TopologicalOrder() {
		stage, _ := m.pipeline.Get(stageID)
		lastStage = evidence.Stage(stage.ID)

		if m.stageComplete(state, stage) {
			continue
		}

		if err := state.SetCurrentStage(evidence.Stage(stage.ID)); err != nil {
			return Outcome{}, fmt.Errorf("master: set current stage: %w", err)
		}
		startedAt := time.Now()
		if err := state.StageStart(evidence.Stage(stage.ID), formatTime(startedAt)); err != nil {
			return Outcome{}, fmt.Errorf("master: stage start: %w", err)
		}
		if _, err := chain.Append(evidence.Input{
			Type:     evidence.TypeNote,
			WorkerID: "master",
			Stage:    evidence.Stage(stage.ID),
			Data:     map[string]interface{}{"event": "stage_start", "stageId": stage.ID, "workerId": stage.Worker},
		}); err != nil {
			return Outcome{}, fmt.Errorf("master: append stage_start note: %w", err)
		}

		result, dispatchErr := m.dispatchWithRetry(ctx, stage, state, chain)
		if dispatchErr != nil {
			return Outcome{}, fmt.Errorf("master: persist failure during dispatch: %w", dispatchErr)
		}

		endedAt := time.Now()
		if err := state.StageEnd(evidence.Stage(stage.ID), formatTime(endedAt)); err != nil {
			return Outcome{}, fmt.Errorf("master: stage end: %w", err)
		}
		m.tel.ObserveStageDuration(stage.ID, endedAt.Sub(startedAt).Seconds())
		if _, err := chain.Append(evidence.Input{
			Type:     evidence.TypeNote,
			WorkerID: "master",
			Stage:    evidence.Stage(stage.ID),
			Data:     map[string]interface{}{"event": "stage_end", "stageId": stage.ID, "workerStatus": string(result.Status)},
		}); err != nil {
			return Outcome{}, fmt.Errorf("master: append stage_end note: %w", err)
		}
		if err := persistChain(chain, chainPath); err != nil {
			return Outcome{}, err
		}

		if stage.Gate != "" {
			snapshot, err := gateSnapshot(state, result)
			if err != nil {
				return Outcome{}, fmt.Errorf("master: build gate snapshot: %w", err)
			}

			gateResult, err := m.gates.Evaluate(stage.Gate, snapshot, chain, evidence.Stage(stage.ID))
			if err != nil {
				return Outcome{}, fmt.Errorf("master: evaluate gate %q: %w", stage.Gate, err)
			}
			if err := state.AddGateResult(gateResult); err != nil {
				return Outcome{}, fmt.Errorf("master: record gate result: %w", err)
			}
			m.tel.RecordGateVerdict(stage.Gate, gateResult.Passed)
			if err := persistChain(chain, chainPath); err != nil {
				return Outcome{}, err
			}

			if !gateResult.Passed {
				reason := formatAbortReason(stage.Gate, stage.ID)
				if err := state.SetStatus(runstate.StatusAborted); err != nil {
					return Outcome{}, fmt.Errorf("master: set status aborted: %w", err)
				}
				if _, err := chain.Append(evidence.Input{
					Type:     evidence.TypeRunEnd,
					WorkerID: "master",
					Stage:    evidence.Stage(stage.ID),
					Data:     map[string]interface{}{"status": "aborted", "reason": reason},
				}); err != nil {
					return Outcome{}, fmt.Errorf("master: append run_end: %w", err)
				}
				if err := persistChain(chain, chainPath); err != nil {
					return Outcome{}, err
				}
				m.log.Warn("run aborted", "stage", stage.ID, "gate", stage.Gate, "reason", reason)
				m.tel.RecordRunComplete(string(runstate.StatusAborted))
				passed, failed := gateAuditCounts(state)
				return Outcome{
					Status:       runstate.StatusAborted,
					AbortReason:  reason,
					StageReached: evidence.Stage(stage.ID),
					GatesPassed:  passed,
					GatesFailed:  failed,
				}, nil
			}
		}
	}

	if err := state.SetStatus(runstate.StatusShipped); err != nil {
		return Outcome{}, fmt.Errorf("master: set status shipped: %w", err)
	}
	if _, err := chain.Append(evidence.Input{
		Type:     evidence.TypeRunEnd,
		WorkerID: "master",
		Stage:    evidence.StageRunAudit,
		Data:     map[string]interface{}{"status": "shipped"},
	}); err != nil {
		return Outcome{}, fmt.Errorf("master: append run_end: %w", err)
	}
	if err := persistChain(chain, chainPath); err != nil {
		return Outcome{}, err
	}

	m.log.Info("run shipped")
	m.tel.RecordRunComplete(string(runstate.StatusShipped))
	passed, failed := gateAuditCounts(state)
	return Outcome{
		Status:       runstate.StatusShipped,
		StageReached: lastStage,
		GatesPassed:  passed,
		GatesFailed:  failed,
	}, nil
}

// availableSlices builds the worker-dispatch input map: the named
// evidence slices already produced by every stage the resume predicate
// considers complete, plus "spec" which is available from the first
// moment a run exists. A not-yet-dispatched stage's own Produces are
// correctly absent, since stageComplete for an in-flight stage is false
// until its gate (or, for an ungated stage, its StageEnd) is recorded.
func (m *Master) availableSlices(state *runstate.State) map[string]interface{} {
	available := map[string]interface{}{"spec": state.Spec()}
	for _, stageID := range m.pipeline.TopologicalOrder() {
		stage, ok := m.pipeline.Get(stageID)
		if !ok || !m.stageComplete(state, stage) {
			continue
		}
		for _, name := range stage.Produces {
			available[name] = slotValue(state, name)
		}
	}
	return available
}

// slotValue resolves a named evidence slice to its RunState value. Slices
// with no dedicated RunState field (e.g. "specValidated", "buildSuccess",
// "manifest") are structural markers from pipeline slice-availability
// validation, not data payloads; their mere presence in the map is what a
// downstream worker's Requires check needs, so they resolve to a bare
// boolean marker.
func slotValue(state *runstate.State, name string) interface{} {
	switch name {
	case "plan":
		return state.Plan()
	case "workUnits":
		return state.WorkUnits()
	case "buildOutput":
		return state.BuildOutput()
	case "testResults":
		return state.TestResults()
	case "uiInspection":
		return state.UIInspection()
	case "securityReport":
		return state.SecurityReport()
	case "releaseArtifacts":
		return state.ReleaseArtifacts()
	default:
		return true
	}
}

// stageComplete implements the resume predicate: a gated stage is
// complete iff Run State already has a GateResult for its gate; an
// ungated stage is complete iff its timestamps[stage].end is present.
func (m *Master) stageComplete(state *runstate.State, stage pipeline.StageConfig) bool {
	if stage.Gate != "" {
		_, ok := state.GateResultFor(stage.Gate)
		return ok
	}
	timings := state.Timestamps()
	t, ok := timings[evidence.Stage(stage.ID)]
	return ok && t.End != nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func persistChain(chain *evidence.Chain, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("master: create evidence dir: %w", err)
	}
	if err := chain.WriteToFile(path); err != nil {
		return fmt.Errorf("master: persist evidence chain: %w", err)
	}
	return nil
}

// formatAbortReason names the gate and stage that aborted a run, per
// spec.md §8 seed scenario 2's literal expected substring
// ("gate 'tests_pass' failed at stage 'testing'").
func formatAbortReason(gateID, stage string) string {
	return fmt.Sprintf("gate '%s' failed at stage '%s'", gateID, stage)
}

func gateSnapshot(state *runstate.State, result worker.Result) (map[string]interface{}, error) {
	stateJSON, err := state.ToJSON()
	if err != nil {
		return nil, err
	}
	var runStateValue interface{}
	if err := json.Unmarshal(stateJSON, &runStateValue); err != nil {
		return nil, fmt.Errorf("master: decode run state for gate snapshot: %w", err)
	}

	snapshot := map[string]interface{}{
		"workerStatus": string(result.Status),
		"runState":     runStateValue,
	}
	if result.Status == worker.StatusFailed {
		snapshot["workerReason"] = result.Reason
	}
	return snapshot, nil
}
