package master

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/shipyard/internal/evidence"
	"github.com/antigravity-dev/shipyard/internal/gate"
	"github.com/antigravity-dev/shipyard/internal/pipeline"
	"github.com/antigravity-dev/shipyard/internal/runstate"
	"github.com/antigravity-dev/shipyard/internal/worker"
)

// doneWorker always reports Done, after running the optional onExecute
// hook (whose error, if any, is returned instead).
type doneWorker struct {
	worker.BaseWorker
	onExecute func(input map[string]interface{}) error
}

func (w *doneWorker) Execute(_ context.Context, input map[string]interface{}) (worker.Result, error) {
	if w.onExecute != nil {
		if err := w.onExecute(input); err != nil {
			return worker.Result{}, err
		}
	}
	return worker.Done(), nil
}

func registerDoneWorker(t *testing.T, registry *worker.Registry, id string, stage evidence.Stage, requires, produces []string) {
	t.Helper()
	w := &doneWorker{BaseWorker: worker.BaseWorker{
		IDValue:       id,
		StageValue:    stage,
		RequiresValue: requires,
		ProducesValue: produces,
	}}
	if err := registry.Register(w); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
}

func passGate(id string) func(map[string]interface{}) runstate.GateResult {
	return func(map[string]interface{}) runstate.GateResult {
		return runstate.GateResult{GateID: id, Passed: true, Timestamp: "t0"}
	}
}

// TestHappyPathNineStageRun drives the full default nine-stage pipeline to
// completion, matching spec.md's seed scenario 1.
func TestHappyPathNineStageRun(t *testing.T) {
	dir := t.TempDir()

	workers := worker.NewRegistry()
	registerDoneWorker(t, workers, "spec-validator", evidence.StageSpecValidation, []string{"spec"}, []string{"specValidated"})
	registerDoneWorker(t, workers, "planner", evidence.StagePlanning, []string{"specValidated"}, []string{"plan", "workUnits"})
	registerDoneWorker(t, workers, "builder", evidence.StageBuilding, []string{"plan", "workUnits"}, []string{"buildOutput"})
	registerDoneWorker(t, workers, "assembler", evidence.StageAssembly, []string{"plan", "buildOutput"}, []string{"buildSuccess"})
	registerDoneWorker(t, workers, "tester", evidence.StageTesting, []string{"buildOutput"}, []string{"testResults"})
	registerDoneWorker(t, workers, "ui-inspector", evidence.StageUIInspection, []string{"testResults"}, []string{"uiInspection"})
	registerDoneWorker(t, workers, "security-auditor", evidence.StageSecurityAudit, []string{"buildOutput"}, []string{"securityReport"})
	registerDoneWorker(t, workers, "packager", evidence.StageReleasePackage, []string{"securityReport"}, []string{"releaseArtifacts"})
	registerDoneWorker(t, workers, "run-auditor", evidence.StageRunAudit, []string{"releaseArtifacts"}, []string{"manifest"})

	gates := gate.NewRegistry()
	for _, id := range []string{"spec_valid", "plan_complete", "build_success", "tests_pass", "visual_qa", "security_clear", "artifact_ready", "manifest_valid"} {
		if err := gates.Register(id, passGate(id)); err != nil {
			t.Fatalf("register gate %s: %v", id, err)
		}
	}

	p, err := pipeline.DefaultFactory1()
	if err != nil {
		t.Fatalf("DefaultFactory1: %v", err)
	}

	m := New(workers, gates, p, Options{PersistDir: dir}, nil)
	outcome, err := m.Run(context.Background(), "run-happy", testSpec(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if outcome.Status != runstate.StatusShipped {
		t.Fatalf("expected shipped, got %s", outcome.Status)
	}
	if outcome.StageReached != evidence.StageRunAudit {
		t.Fatalf("expected stageReached run_audit, got %s", outcome.StageReached)
	}
	if outcome.GatesPassed != 8 {
		t.Fatalf("expected gatesPassed=8, got %d", outcome.GatesPassed)
	}
	if outcome.GatesFailed != 0 {
		t.Fatalf("expected gatesFailed=0, got %d", outcome.GatesFailed)
	}

	chain, err := evidence.ReadFromFile(filepath.Join(dir, "run-happy", "evidence-chain.ndjson"))
	if err != nil {
		t.Fatalf("read chain: %v", err)
	}

	var gatePass, gateFail, runStart, runEnd, workerStart, workerEnd, stageStartNotes, stageEndNotes int
	for i := 0; i < chain.Length(); i++ {
		e, _ := chain.GetEntry(uint64(i))
		switch e.Type {
		case evidence.TypeGatePass:
			gatePass++
		case evidence.TypeGateFail:
			gateFail++
		case evidence.TypeRunStart:
			runStart++
		case evidence.TypeRunEnd:
			runEnd++
		case evidence.TypeWorkerStart:
			workerStart++
		case evidence.TypeWorkerEnd:
			workerEnd++
		case evidence.TypeNote:
			switch e.Data["event"] {
			case "stage_start":
				stageStartNotes++
			case "stage_end":
				stageEndNotes++
			}
		}
	}

	if gatePass != 8 {
		t.Fatalf("expected 8 gate_pass entries, got %d", gatePass)
	}
	if gateFail != 0 {
		t.Fatalf("expected 0 gate_fail entries, got %d", gateFail)
	}
	if runStart != 1 || runEnd != 1 {
		t.Fatalf("expected exactly 1 run_start and 1 run_end, got %d/%d", runStart, runEnd)
	}
	if workerStart != 9 || workerEnd != 9 {
		t.Fatalf("expected 9 worker_start and 9 worker_end, got %d/%d", workerStart, workerEnd)
	}
	if stageStartNotes != 9 || stageEndNotes != 9 {
		t.Fatalf("expected 9 stage_start and 9 stage_end notes, got %d/%d", stageStartNotes, stageEndNotes)
	}

	verify := chain.Verify()
	if !verify.Valid {
		t.Fatalf("expected valid hash-linked chain, got %+v", verify)
	}
}
