package manifest

import (
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/shipyard/internal/evidence"
	"github.com/antigravity-dev/shipyard/internal/pipeline"
	"github.com/antigravity-dev/shipyard/internal/runstate"
	"github.com/antigravity-dev/shipyard/internal/specs"
)

func testSpec(t *testing.T) *specs.Spec {
	t.Helper()
	raw := `{
		"schema_version": "2026.1",
		"product": {"name": "Widgetizer"},
		"features": [{"id": "f1", "name": "a"}],
		"journeys": [{"id": "j1", "name": "n", "featureIds": ["f1"], "steps": [
			{"kind": "action", "description": "do"},
			{"kind": "assertion", "description": "check"}
		]}],
		"quality": {},
		"delivery": {"platforms": ["web"], "channel": "direct"}
	}`
	s, err := specs.Validate([]byte(raw))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	return s
}

func buildTestPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New([]pipeline.StageConfig{
		{ID: "testing", Worker: "tester", Gate: "tests_pass", Requires: []string{"spec"}, Produces: []string{"testResults"}},
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return p
}

func TestBuildIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	spec := testSpec(t)
	state, err := runstate.New("run-1", spec, filepath.Join(dir, "run-state.json"))
	if err != nil {
		t.Fatalf("runstate.New: %v", err)
	}

	chain := evidence.New()
	if _, err := chain.Append(evidence.Input{Type: evidence.TypeRunStart, WorkerID: "master", Stage: evidence.StageInitializing}); err != nil {
		t.Fatalf("append run_start: %v", err)
	}
	if err := state.StageStart(evidence.StageTesting, "2026-01-01T00:00:00.000Z"); err != nil {
		t.Fatalf("StageStart: %v", err)
	}
	if _, err := chain.Append(evidence.Input{Type: evidence.TypeNote, WorkerID: "master", Stage: evidence.StageTesting, Data: map[string]interface{}{"event": "stage_start", "workerId": "tester"}}); err != nil {
		t.Fatalf("append stage_start note: %v", err)
	}
	if _, err := chain.Append(evidence.Input{
		Type: evidence.TypeLLMCall, WorkerID: "tester", Stage: evidence.StageTesting,
		Data: map[string]interface{}{
			"promptHash": "ph1", "responseHash": "rh1", "model": "model-a",
			"promptTokens": float64(100), "completionTokens": float64(40), "durationMs": float64(500),
			"role": "assistant",
		},
	}); err != nil {
		t.Fatalf("append llm_call: %v", err)
	}
	if _, err := chain.Append(evidence.Input{
		Type: evidence.TypeLLMCall, WorkerID: "tester", Stage: evidence.StageTesting,
		Data: map[string]interface{}{
			"promptHash": "ph2", "responseHash": "rh2", "model": "model-a",
			"promptTokens": float64(50), "completionTokens": float64(20), "durationMs": float64(250),
			"role": "assistant",
		},
	}); err != nil {
		t.Fatalf("append second llm_call: %v", err)
	}
	if err := state.StageEnd(evidence.StageTesting, "2026-01-01T00:00:01.000Z"); err != nil {
		t.Fatalf("StageEnd: %v", err)
	}
	gateResult := runstate.GateResult{GateID: "tests_pass", Passed: true, Timestamp: "2026-01-01T00:00:01.000Z"}
	if err := state.AddGateResult(gateResult); err != nil {
		t.Fatalf("AddGateResult: %v", err)
	}
	if _, err := chain.Append(evidence.Input{Type: evidence.TypeGatePass, WorkerID: "gate-registry", Stage: evidence.StageTesting}); err != nil {
		t.Fatalf("append gate_pass: %v", err)
	}
	if err := state.SetStatus(runstate.StatusShipped); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if _, err := chain.Append(evidence.Input{Type: evidence.TypeRunEnd, WorkerID: "master", Stage: evidence.StageTesting, Data: map[string]interface{}{"status": "shipped"}}); err != nil {
		t.Fatalf("append run_end: %v", err)
	}

	p := buildTestPipeline(t)

	m1, err := Build(state, chain, p)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	m2, err := Build(state, chain, p)
	if err != nil {
		t.Fatalf("Build (second call): %v", err)
	}
	if m1.ManifestHash != m2.ManifestHash {
		t.Fatalf("expected byte-identical manifest hash across repeated builds, got %s vs %s", m1.ManifestHash, m2.ManifestHash)
	}

	if m1.SchemaVersion != SchemaVersion {
		t.Fatalf("expected schemaVersion %s, got %s", SchemaVersion, m1.SchemaVersion)
	}
	if m1.RunID != "run-1" {
		t.Fatalf("expected runId run-1, got %s", m1.RunID)
	}
	if m1.Status != runstate.StatusShipped {
		t.Fatalf("expected status shipped, got %s", m1.Status)
	}
	if m1.SpecHash != spec.SpecHash() {
		t.Fatalf("expected specHash to match spec")
	}
	if m1.EvidenceChainLength != chain.Length() {
		t.Fatalf("expected evidenceChainLength %d, got %d", chain.Length(), m1.EvidenceChainLength)
	}
	lastEntry, _ := chain.GetEntry(uint64(chain.Length() - 1))
	if m1.EvidenceChainHash != lastEntry.Hash {
		t.Fatalf("expected evidenceChainHash to equal last entry's hash")
	}
	if m1.ConsequenceHitCount != 0 {
		t.Fatalf("expected consequenceHitCount 0, got %d", m1.ConsequenceHitCount)
	}

	if m1.LLMUsage.TotalCalls != 2 {
		t.Fatalf("expected 2 llm calls, got %d", m1.LLMUsage.TotalCalls)
	}
	if m1.LLMUsage.TotalPromptTokens != 150 {
		t.Fatalf("expected 150 total prompt tokens, got %d", m1.LLMUsage.TotalPromptTokens)
	}
	if m1.LLMUsage.TotalCompletionTokens != 60 {
		t.Fatalf("expected 60 total completion tokens, got %d", m1.LLMUsage.TotalCompletionTokens)
	}
	if m1.LLMUsage.TotalDurationMs != 750 {
		t.Fatalf("expected 750ms total llm duration, got %d", m1.LLMUsage.TotalDurationMs)
	}
	if len(m1.LLMUsage.Models) != 1 || m1.LLMUsage.Models[0] != "model-a" {
		t.Fatalf("expected deduplicated models [model-a], got %v", m1.LLMUsage.Models)
	}

	if len(m1.Stages) != 1 {
		t.Fatalf("expected exactly 1 stage summary, got %d", len(m1.Stages))
	}
	stage := m1.Stages[0]
	if stage.StageID != "testing" || stage.WorkerID != "tester" {
		t.Fatalf("unexpected stage summary: %+v", stage)
	}
	if stage.GateID != "tests_pass" || stage.GatePassed == nil || !*stage.GatePassed {
		t.Fatalf("expected gate annotation tests_pass/passed, got %+v", stage)
	}

	if len(m1.GateVerdicts) != 1 || m1.GateVerdicts[0].GateID != "tests_pass" {
		t.Fatalf("expected gateVerdicts to include tests_pass, got %+v", m1.GateVerdicts)
	}
}

func TestBuildEmptyChainHashesLiteralEmpty(t *testing.T) {
	dir := t.TempDir()
	state, err := runstate.New("run-empty", testSpec(t), filepath.Join(dir, "run-state.json"))
	if err != nil {
		t.Fatalf("runstate.New: %v", err)
	}
	chain := evidence.New()

	m, err := Build(state, chain, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.EvidenceChainLength != 0 {
		t.Fatalf("expected evidenceChainLength 0, got %d", m.EvidenceChainLength)
	}
	if m.EvidenceChainHash == "" {
		t.Fatalf("expected a non-empty literal-empty hash for an empty chain")
	}
}
