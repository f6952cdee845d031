// Package evidence implements the append-only, hash-linked event log that
// is the source of truth for "what happened" during a run.
package evidence

import "time"

// EntryType is the closed set of evidence entry kinds.
type EntryType string

const (
	TypeRunStart         EntryType = "run_start"
	TypeWorkerStart      EntryType = "worker_start"
	TypeWorkerEnd        EntryType = "worker_end"
	TypeGatePass         EntryType = "gate_pass"
	TypeGateFail         EntryType = "gate_fail"
	TypeArtifactProduced EntryType = "artifact_produced"
	TypeLLMCall          EntryType = "llm_call"
	TypeError            EntryType = "error"
	TypeNote             EntryType = "note"
	TypeConsequenceHit   EntryType = "consequence_hit"
	TypeRunEnd           EntryType = "run_end"
)

// Stage is the closed set of pipeline stage names, plus the pre-run
// "initializing" pseudo-stage evidence is appended under before any real
// stage has started.
type Stage string

const (
	StageInitializing   Stage = "initializing"
	StageSpecValidation Stage = "spec_validation"
	StagePlanning       Stage = "planning"
	StageBuilding       Stage = "building"
	StageAssembly       Stage = "assembly"
	StageTesting        Stage = "testing"
	StageUIInspection   Stage = "ui_inspection"
	StageSecurityAudit  Stage = "security_audit"
	StageReleasePackage Stage = "release_package"
	StageRunAudit       Stage = "run_audit"
)

// DefaultStages is the canonical nine-stage order used by
// pipeline.DefaultFactory1.
var DefaultStages = []Stage{
	StageSpecValidation,
	StagePlanning,
	StageBuilding,
	StageAssembly,
	StageTesting,
	StageUIInspection,
	StageSecurityAudit,
	StageReleasePackage,
	StageRunAudit,
}

// Entry is a single, immutable evidence record. It is only ever produced by
// Chain.Append; nothing in this package mutates an Entry once constructed.
type Entry struct {
	Seq       uint64                 `json:"seq"`
	Timestamp string                 `json:"timestamp"`
	Type      EntryType              `json:"type"`
	WorkerID  string                 `json:"workerId"`
	Stage     Stage                  `json:"stage"`
	Data      map[string]interface{} `json:"data"`
	PrevHash  *string                `json:"prevHash"`
	Hash      string                 `json:"hash"`
}

// Input is what callers supply to Chain.Append; Seq, PrevHash and Hash are
// computed by the chain, never by the caller.
type Input struct {
	Type      EntryType
	WorkerID  string
	Stage     Stage
	Data      map[string]interface{}
	Timestamp time.Time // zero value means "use time.Now()"
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
