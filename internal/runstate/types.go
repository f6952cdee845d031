// Package runstate implements the typed, stage-ordered, durable shared
// state of a single run. Every successful mutation is persisted to disk
// before the call returns; out-of-order writes are rejected.
package runstate

import (
	"github.com/antigravity-dev/shipyard/internal/evidence"
	"github.com/antigravity-dev/shipyard/internal/specs"
)

// Status is the closed set of run statuses.
type Status string

const (
	StatusRunning Status = "running"
	StatusShipped Status = "shipped"
	StatusAborted Status = "aborted"
)

// WorkUnitStatus is the closed set of work unit statuses.
type WorkUnitStatus string

const (
	WorkUnitPending  WorkUnitStatus = "pending"
	WorkUnitBuilding WorkUnitStatus = "building"
	WorkUnitDone     WorkUnitStatus = "done"
	WorkUnitFailed   WorkUnitStatus = "failed"
)

// WorkUnit is a single unit of planned work, created by the planning stage
// and mutated by the building stage.
type WorkUnit struct {
	ID           string         `json:"id"`
	FeatureIDs   []string       `json:"featureIds"`
	Description  string         `json:"description"`
	Dependencies []string       `json:"dependencies"`
	Status       WorkUnitStatus `json:"status"`
	OutputFiles  []string       `json:"outputFiles"`
}

// Plan is the output of the planning stage.
type Plan struct {
	Summary   string     `json:"summary"`
	WorkUnits []WorkUnit `json:"workUnits"`
}

// BuildOutput is the output of the assembly stage. Its payload is a
// free-form bag: the core does not interpret what a builder produced,
// only that it produced something.
type BuildOutput struct {
	Summary string                 `json:"summary"`
	Data    map[string]interface{} `json:"data"`
}

// TestResult is a single journey's test outcome from the testing stage.
type TestResult struct {
	JourneyID string `json:"journeyId"`
	Passed    bool   `json:"passed"`
	Details   string `json:"details"`
}

// UIInspection is the output of the visual-inspection stage.
type UIInspection struct {
	Passed bool                   `json:"passed"`
	Score  float64                `json:"score"`
	Notes  string                 `json:"notes"`
	Data   map[string]interface{} `json:"data"`
}

// SecurityReport is the output of the security-audit stage.
type SecurityReport struct {
	Passed   bool                   `json:"passed"`
	Findings []string               `json:"findings"`
	Data     map[string]interface{} `json:"data"`
}

// ReleaseArtifact is a single packaged, content-addressed release output.
type ReleaseArtifact struct {
	Platform  string `json:"platform"`
	Path      string `json:"path"`
	SHA256    string `json:"sha256"`
	SizeBytes int64  `json:"sizeBytes"`
}

// GateCheck is a single named measurement within a GateResult.
type GateCheck struct {
	Name      string  `json:"name"`
	Passed    bool    `json:"passed"`
	Measured  float64 `json:"measured"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message,omitempty"`
}

// GateResult is the immutable output of one gate evaluation.
type GateResult struct {
	GateID    string      `json:"gateId"`
	Passed    bool        `json:"passed"`
	Timestamp string      `json:"timestamp"`
	Checks    []GateCheck `json:"checks"`
}

// ConsequenceHit records that a run observed a pattern already known to
// Consequence Memory.
type ConsequenceHit struct {
	RecordID  string                 `json:"recordId"`
	Timestamp string                 `json:"timestamp"`
	Stage     evidence.Stage         `json:"stage"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// StageTiming is the start/end timestamps recorded for one stage.
type StageTiming struct {
	Start string  `json:"start"`
	End   *string `json:"end,omitempty"`
}

// wireState is the exact, stably-ordered JSON shape written to
// run-state.json. Field order here is the field order on disk.
type wireState struct {
	RunID            string                          `json:"runId"`
	Spec             *specs.Spec                     `json:"spec"`
	Plan             *Plan                           `json:"plan,omitempty"`
	WorkUnits        []WorkUnit                       `json:"workUnits,omitempty"`
	BuildOutput      *BuildOutput                     `json:"buildOutput,omitempty"`
	TestResults      []TestResult                     `json:"testResults,omitempty"`
	UIInspection     *UIInspection                    `json:"uiInspection,omitempty"`
	SecurityReport   *SecurityReport                  `json:"securityReport,omitempty"`
	ReleaseArtifacts []ReleaseArtifact                 `json:"releaseArtifacts,omitempty"`
	GateResults      []GateResult                     `json:"gateResults,omitempty"`
	ConsequenceHits  []ConsequenceHit                  `json:"consequenceHits,omitempty"`
	Timestamps       map[evidence.Stage]StageTiming   `json:"timestamps,omitempty"`
	Status           Status                            `json:"status"`
	CurrentStage     evidence.Stage                    `json:"currentStage"`
}
