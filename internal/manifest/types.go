// Package manifest builds the final RunManifest: a deterministic digest
// over a terminal Run State and its Evidence Chain, proving exactly what
// happened during a run.
package manifest

import "github.com/antigravity-dev/shipyard/internal/runstate"

const SchemaVersion = "2026.1"

// StageSummary is one pipeline stage's contribution to the manifest.
type StageSummary struct {
	StageID    string  `json:"stageId"`
	WorkerID   string  `json:"workerId,omitempty"`
	Start      string  `json:"start"`
	End        *string `json:"end,omitempty"`
	GateID     string  `json:"gateId,omitempty"`
	GatePassed *bool   `json:"gatePassed,omitempty"`
}

// LLMUsage aggregates every llm_call evidence entry in the chain.
type LLMUsage struct {
	TotalCalls           int      `json:"totalCalls"`
	TotalPromptTokens    int64    `json:"totalPromptTokens"`
	TotalCompletionTokens int64   `json:"totalCompletionTokens"`
	TotalDurationMs      int64    `json:"totalDurationMs"`
	Models               []string `json:"models"`
}

// RunManifest is the final, immutable, self-hashed summary of a run. It
// is a pure function of (RunState, EvidenceChain): building it twice from
// the same inputs yields byte-identical JSON.
type RunManifest struct {
	SchemaVersion       string                `json:"schemaVersion"`
	RunID               string                `json:"runId"`
	Status              runstate.Status       `json:"status"`
	SpecHash            string                `json:"specHash"`
	StartedAt           string                `json:"startedAt"`
	CompletedAt         string                `json:"completedAt"`
	DurationMs          int64                 `json:"durationMs"`
	Stages              []StageSummary        `json:"stages"`
	GateVerdicts        []runstate.GateResult `json:"gateVerdicts"`
	ArtifactHashes      []runstate.ReleaseArtifact `json:"artifactHashes"`
	LLMUsage            LLMUsage              `json:"llmUsage"`
	EvidenceChainHash   string                `json:"evidenceChainHash"`
	EvidenceChainLength int                   `json:"evidenceChainLength"`
	ConsequenceHitCount int                   `json:"consequenceHitCount"`
	ManifestHash        string                `json:"manifestHash"`
}
