package manifest

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/antigravity-dev/shipyard/internal/canon"
	"github.com/antigravity-dev/shipyard/internal/evidence"
	"github.com/antigravity-dev/shipyard/internal/pipeline"
	"github.com/antigravity-dev/shipyard/internal/runstate"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Build constructs the final RunManifest from a terminal run state and its
// evidence chain. p supplies the stage order and gate map used to shape
// stages[]; it may be nil, in which case stages[] is derived purely from
// RunState's recorded timestamps (no gate annotation).
func Build(state *runstate.State, chain *evidence.Chain, p *pipeline.Pipeline) (RunManifest, error) {
	timeline := chain.GetTimeline()

	startedAt, completedAt := runBoundaries(timeline)
	duration := durationMs(startedAt, completedAt)

	artifacts := state.ReleaseArtifacts()
	if artifacts == nil {
		artifacts = []runstate.ReleaseArtifact{}
	}
	gateVerdicts := state.GateResults()
	if gateVerdicts == nil {
		gateVerdicts = []runstate.GateResult{}
	}

	m := RunManifest{
		SchemaVersion:       SchemaVersion,
		RunID:               state.RunID(),
		Status:              state.Status(),
		SpecHash:            state.Spec().SpecHash(),
		StartedAt:           startedAt,
		CompletedAt:         completedAt,
		DurationMs:          duration,
		Stages:              buildStages(state, timeline, p),
		GateVerdicts:        gateVerdicts,
		ArtifactHashes:      artifacts,
		LLMUsage:            aggregateLLMUsage(timeline),
		EvidenceChainHash:   chainHash(chain),
		EvidenceChainLength: chain.Length(),
		ConsequenceHitCount: len(state.ConsequenceHits()),
	}

	hash, err := hashManifest(m)
	if err != nil {
		return RunManifest{}, fmt.Errorf("manifest: hash: %w", err)
	}
	m.ManifestHash = hash
	return m, nil
}

func runBoundaries(timeline []evidence.Entry) (started, completed string) {
	now := formatTimestamp(time.Now())
	started, completed = now, now

	for _, e := range timeline {
		if e.Type == evidence.TypeRunStart {
			started = e.Timestamp
			break
		}
	}
	for i := len(timeline) - 1; i >= 0; i-- {
		if timeline[i].Type == evidence.TypeRunEnd {
			completed = timeline[i].Timestamp
			break
		}
	}
	return started, completed
}

func durationMs(startedAt, completedAt string) int64 {
	start, err1 := time.Parse(timestampLayout, startedAt)
	end, err2 := time.Parse(timestampLayout, completedAt)
	if err1 != nil || err2 != nil {
		return 0
	}
	d := end.Sub(start).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func buildStages(state *runstate.State, timeline []evidence.Entry, p *pipeline.Pipeline) []StageSummary {
	timestamps := state.Timestamps()

	workerIDByStage := map[evidence.Stage]string{}
	for _, e := range timeline {
		if e.Type == evidence.TypeNote && e.Data["event"] == "stage_start" {
			if wid, ok := e.Data["workerId"].(string); ok && wid != "" {
				workerIDByStage[e.Stage] = wid
			} else if e.WorkerID != "" {
				workerIDByStage[e.Stage] = e.WorkerID
			}
		}
	}

	var stageOrder []evidence.Stage
	if p != nil {
		for _, id := range p.TopologicalOrder() {
			if cfg, ok := p.Get(id); ok {
				stageOrder = append(stageOrder, evidence.Stage(cfg.ID))
			}
		}
	}
	if len(stageOrder) == 0 {
		for stage := range timestamps {
			stageOrder = append(stageOrder, stage)
		}
		sort.Slice(stageOrder, func(i, j int) bool { return stageOrder[i] < stageOrder[j] })
	}

	out := make([]StageSummary, 0, len(stageOrder))
	for _, stage := range stageOrder {
		timing, ok := timestamps[stage]
		if !ok {
			continue
		}
		summary := StageSummary{
			StageID:  string(stage),
			WorkerID: workerIDByStage[stage],
			Start:    timing.Start,
			End:      timing.End,
		}
		if p != nil {
			if gateID := p.GateFor(string(stage)); gateID != "" {
				summary.GateID = gateID
				if result, found := state.GateResultFor(gateID); found {
					passed := result.Passed
					summary.GatePassed = &passed
				}
			}
		}
		out = append(out, summary)
	}
	return out
}

func aggregateLLMUsage(timeline []evidence.Entry) LLMUsage {
	usage := LLMUsage{Models: []string{}}
	seenModels := map[string]bool{}

	for _, e := range timeline {
		if e.Type != evidence.TypeLLMCall {
			continue
		}
		usage.TotalCalls++
		usage.TotalPromptTokens += numericField(e.Data, "promptTokens")
		usage.TotalCompletionTokens += numericField(e.Data, "completionTokens")
		usage.TotalDurationMs += numericField(e.Data, "durationMs")
		if model, ok := e.Data["model"].(string); ok && model != "" && !seenModels[model] {
			seenModels[model] = true
			usage.Models = append(usage.Models, model)
		}
	}
	sort.Strings(usage.Models)
	return usage
}

func numericField(data map[string]interface{}, key string) int64 {
	switch v := data[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return 0
	}
}

func chainHash(chain *evidence.Chain) string {
	if chain.Length() == 0 {
		return canon.HashBytes([]byte("empty"))
	}
	last, _ := chain.GetEntry(uint64(chain.Length() - 1))
	return last.Hash
}

func hashManifest(m RunManifest) (string, error) {
	m.ManifestHash = ""
	return canon.Hash(m)
}
