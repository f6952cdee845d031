package config

import (
	"fmt"

	"github.com/antigravity-dev/shipyard/internal/pipeline"
)

// BuildPipeline constructs the run pipeline cfg describes: the default
// nine-stage DAG, with each configured Pipeline.Insert spliced in via
// Pipeline.InsertStage, in the order the inserts appear in cfg.
func BuildPipeline(cfg *Config) (*pipeline.Pipeline, error) {
	p, err := pipeline.DefaultFactory1()
	if err != nil {
		return nil, fmt.Errorf("config: build default pipeline: %w", err)
	}

	for _, ins := range cfg.Pipeline.Insert {
		stage := pipeline.StageConfig{
			ID:       ins.New,
			Worker:   ins.Worker,
			Gate:     ins.Gate,
			Requires: append([]string(nil), ins.Requires...),
			Produces: append([]string(nil), ins.Produces...),
		}
		p, err = p.InsertStage(stage, ins.After)
		if err != nil {
			return nil, fmt.Errorf("config: insert pipeline stage %q: %w", ins.New, err)
		}
	}
	return p, nil
}
