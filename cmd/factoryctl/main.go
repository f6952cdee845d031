// Command factoryctl is a minimal wiring demo for the AI Shipping
// Factory runtime: it loads a FactoryConfig, assembles the default
// nine-stage pipeline (plus any configured insertions), registers the
// illustrative stub/packager workers and default gates, drives one run
// to completion, and writes the resulting RunManifest next to the run's
// persisted state. It is not the product; it exists to exercise the
// core the way cortex's cmd/cortex/main.go exercises cortex's core.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/client"
	"github.com/google/uuid"

	"github.com/antigravity-dev/shipyard/internal/config"
	"github.com/antigravity-dev/shipyard/internal/evidence"
	"github.com/antigravity-dev/shipyard/internal/gate"
	"github.com/antigravity-dev/shipyard/internal/manifest"
	"github.com/antigravity-dev/shipyard/internal/master"
	"github.com/antigravity-dev/shipyard/internal/pipeline"
	"github.com/antigravity-dev/shipyard/internal/runstate"
	"github.com/antigravity-dev/shipyard/internal/specs"
	"github.com/antigravity-dev/shipyard/internal/telemetry"
	"github.com/antigravity-dev/shipyard/internal/worker"
	"github.com/antigravity-dev/shipyard/internal/workers/packager"
	"github.com/antigravity-dev/shipyard/internal/workers/stub"
)

func configureLogger(logLevel string, useDev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if useDev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func main() {
	configPath := flag.String("config", "factory.toml", "path to FactoryConfig file")
	specPath := flag.String("spec", "", "path to a Spec JSON file to run")
	runIDFlag := flag.String("run-id", "", "run ID (a UUID is generated if empty)")
	resume := flag.String("resume", "", "resume an existing run by ID instead of starting a new one")
	dockerImage := flag.String("image", "", "local Docker image reference the packager worker should inspect")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "factoryctl: load config: %v\n", err)
		os.Exit(1)
	}

	logger := configureLogger(cfg.General.LogLevel, *dev)
	slog.SetDefault(logger)

	pl, err := config.BuildPipeline(cfg)
	if err != nil {
		logger.Error("build pipeline", "error", err)
		os.Exit(1)
	}

	gates := gate.NewRegistry()
	if err := gate.RegisterDefaults(gates); err != nil {
		logger.Error("register default gates", "error", err)
		os.Exit(1)
	}

	tel := telemetry.New()
	opts := master.Options{
		MaxRetries:       cfg.General.MaxRetries,
		PersistDir:       cfg.General.PersistDir,
		RetryBackoffBase: cfg.General.RetryBackoffBase.Duration,
		RetryBackoffMax:  cfg.General.RetryBackoffMax.Duration,
	}

	ctx := context.Background()

	var outcome master.Outcome
	var runID string

	if *resume != "" {
		runID = *resume
		state, loadErr := runstate.Load(filepath.Join(cfg.General.PersistDir, runID, "run-state.json"))
		if loadErr != nil {
			logger.Error("load run state for resume", "error", loadErr)
			os.Exit(1)
		}
		workers := buildWorkers(state, logger, *dockerImage)
		m := master.New(workers, gates, pl, opts, logger).WithTelemetry(tel)
		outcome, err = m.ResumeWithState(ctx, cfg.General.PersistDir, runID, state)
	} else {
		if *specPath == "" {
			fmt.Fprintln(os.Stderr, "factoryctl: -spec is required unless -resume is given")
			os.Exit(1)
		}
		rawSpec, readErr := os.ReadFile(*specPath)
		if readErr != nil {
			logger.Error("read spec file", "error", readErr)
			os.Exit(1)
		}
		spec, validateErr := specs.Validate(rawSpec)
		if validateErr != nil {
			logger.Error("validate spec", "error", validateErr)
			os.Exit(1)
		}

		runID = *runIDFlag
		if runID == "" {
			runID = uuid.NewString()
		}
		statePath := filepath.Join(cfg.General.PersistDir, runID, "run-state.json")

		// The run's State is constructed here, ahead of the Master, so the
		// worker registry below can be wired against the very instance the
		// Master will dispatch against (spec.md §4's "worker mutates Run
		// State slots" data flow requires the same shared object, not a
		// copy created later inside Run).
		state, createErr := runstate.New(runID, spec, statePath)
		if createErr != nil {
			logger.Error("create run state", "error", createErr)
			os.Exit(1)
		}

		workers := buildWorkers(state, logger, *dockerImage)
		m := master.New(workers, gates, pl, opts, logger).WithTelemetry(tel)
		outcome, err = m.RunWithState(ctx, state, spec)
	}

	if err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}

	logger.Info("run finished", "status", outcome.Status, "stageReached", outcome.StageReached,
		"gatesPassed", outcome.GatesPassed, "gatesFailed", outcome.GatesFailed, "abortReason", outcome.AbortReason)

	if err := writeManifest(cfg.General.PersistDir, runID, pl); err != nil {
		logger.Error("write manifest", "error", err)
		os.Exit(1)
	}
}

// buildWorkers registers the illustrative stub workers plus the
// Docker-backed packager for the default pipeline. state must be the
// exact *runstate.State instance the Master will dispatch against.
func buildWorkers(state *runstate.State, logger *slog.Logger, dockerImage string) *worker.Registry {
	registry := worker.NewRegistry()
	for _, w := range stub.DefaultWorkers(state, logger) {
		if err := registry.Register(w); err != nil {
			logger.Error("register stub worker", "workerId", w.ID(), "error", err)
			os.Exit(1)
		}
	}

	var dockerClient *client.Client
	if dockerImage != "" {
		c, clientErr := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if clientErr != nil {
			logger.Warn("docker client unavailable, packager will report domain failure", "error", clientErr)
		} else {
			dockerClient = c
		}
	}
	if err := registry.Register(packager.New(state, logger, dockerClient, dockerImage)); err != nil {
		logger.Error("register packager worker", "error", err)
		os.Exit(1)
	}
	return registry
}

// writeManifest reloads the run's final Run State and Evidence Chain
// from disk and writes its RunManifest as JSON alongside them, per
// spec.md §4.J.
func writeManifest(persistDir, runID string, pl *pipeline.Pipeline) error {
	dir := filepath.Join(persistDir, runID)
	state, err := runstate.Load(filepath.Join(dir, "run-state.json"))
	if err != nil {
		return fmt.Errorf("reload run state: %w", err)
	}
	chain, err := evidence.ReadFromFile(filepath.Join(dir, "evidence-chain.ndjson"))
	if err != nil {
		return fmt.Errorf("reload evidence chain: %w", err)
	}

	m, err := manifest.Build(state, chain, pl)
	if err != nil {
		return fmt.Errorf("build manifest: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644)
}
