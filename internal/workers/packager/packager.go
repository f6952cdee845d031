// Package packager implements the release-packaging stage worker: it
// inspects a locally-built Docker image and records its content digest as
// a ReleaseArtifact. It is an illustrative worker-level dependency, not a
// core one (spec.md §6) — the Master and Worker Registry never import
// this package, and nothing about dispatch or gating depends on Docker
// being available.
//
// Grounded on cortex's internal/dispatch/docker.go, which talks to the
// same client package for a different purpose (spawning agent
// containers); this worker only ever inspects, never creates or starts
// containers.
package packager

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/docker/client"

	"github.com/antigravity-dev/shipyard/internal/evidence"
	"github.com/antigravity-dev/shipyard/internal/runstate"
	"github.com/antigravity-dev/shipyard/internal/worker"
)

// Worker tags/inspects a pre-built local image and records its digest and
// size as the run's sole release artifact.
type Worker struct {
	worker.BaseWorker
	state *runstate.State
	log   *slog.Logger
	cli   *client.Client
	image string
}

// New constructs the release-packaging worker. image is the local image
// reference (e.g. "myapp:latest") this run's build stage is expected to
// have produced; cli may be nil, in which case Execute reports a domain
// Failed result rather than throwing, since a missing Docker daemon is an
// anticipated environment condition, not an exceptional one.
func New(state *runstate.State, log *slog.Logger, cli *client.Client, image string) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		BaseWorker: worker.BaseWorker{
			IDValue:       "packager",
			StageValue:    evidence.StageReleasePackage,
			RequiresValue: []string{"securityReport"},
			ProducesValue: []string{"releaseArtifacts"},
			TimeoutValue:  60 * time.Second,
		},
		state: state,
		log:   log,
		cli:   cli,
		image: image,
	}
}

// Execute inspects w.image and writes a single ReleaseArtifact carrying
// its digest. It never builds, pushes, or otherwise mutates the image.
func (w *Worker) Execute(ctx context.Context, input map[string]interface{}) (worker.Result, error) {
	for _, key := range w.RequiresValue {
		if _, ok := input[key]; !ok {
			return worker.Result{}, fmt.Errorf("packager: missing required input %q despite registry precondition check", key)
		}
	}

	if w.cli == nil {
		return worker.Failed("docker client unavailable"), nil
	}

	inspect, _, err := w.cli.ImageInspectWithRaw(ctx, w.image)
	if err != nil {
		return worker.Failed(fmt.Sprintf("inspect image %q: %s", w.image, err)), nil
	}

	digest := inspect.ID
	if len(inspect.RepoDigests) > 0 {
		digest = inspect.RepoDigests[0]
	}

	artifact := runstate.ReleaseArtifact{
		Platform:  "docker",
		Path:      w.image,
		SHA256:    digest,
		SizeBytes: inspect.Size,
	}

	if err := w.state.SetReleaseArtifacts([]runstate.ReleaseArtifact{artifact}); err != nil {
		return worker.Result{}, fmt.Errorf("packager: record release artifact: %w", err)
	}

	w.log.Info("packaged release artifact", "image", w.image, "digest", digest, "sizeBytes", inspect.Size)
	return worker.Done(), nil
}
