// Package worker implements the bounded-timeout worker contract and
// registry described by spec.md's Worker Contract component: a worker
// declares what evidence it requires and produces, and the registry
// dispatches it with a caller-supplied deadline.
package worker

import (
	"context"
	"time"

	"github.com/antigravity-dev/shipyard/internal/evidence"
)

// Artifact is a single named, typed output a worker produces. The core
// does not interpret Data; only the stage's gate functions do.
type Artifact struct {
	Name string
	Data map[string]interface{}
}

// Status is the closed set of outcomes a worker's Execute may report
// without throwing. A worker that panics or that the registry cannot even
// start (missing precondition, exceeded timeout) never produces a Result
// at all — those surface as an error from Registry.Dispatch instead, and
// are the Master's retry-eligible "exception" path.
type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// Result is a worker's domain-level outcome: either it completed (Done,
// with artifacts) or it determined the work could not succeed (Failed,
// with a reason). Both are legitimate results, not exceptions.
type Result struct {
	Status    Status
	Artifacts []Artifact
	Reason    string
}

// Done returns a successful result with the given artifacts.
func Done(artifacts ...Artifact) Result {
	return Result{Status: StatusDone, Artifacts: artifacts}
}

// Failed returns a domain-failure result carrying reason.
func Failed(reason string) Result {
	return Result{Status: StatusFailed, Reason: reason}
}

// Worker is the contract every stage executor implements. Requires and
// Produces are static declarations used by pipeline validation (spec.md
// §4.G, "slice availability"); Timeout bounds a single Execute call.
//
// Execute returns an error only for exceptional conditions (the worker
// threw); an anticipated domain failure is reported via Result{Status:
// StatusFailed}, not an error.
type Worker interface {
	ID() string
	Stage() evidence.Stage
	Requires() []string
	Produces() []string
	Timeout() time.Duration
	Execute(ctx context.Context, input map[string]interface{}) (Result, error)
}

// BaseWorker is an embeddable helper that implements the static
// declaration methods of Worker, leaving only Execute to the concrete
// type. It mirrors the teacher's backend registration pattern of pairing
// a lightweight struct with a single behavioral method.
type BaseWorker struct {
	IDValue       string
	StageValue    evidence.Stage
	RequiresValue []string
	ProducesValue []string
	TimeoutValue  time.Duration
}

func (b BaseWorker) ID() string             { return b.IDValue }
func (b BaseWorker) Stage() evidence.Stage  { return b.StageValue }
func (b BaseWorker) Requires() []string     { return append([]string(nil), b.RequiresValue...) }
func (b BaseWorker) Produces() []string     { return append([]string(nil), b.ProducesValue...) }
func (b BaseWorker) Timeout() time.Duration { return b.TimeoutValue }
