// Package stub provides illustrative, strict-validate-then-stub workers
// for eight of the nine default pipeline stages (release packaging has
// its own dedicated worker in internal/workers/packager). Per spec.md
// §4's data flow description, a worker mutates Run State slots directly;
// these stubs hold a *runstate.State reference for exactly that purpose.
// They are not core: the Master and Worker Registry never import this
// package directly, and nothing in internal/master depends on it. It
// exists so the seed scenarios in spec.md §8 and cmd/factoryctl's wiring
// demo have something concrete to dispatch.
package stub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/antigravity-dev/shipyard/internal/evidence"
	"github.com/antigravity-dev/shipyard/internal/runstate"
	"github.com/antigravity-dev/shipyard/internal/worker"
)

// Worker strictly validates that every declared Requires key is present
// in its dispatch input, writes a trivial placeholder value into the Run
// State slot it declares as its Produces, logs that it ran, and reports
// Done. It never performs real domain work.
type Worker struct {
	worker.BaseWorker
	state *runstate.State
	log   *slog.Logger
	apply func(*runstate.State) error
}

// New constructs a stub worker for one pipeline stage. apply is called
// against state once input validation passes; it is what gives this
// stage's declared Produces slot a value so stages downstream of it see
// it as available.
func New(id string, stage evidence.Stage, requires, produces []string, state *runstate.State, log *slog.Logger, apply func(*runstate.State) error) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		BaseWorker: worker.BaseWorker{
			IDValue:       id,
			StageValue:    stage,
			RequiresValue: requires,
			ProducesValue: produces,
			TimeoutValue:  30 * time.Second,
		},
		state: state,
		log:   log,
		apply: apply,
	}
}

// Execute strictly checks every declared Requires key is present in
// input, then applies its placeholder mutation to Run State and returns
// Done. A missing key here would indicate a Registry precondition-check
// bug, not a workable domain condition, so it is reported as an
// exception rather than a domain Failed.
func (w *Worker) Execute(_ context.Context, input map[string]interface{}) (worker.Result, error) {
	for _, key := range w.RequiresValue {
		if _, ok := input[key]; !ok {
			return worker.Result{}, fmt.Errorf("stub worker %q: missing required input %q despite registry precondition check", w.IDValue, key)
		}
	}
	if w.apply != nil {
		if err := w.apply(w.state); err != nil {
			return worker.Result{}, fmt.Errorf("stub worker %q: write run state: %w", w.IDValue, err)
		}
	}
	w.log.Info("stub worker executing", "workerId", w.IDValue, "stage", w.StageValue)
	return worker.Done(), nil
}

// DefaultWorkers returns one stub Worker per non-packaging stage of
// pipeline.DefaultFactory1, with Requires/Produces matching its
// StageConfig entries exactly, each writing a trivial placeholder value
// to the Run State slot it produces.
func DefaultWorkers(state *runstate.State, log *slog.Logger) []worker.Worker {
	return []worker.Worker{
		New("spec-validator", evidence.StageSpecValidation, []string{"spec"}, []string{"specValidated"}, state, log,
			func(*runstate.State) error { return nil }),

		New("planner", evidence.StagePlanning, []string{"specValidated"}, []string{"plan", "workUnits"}, state, log,
			func(s *runstate.State) error {
				return s.SetPlan(runstate.Plan{
					Summary: "stub plan",
					WorkUnits: []runstate.WorkUnit{
						{ID: "wu-1", Description: "stub work unit", Status: runstate.WorkUnitPending},
					},
				})
			}),

		New("builder", evidence.StageBuilding, []string{"plan", "workUnits"}, []string{"buildOutput"}, state, log,
			func(s *runstate.State) error {
				return s.SetBuildOutput(runstate.BuildOutput{Summary: "stub build", Data: map[string]interface{}{"stub": true}})
			}),

		New("assembler", evidence.StageAssembly, []string{"plan", "buildOutput"}, []string{"buildSuccess"}, state, log,
			func(*runstate.State) error { return nil }),

		New("tester", evidence.StageTesting, []string{"buildOutput"}, []string{"testResults"}, state, log,
			func(s *runstate.State) error {
				return s.SetTestResults([]runstate.TestResult{{JourneyID: "stub-journey", Passed: true}})
			}),

		New("ui-inspector", evidence.StageUIInspection, []string{"testResults"}, []string{"uiInspection"}, state, log,
			func(s *runstate.State) error {
				return s.SetUIInspection(runstate.UIInspection{Passed: true, Score: 1.0, Notes: "stub inspection"})
			}),

		New("security-auditor", evidence.StageSecurityAudit, []string{"buildOutput"}, []string{"securityReport"}, state, log,
			func(s *runstate.State) error {
				return s.SetSecurityReport(runstate.SecurityReport{Passed: true})
			}),

		New("run-auditor", evidence.StageRunAudit, []string{"releaseArtifacts"}, []string{"manifest"}, state, log,
			func(*runstate.State) error { return nil }),
	}
}
