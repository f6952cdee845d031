package runstate

import (
	"fmt"

	"github.com/antigravity-dev/shipyard/internal/evidence"
)

// SetPlan sets the plan slot exactly once; it also derives the workUnits
// slot from plan.WorkUnits, per spec.md §3 ("workUnits[] ... derived from
// plan"). A second call fails with IllegalStateTransition.
func (s *State) SetPlan(plan Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardNotTerminalLocked("plan"); err != nil {
		return err
	}
	if s.w.Plan != nil {
		return &IllegalStateTransitionError{Slot: "plan", Reason: "plan is already set"}
	}

	s.w.Plan = &plan
	units := make([]WorkUnit, len(plan.WorkUnits))
	copy(units, plan.WorkUnits)
	s.w.WorkUnits = units

	return s.persistLocked()
}

// Plan returns a copy of the plan slot, or nil if unset.
func (s *State) Plan() *Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w.Plan == nil {
		return nil
	}
	p := *s.w.Plan
	p.WorkUnits = append([]WorkUnit(nil), s.w.Plan.WorkUnits...)
	return &p
}

// WorkUnits returns a copy of the derived work units slot.
func (s *State) WorkUnits() []WorkUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]WorkUnit(nil), s.w.WorkUnits...)
}

// UpdateWorkUnit mutates a single work unit's status and output files in
// place (the building stage's internal scheduler funnels every unit write
// through this single ingress, preserving the single-writer discipline
// described in spec.md §5).
func (s *State) UpdateWorkUnit(id string, status WorkUnitStatus, outputFiles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardNotTerminalLocked("workUnits"); err != nil {
		return err
	}
	if s.w.Plan == nil {
		return &IllegalStateTransitionError{Slot: "workUnits", Reason: "plan is not set"}
	}

	found := false
	for i := range s.w.WorkUnits {
		if s.w.WorkUnits[i].ID == id {
			s.w.WorkUnits[i].Status = status
			s.w.WorkUnits[i].OutputFiles = append([]string(nil), outputFiles...)
			found = true
			break
		}
	}
	if !found {
		return &IllegalStateTransitionError{Slot: "workUnits", Reason: fmt.Sprintf("unknown work unit %q", id)}
	}

	return s.persistLocked()
}

// SetBuildOutput sets the build output slot. Requires plan to be set.
func (s *State) SetBuildOutput(out BuildOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardNotTerminalLocked("buildOutput"); err != nil {
		return err
	}
	if s.w.Plan == nil {
		return &IllegalStateTransitionError{Slot: "buildOutput", Reason: "requires plan to be set"}
	}
	if s.w.BuildOutput != nil {
		return &IllegalStateTransitionError{Slot: "buildOutput", Reason: "buildOutput is already set"}
	}

	s.w.BuildOutput = &out
	return s.persistLocked()
}

// BuildOutput returns a copy of the build output slot, or nil if unset.
func (s *State) BuildOutput() *BuildOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w.BuildOutput == nil {
		return nil
	}
	bo := *s.w.BuildOutput
	return &bo
}

// SetTestResults sets the test results slot. Requires buildOutput to be
// set.
func (s *State) SetTestResults(results []TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardNotTerminalLocked("testResults"); err != nil {
		return err
	}
	if s.w.BuildOutput == nil {
		return &IllegalStateTransitionError{Slot: "testResults", Reason: "requires buildOutput to be set"}
	}
	if s.w.TestResults != nil {
		return &IllegalStateTransitionError{Slot: "testResults", Reason: "testResults is already set"}
	}

	s.w.TestResults = append([]TestResult(nil), results...)
	return s.persistLocked()
}

// TestResults returns a copy of the test results slot.
func (s *State) TestResults() []TestResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TestResult(nil), s.w.TestResults...)
}

// SetUIInspection sets the UI inspection slot. Requires testResults to be
// non-empty.
func (s *State) SetUIInspection(ui UIInspection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardNotTerminalLocked("uiInspection"); err != nil {
		return err
	}
	if len(s.w.TestResults) == 0 {
		return &IllegalStateTransitionError{Slot: "uiInspection", Reason: "requires testResults to be non-empty"}
	}
	if s.w.UIInspection != nil {
		return &IllegalStateTransitionError{Slot: "uiInspection", Reason: "uiInspection is already set"}
	}

	s.w.UIInspection = &ui
	return s.persistLocked()
}

// UIInspection returns a copy of the UI inspection slot, or nil if unset.
func (s *State) UIInspection() *UIInspection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w.UIInspection == nil {
		return nil
	}
	ui := *s.w.UIInspection
	return &ui
}

// SetSecurityReport sets the security report slot. Requires buildOutput to
// be set.
func (s *State) SetSecurityReport(report SecurityReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardNotTerminalLocked("securityReport"); err != nil {
		return err
	}
	if s.w.BuildOutput == nil {
		return &IllegalStateTransitionError{Slot: "securityReport", Reason: "requires buildOutput to be set"}
	}
	if s.w.SecurityReport != nil {
		return &IllegalStateTransitionError{Slot: "securityReport", Reason: "securityReport is already set"}
	}

	s.w.SecurityReport = &report
	return s.persistLocked()
}

// SecurityReport returns a copy of the security report slot, or nil if
// unset.
func (s *State) SecurityReport() *SecurityReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w.SecurityReport == nil {
		return nil
	}
	r := *s.w.SecurityReport
	return &r
}

// SetReleaseArtifacts sets the release artifacts slot. Requires
// securityReport to be set.
func (s *State) SetReleaseArtifacts(artifacts []ReleaseArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardNotTerminalLocked("releaseArtifacts"); err != nil {
		return err
	}
	if s.w.SecurityReport == nil {
		return &IllegalStateTransitionError{Slot: "releaseArtifacts", Reason: "requires securityReport to be set"}
	}
	if s.w.ReleaseArtifacts != nil {
		return &IllegalStateTransitionError{Slot: "releaseArtifacts", Reason: "releaseArtifacts is already set"}
	}

	s.w.ReleaseArtifacts = append([]ReleaseArtifact(nil), artifacts...)
	return s.persistLocked()
}

// ReleaseArtifacts returns a copy of the release artifacts slot.
func (s *State) ReleaseArtifacts() []ReleaseArtifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ReleaseArtifact(nil), s.w.ReleaseArtifacts...)
}

// AddGateResult appends a gate result. Append-only; any stage may add one.
func (s *State) AddGateResult(r GateResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardNotTerminalLocked("gateResults"); err != nil {
		return err
	}
	s.w.GateResults = append(s.w.GateResults, r)
	return s.persistLocked()
}

// GateResults returns a copy of the gate results slot.
func (s *State) GateResults() []GateResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]GateResult(nil), s.w.GateResults...)
}

// GateResultFor returns the most recent gate result recorded for gateID,
// used by the Master's resume predicate.
func (s *State) GateResultFor(gateID string) (GateResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.w.GateResults) - 1; i >= 0; i-- {
		if s.w.GateResults[i].GateID == gateID {
			return s.w.GateResults[i], true
		}
	}
	return GateResult{}, false
}

// AddConsequenceHit appends a consequence hit. Append-only.
func (s *State) AddConsequenceHit(hit ConsequenceHit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardNotTerminalLocked("consequenceHits"); err != nil {
		return err
	}
	s.w.ConsequenceHits = append(s.w.ConsequenceHits, hit)
	return s.persistLocked()
}

// ConsequenceHits returns a copy of the consequence hits slot.
func (s *State) ConsequenceHits() []ConsequenceHit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ConsequenceHit(nil), s.w.ConsequenceHits...)
}

// SetCurrentStage records which stage the master is on.
func (s *State) SetCurrentStage(stage evidence.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardNotTerminalLocked("currentStage"); err != nil {
		return err
	}
	s.w.CurrentStage = stage
	return s.persistLocked()
}

// StageStart appends the start timestamp for a stage. Calling it twice for
// the same stage fails with IllegalStateTransition ("append ... only" per
// spec.md §3 — a stage starts exactly once).
func (s *State) StageStart(stage evidence.Stage, timestamp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardNotTerminalLocked("timestamps"); err != nil {
		return err
	}
	if _, exists := s.w.Timestamps[stage]; exists {
		return &IllegalStateTransitionError{Slot: "timestamps", Reason: fmt.Sprintf("stage %q already started", stage)}
	}
	s.w.Timestamps[stage] = StageTiming{Start: timestamp}
	return s.persistLocked()
}

// StageEnd sets the end timestamp for a stage that has already started and
// has not yet ended.
func (s *State) StageEnd(stage evidence.Stage, timestamp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardNotTerminalLocked("timestamps"); err != nil {
		return err
	}
	t, exists := s.w.Timestamps[stage]
	if !exists {
		return &IllegalStateTransitionError{Slot: "timestamps", Reason: fmt.Sprintf("stage %q has not started", stage)}
	}
	if t.End != nil {
		return &IllegalStateTransitionError{Slot: "timestamps", Reason: fmt.Sprintf("stage %q has already ended", stage)}
	}
	ts := timestamp
	t.End = &ts
	s.w.Timestamps[stage] = t
	return s.persistLocked()
}

// Timestamps returns a copy of the per-stage timing slot.
func (s *State) Timestamps() map[evidence.Stage]StageTiming {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[evidence.Stage]StageTiming, len(s.w.Timestamps))
	for k, v := range s.w.Timestamps {
		out[k] = v
	}
	return out
}

// SetStatus transitions the run to a terminal status. Only running ->
// shipped and running -> aborted are legal; once terminal, SetStatus fails
// like every other mutator (terminality is monotone).
func (s *State) SetStatus(status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardNotTerminalLocked("status"); err != nil {
		return err
	}
	if status != StatusShipped && status != StatusAborted {
		return &IllegalStateTransitionError{Slot: "status", Reason: fmt.Sprintf("cannot transition to non-terminal status %q", status)}
	}
	s.w.Status = status
	return s.persistLocked()
}
