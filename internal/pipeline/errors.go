package pipeline

import (
	"fmt"
	"strings"
)

// DuplicateStageError is returned when two stages share an ID.
type DuplicateStageError struct {
	StageID string
}

func (e *DuplicateStageError) Error() string {
	return fmt.Sprintf("pipeline: duplicate stage id %q", e.StageID)
}

// UnknownDependencyError is returned when a stage's dependsOn references a
// stage ID that does not exist.
type UnknownDependencyError struct {
	StageID   string
	DependsOn string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("pipeline: stage %q depends on unknown stage %q", e.StageID, e.DependsOn)
}

// CycleError is returned when the dependency graph contains a cycle. Path
// is the cycle, starting and ending at the same stage ID.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("pipeline: cycle detected: %s", strings.Join(e.Path, " -> "))
}

// SliceUnavailableError is returned when a stage requires an evidence
// slice that no earlier stage (in topological order) produces.
type SliceUnavailableError struct {
	StageID string
	Slice   string
}

func (e *SliceUnavailableError) Error() string {
	return fmt.Sprintf("pipeline: stage %q requires slice %q, which is not yet available", e.StageID, e.Slice)
}

// UnregisteredWorkerError is reported by CrossValidate for a stage whose
// worker is not in the known-worker set.
type UnregisteredWorkerError struct {
	StageID  string
	WorkerID string
}

func (e *UnregisteredWorkerError) Error() string {
	return fmt.Sprintf("pipeline: stage %q references unregistered worker %q", e.StageID, e.WorkerID)
}

// UnregisteredGateError is reported by CrossValidate for a stage whose
// gate is not in the known-gate set.
type UnregisteredGateError struct {
	StageID string
	GateID  string
}

func (e *UnregisteredGateError) Error() string {
	return fmt.Sprintf("pipeline: stage %q references unregistered gate %q", e.StageID, e.GateID)
}
