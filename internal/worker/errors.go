package worker

import "fmt"

// UnknownWorkerError is returned by Registry.Dispatch when no worker is
// registered under the given ID.
type UnknownWorkerError struct {
	WorkerID string
}

func (e *UnknownWorkerError) Error() string {
	return fmt.Sprintf("worker: no worker registered with id %q", e.WorkerID)
}

// DuplicateWorkerError is returned by Registry.Register when a worker ID
// is already taken.
type DuplicateWorkerError struct {
	WorkerID string
}

func (e *DuplicateWorkerError) Error() string {
	return fmt.Sprintf("worker: a worker with id %q is already registered", e.WorkerID)
}

// MissingRequirementError is returned by Registry.Dispatch when the input
// bag handed to a worker is missing a key it declared in Requires.
type MissingRequirementError struct {
	WorkerID string
	Key      string
}

func (e *MissingRequirementError) Error() string {
	return fmt.Sprintf("worker: dispatch to %q missing required input %q", e.WorkerID, e.Key)
}

// TimeoutError is returned by Registry.Dispatch when a worker's Execute
// call does not return before its declared timeout elapses.
type TimeoutError struct {
	WorkerID string
	Timeout  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("worker: %q did not complete within its timeout of %s", e.WorkerID, e.Timeout)
}
