package worker

import (
	"context"
	"fmt"
	"sync"
)

// Registry is the process-wide catalogue of known workers, keyed by ID.
// Registration happens once at startup; dispatch is safe for concurrent
// use by multiple in-flight stages.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]Worker
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]Worker)}
}

// Register adds a worker under its own ID. Re-registering the same ID is
// an error: workers are identified structurally, not by last-write-wins.
func (r *Registry) Register(w Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.workers[w.ID()]; exists {
		return &DuplicateWorkerError{WorkerID: w.ID()}
	}
	r.workers[w.ID()] = w
	return nil
}

// Has reports whether a worker is registered under id.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.workers[id]
	return ok
}

// Get returns the worker registered under id.
func (r *Registry) Get(id string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	return w, ok
}

// List returns every registered worker ID; order is not guaranteed, so
// callers that need a stable order should sort the result.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.workers))
	for id := range r.workers {
		ids = append(ids, id)
	}
	return ids
}

// Dispatch runs the named worker with the given input, bounding its
// execution by the worker's own declared Timeout (and by ctx, whichever
// is shorter). A worker whose Requires are not satisfied by input never
// runs at all: the precondition violation surfaces as an error, the same
// "exception" class as a panic or a timeout, because the Master counts
// all three against its retry budget the same way. A worker's own
// Result{Status: StatusFailed} is NOT an error: it is returned unwrapped,
// since it represents an anticipated domain failure the Master hands
// straight to the stage's gate.
func (r *Registry) Dispatch(ctx context.Context, workerID string, input map[string]interface{}) (Result, error) {
	w, ok := r.Get(workerID)
	if !ok {
		return Result{}, &UnknownWorkerError{WorkerID: workerID}
	}

	for _, key := range w.Requires() {
		if _, present := input[key]; !present {
			return Result{}, &MissingRequirementError{WorkerID: workerID, Key: key}
		}
	}

	timeout := w.Timeout()
	dctx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		dctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("worker: %q panicked: %v", workerID, rec)}
			}
		}()
		res, err := w.Execute(dctx, input)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-dctx.Done():
		return Result{}, &TimeoutError{WorkerID: workerID, Timeout: timeout.String()}
	}
}
