package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/antigravity-dev/shipyard/internal/evidence"
	"github.com/antigravity-dev/shipyard/internal/specs"
)

// State is the mutable, per-run typed record described by spec.md §3. A
// State has exactly one owner at a time: the Master Controller, which
// lends out a mutable reference to the active worker only for the
// duration of its execute call.
type State struct {
	mu   sync.Mutex
	path string
	w    wireState
}

// New constructs a fresh, running State for a brand-new run and persists
// it immediately so a crash before the first stage still leaves a valid
// resumable file on disk.
func New(runID string, spec *specs.Spec, persistPath string) (*State, error) {
	s := &State{
		path: persistPath,
		w: wireState{
			RunID:        runID,
			Spec:         spec,
			Status:       StatusRunning,
			CurrentStage: evidence.StageInitializing,
			Timestamps:   map[evidence.Stage]StageTiming{},
		},
	}
	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reconstructs a State from a previously persisted run-state.json. The
// returned State is indistinguishable from a live one for all subsequent
// operations, including further mutation and persistence.
func Load(persistPath string) (*State, error) {
	data, err := os.ReadFile(persistPath)
	if err != nil {
		return nil, fmt.Errorf("runstate: read %s: %w", persistPath, err)
	}
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("runstate: parse %s: %w", persistPath, err)
	}
	if w.Timestamps == nil {
		w.Timestamps = map[evidence.Stage]StageTiming{}
	}
	return &State{path: persistPath, w: w}, nil
}

// ToJSON renders the state with stable field ordering (the struct
// declaration order of wireState), pretty-printed, exactly as persisted.
func (s *State) ToJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toJSONLocked()
}

func (s *State) toJSONLocked() ([]byte, error) {
	return json.MarshalIndent(s.w, "", "  ")
}

func (s *State) persistLocked() error {
	data, err := s.toJSONLocked()
	if err != nil {
		return &PersistFailureError{Path: s.path, Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistFailureError{Path: s.path, Err: err}
	}

	tmp := fmt.Sprintf("%s.%d.tmp", s.path, os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &PersistFailureError{Path: s.path, Err: err}
	}
	if f, ferr := os.OpenFile(tmp, os.O_RDWR, 0o644); ferr == nil {
		_ = f.Sync()
		_ = f.Close()
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return &PersistFailureError{Path: s.path, Err: err}
	}
	return nil
}

func (s *State) isTerminalLocked() bool {
	return s.w.Status == StatusShipped || s.w.Status == StatusAborted
}

// guard rejects the write with IllegalStateTransition if the run has
// already reached a terminal state: terminality is monotone (spec.md §8
// invariant 7).
func (s *State) guardNotTerminalLocked(slot string) error {
	if s.isTerminalLocked() {
		return &IllegalStateTransitionError{Slot: slot, Reason: "run has already reached a terminal state"}
	}
	return nil
}

// RunID returns the run's identifier.
func (s *State) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.RunID
}

// Spec returns the run's immutable Spec, set once at construction.
func (s *State) Spec() *specs.Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Spec
}

// Status returns the run's current status.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Status
}

// CurrentStage returns the stage the master is currently on.
func (s *State) CurrentStage() evidence.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.CurrentStage
}
