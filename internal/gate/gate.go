// Package gate implements the Gate Registry: pure, synchronous quality
// verdict functions with no override or bypass API. A gate only ever
// measures and reports; it cannot be suppressed or reconfigured away from
// the outcome it computes, which is what makes the chain structurally
// auditable (spec.md §4.F).
package gate

import (
	"fmt"
	"sync"

	"github.com/antigravity-dev/shipyard/internal/canon"
	"github.com/antigravity-dev/shipyard/internal/evidence"
	"github.com/antigravity-dev/shipyard/internal/runstate"
)

// gateRegistryWorkerID is the fixed workerId every gate_pass/gate_fail
// entry carries, regardless of which gate produced it.
const gateRegistryWorkerID = "gate-registry"

// Func is a gate's entire contract: a pure function over the evidence
// snapshot handed to it, a deterministic GateResult out. A Func must have
// no side effects and must not retain the map past the call.
type Func func(snapshot map[string]interface{}) runstate.GateResult

// Registry holds named gates. There is deliberately no method to disable,
// skip, or override a registered gate, and no remove/clear/reset/update —
// removing a gate (a compile-time code change) is the only way to stop
// enforcing it.
type Registry struct {
	mu    sync.RWMutex
	gates map[string]Func
}

// NewRegistry returns an empty gate registry.
func NewRegistry() *Registry {
	return &Registry{gates: make(map[string]Func)}
}

// Register adds a gate under gateID. Re-registering the same ID is an
// error: registration is one-shot per gateId.
func (r *Registry) Register(gateID string, fn Func) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.gates[gateID]; exists {
		return fmt.Errorf("gate: a gate with id %q is already registered", gateID)
	}
	r.gates[gateID] = fn
	return nil
}

// GetRegistered reports whether gateID names a registered gate.
func (r *Registry) GetRegistered(gateID string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.gates[gateID]
	return fn, ok
}

// Evaluate looks up gateID, calls it against snapshot, appends exactly
// one chain entry (gate_pass if the verdict passed, else gate_fail) with
// workerId "gate-registry", and returns the result.
func (r *Registry) Evaluate(gateID string, snapshot map[string]interface{}, chain *evidence.Chain, stage evidence.Stage) (runstate.GateResult, error) {
	fn, ok := r.GetRegistered(gateID)
	if !ok {
		return runstate.GateResult{}, fmt.Errorf("gate: no gate registered with id %q", gateID)
	}

	result := fn(snapshot)

	entryType := evidence.TypeGatePass
	if !result.Passed {
		entryType = evidence.TypeGateFail
	}

	data, err := canon.ToMap(result)
	if err != nil {
		return runstate.GateResult{}, fmt.Errorf("gate: encode result for chain entry: %w", err)
	}

	if _, err := chain.Append(evidence.Input{
		Type:     entryType,
		WorkerID: gateRegistryWorkerID,
		Stage:    stage,
		Data:     data,
	}); err != nil {
		return runstate.GateResult{}, fmt.Errorf("gate: append chain entry: %w", err)
	}

	return result, nil
}
