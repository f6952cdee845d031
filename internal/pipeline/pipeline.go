// Package pipeline implements the DAG of pipeline stages described by
// spec.md's Pipeline Config component: construction-time cycle detection,
// a reproducible topological order, and slice-availability validation.
package pipeline

import (
	"fmt"
	"sort"

	"github.com/antigravity-dev/shipyard/internal/evidence"
)

// StageConfig declares one stage of the pipeline: which worker runs it,
// which gate (if any) guards it, what it depends on, and which evidence
// slices it consumes and produces.
type StageConfig struct {
	ID         string
	Worker     string
	Gate       string // empty means no gate
	DependsOn  []string
	Parallel   bool
	Requires   []string
	Produces   []string
}

// Pipeline is an immutable, validated DAG of stages plus their
// reproducible execution order.
type Pipeline struct {
	stages   map[string]StageConfig
	order    []string // topological order, stable by lexicographic tie-break
	gateByID map[string]string
}

// New validates the given stage set and constructs a Pipeline. It
// performs, in order: duplicate-ID detection, dependency-reference
// validation, cycle detection, topological ordering, and slice
// availability validation.
func New(stages []StageConfig) (*Pipeline, error) {
	byID := make(map[string]StageConfig, len(stages))
	for _, st := range stages {
		if _, dup := byID[st.ID]; dup {
			return nil, &DuplicateStageError{StageID: st.ID}
		}
		byID[st.ID] = st
	}

	for _, st := range stages {
		for _, dep := range st.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, &UnknownDependencyError{StageID: st.ID, DependsOn: dep}
			}
		}
	}

	if cyclePath := detectCycle(byID); cyclePath != nil {
		return nil, &CycleError{Path: cyclePath}
	}

	order, err := topologicalOrder(byID)
	if err != nil {
		return nil, err
	}

	if err := validateSliceAvailability(byID, order); err != nil {
		return nil, err
	}

	gateByID := make(map[string]string, len(byID))
	for id, st := range byID {
		if st.Gate != "" {
			gateByID[id] = st.Gate
		}
	}

	return &Pipeline{stages: byID, order: order, gateByID: gateByID}, nil
}

// Stages returns every stage in topological order.
func (p *Pipeline) Stages() []StageConfig {
	out := make([]StageConfig, len(p.order))
	for i, id := range p.order {
		out[i] = p.stages[id]
	}
	return out
}

// TopologicalOrder returns the stage IDs in the pipeline's fixed,
// reproducible execution order.
func (p *Pipeline) TopologicalOrder() []string {
	return append([]string(nil), p.order...)
}

// Get returns the stage config for id.
func (p *Pipeline) Get(id string) (StageConfig, bool) {
	st, ok := p.stages[id]
	return st, ok
}

// GateFor returns the gate ID associated with stage id, or "" if the
// stage has no gate.
func (p *Pipeline) GateFor(id string) string {
	return p.gateByID[id]
}

// detectCycle runs a gray/black-colored DFS over the dependency graph and
// returns the cycle path if one exists, or nil if the graph is acyclic.
func detectCycle(byID map[string]StageConfig) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(byID))

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)

		deps := append([]string(nil), byID[id].DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			switch color[dep] {
			case white:
				if visit(dep) {
					return true
				}
			case gray:
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cycle = append([]string(nil), stack[start:]...)
				cycle = append(cycle, dep)
				return true
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range ids {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

// topologicalOrder performs a Kahn's-algorithm sort, breaking ties among
// stages with equal in-degree by lexicographic stage ID so that the
// resulting order (and hence the evidence it produces) is reproducible.
func topologicalOrder(byID map[string]StageConfig) ([]string, error) {
	inDegree := make(map[string]int, len(byID))
	dependents := make(map[string][]string, len(byID))
	for id := range byID {
		inDegree[id] = 0
	}
	for id, st := range byID {
		inDegree[id] = len(st.DependsOn)
		for _, dep := range st.DependsOn {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []string
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		successors := append([]string(nil), dependents[next]...)
		sort.Strings(successors)
		for _, succ := range successors {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}

	if len(order) != len(byID) {
		return nil, fmt.Errorf("pipeline: topological sort did not cover every stage (likely an undetected cycle)")
	}
	return order, nil
}

// validateSliceAvailability walks stages in topological order, tracking
// which evidence slices are available, and reports the first stage whose
// requires references a slice not yet produced.
func validateSliceAvailability(byID map[string]StageConfig, order []string) error {
	available := map[string]bool{"spec": true}
	for _, id := range order {
		st := byID[id]
		for _, req := range st.Requires {
			if !available[req] {
				return &SliceUnavailableError{StageID: id, Slice: req}
			}
		}
		for _, prod := range st.Produces {
			available[prod] = true
		}
	}
	return nil
}

// ToEvidence returns a JSON-serializable snapshot of the pipeline
// suitable for appending to the chain at run start.
func (p *Pipeline) ToEvidence() map[string]interface{} {
	stages := make([]map[string]interface{}, len(p.order))
	for i, id := range p.order {
		st := p.stages[id]
		stages[i] = map[string]interface{}{
			"id":        st.ID,
			"worker":    st.Worker,
			"gate":      st.Gate,
			"dependsOn": append([]string(nil), st.DependsOn...),
			"parallel":  st.Parallel,
			"requires":  append([]string(nil), st.Requires...),
			"produces":  append([]string(nil), st.Produces...),
		}
	}
	return map[string]interface{}{
		"order":  append([]string(nil), p.order...),
		"stages": stages,
	}
}

// StageIDFor converts an evidence.Stage constant to the plain stage ID
// string used throughout the pipeline package.
func StageIDFor(stage evidence.Stage) string {
	return string(stage)
}
