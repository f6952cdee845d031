package pipeline

import "testing"

func TestDefaultFactory1Builds(t *testing.T) {
	p, err := DefaultFactory1()
	if err != nil {
		t.Fatalf("DefaultFactory1: %v", err)
	}
	order := p.TopologicalOrder()
	if len(order) != 9 {
		t.Fatalf("expected 9 stages, got %d", len(order))
	}
	if p.GateFor("building") != "" {
		t.Fatalf("expected building to have no gate, got %q", p.GateFor("building"))
	}
	if p.GateFor("testing") != "tests_pass" {
		t.Fatalf("expected testing gate tests_pass, got %q", p.GateFor("testing"))
	}
}

func TestNewRejectsDuplicateStageID(t *testing.T) {
	_, err := New([]StageConfig{
		{ID: "a", Worker: "w"},
		{ID: "a", Worker: "w2"},
	})
	if err == nil {
		t.Fatalf("expected error for duplicate stage id")
	}
	if _, ok := err.(*DuplicateStageError); !ok {
		t.Fatalf("expected DuplicateStageError, got %T", err)
	}
}

func TestNewRejectsUnknownDependency(t *testing.T) {
	_, err := New([]StageConfig{
		{ID: "a", Worker: "w", DependsOn: []string{"missing"}},
	})
	if err == nil {
		t.Fatalf("expected error for unknown dependency")
	}
	if _, ok := err.(*UnknownDependencyError); !ok {
		t.Fatalf("expected UnknownDependencyError, got %T", err)
	}
}

func TestNewDetectsCycle(t *testing.T) {
	_, err := New([]StageConfig{
		{ID: "a", Worker: "w", DependsOn: []string{"b"}},
		{ID: "b", Worker: "w", DependsOn: []string{"a"}},
	})
	if err == nil {
		t.Fatalf("expected cycle error")
	}
	if _, ok := err.(*CycleError); !ok {
		t.Fatalf("expected CycleError, got %T", err)
	}
}

func TestTopologicalOrderIsLexicographicallyStable(t *testing.T) {
	p, err := New([]StageConfig{
		{ID: "zebra", Worker: "w"},
		{ID: "alpha", Worker: "w"},
		{ID: "mango", Worker: "w"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	order := p.TopologicalOrder()
	want := []string{"alpha", "mango", "zebra"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestNewRejectsUnavailableSlice(t *testing.T) {
	_, err := New([]StageConfig{
		{ID: "a", Worker: "w", Requires: []string{"missingSlice"}},
	})
	if err == nil {
		t.Fatalf("expected slice unavailable error")
	}
	if _, ok := err.(*SliceUnavailableError); !ok {
		t.Fatalf("expected SliceUnavailableError, got %T", err)
	}
}

func TestSliceAvailabilityAllowsSpecByDefault(t *testing.T) {
	_, err := New([]StageConfig{
		{ID: "a", Worker: "w", Requires: []string{"spec"}, Produces: []string{"planned"}},
		{ID: "b", Worker: "w", DependsOn: []string{"a"}, Requires: []string{"planned"}},
	})
	if err != nil {
		t.Fatalf("expected spec slice to be available from the start, got %v", err)
	}
}

func TestInsertStageRewiresDependents(t *testing.T) {
	p, err := New([]StageConfig{
		{ID: "a", Worker: "w", Requires: []string{"spec"}, Produces: []string{"x"}},
		{ID: "c", Worker: "w", DependsOn: []string{"a"}, Requires: []string{"x"}, Produces: []string{"y"}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	next, err := p.InsertStage(StageConfig{ID: "b", Worker: "w", Requires: []string{"x"}, Produces: []string{"x"}}, "a")
	if err != nil {
		t.Fatalf("InsertStage: %v", err)
	}

	order := next.TopologicalOrder()
	idx := map[string]int{}
	for i, id := range order {
		idx[id] = i
	}
	if !(idx["a"] < idx["b"] && idx["b"] < idx["c"]) {
		t.Fatalf("expected order a < b < c, got %v", order)
	}
	cSt, _ := next.Get("c")
	found := false
	for _, dep := range cSt.DependsOn {
		if dep == "b" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected c to now depend on b, got %v", cSt.DependsOn)
	}
}

func TestInsertStageRollsBackOnFailure(t *testing.T) {
	p, err := New([]StageConfig{
		{ID: "a", Worker: "w"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.InsertStage(StageConfig{ID: "b", Worker: "w", Requires: []string{"neverProduced"}}, "a")
	if err == nil {
		t.Fatalf("expected InsertStage to fail slice validation")
	}
	if _, ok := p.Get("b"); ok {
		t.Fatalf("original pipeline must be unaffected by a failed insert")
	}
}

func TestCrossValidateReportsUnregistered(t *testing.T) {
	p, err := New([]StageConfig{
		{ID: "a", Worker: "missing-worker", Gate: "missing-gate"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	errs := p.CrossValidate([]string{"known-worker"}, []string{"known-gate"})
	if len(errs) != 2 {
		t.Fatalf("expected 2 cross-validation errors, got %d", len(errs))
	}
}

func TestToEvidenceIncludesOrderAndStages(t *testing.T) {
	p, err := DefaultFactory1()
	if err != nil {
		t.Fatalf("DefaultFactory1: %v", err)
	}
	snap := p.ToEvidence()
	order, ok := snap["order"].([]string)
	if !ok || len(order) != 9 {
		t.Fatalf("expected order of length 9 in evidence snapshot")
	}
}
