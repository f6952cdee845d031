package canon

import "testing"

func TestMarshalSortsKeysRecursively(t *testing.T) {
	a := map[string]interface{}{
		"b": 1,
		"a": map[string]interface{}{"z": 1, "y": 2},
		"c": []interface{}{3, 2, 1},
	}
	b := map[string]interface{}{
		"c": []interface{}{3, 2, 1},
		"a": map[string]interface{}{"y": 2, "z": 1},
		"b": 1,
	}

	ea, err := Marshal(a)
	if err != nil {
		t.Fatalf("marshal a: %v", err)
	}
	eb, err := Marshal(b)
	if err != nil {
		t.Fatalf("marshal b: %v", err)
	}
	if string(ea) != string(eb) {
		t.Fatalf("expected identical canonical output, got %q vs %q", ea, eb)
	}

	const want = `{"a":{"y":2,"z":1},"b":1,"c":[3,2,1]}`
	if string(ea) != want {
		t.Fatalf("unexpected canonical form: got %q want %q", ea, want)
	}
}

func TestMarshalPreservesArrayOrder(t *testing.T) {
	out, err := Marshal([]interface{}{"z", "a", "m"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `["z","a","m"]` {
		t.Fatalf("array order not preserved: %q", out)
	}
}

func TestHashDeterministic(t *testing.T) {
	type payload struct {
		Seq  int    `json:"seq"`
		Name string `json:"name"`
	}
	h1, err := Hash(payload{Seq: 1, Name: "x"})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := Hash(payload{Seq: 1, Name: "x"})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hash not deterministic: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h1))
	}
}

func TestHashDiffersOnFieldOrderInStructTagsIsIrrelevant(t *testing.T) {
	// Struct field declaration order must not matter once both are
	// routed through Marshal, since object keys are sorted.
	type p1 struct {
		A int `json:"a"`
		B int `json:"b"`
	}
	type p2 struct {
		B int `json:"b"`
		A int `json:"a"`
	}
	h1, _ := Hash(p1{A: 1, B: 2})
	h2, _ := Hash(p2{A: 1, B: 2})
	if h1 != h2 {
		t.Fatalf("expected field-order independence: %s vs %s", h1, h2)
	}
}
