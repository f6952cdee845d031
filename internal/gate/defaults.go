package gate

import "github.com/antigravity-dev/shipyard/internal/runstate"

// workerStatus pulls the dispatched worker's status out of a gate
// snapshot (see master.gateSnapshot), defaulting to "" if absent.
func workerStatus(snapshot map[string]interface{}) string {
	s, _ := snapshot["workerStatus"].(string)
	return s
}

// runStateField pulls a top-level field out of the snapshot's embedded
// runState map.
func runStateField(snapshot map[string]interface{}, field string) (interface{}, bool) {
	rs, ok := snapshot["runState"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	v, ok := rs[field]
	return v, ok
}

func passResult(id string) runstate.GateResult {
	return runstate.GateResult{GateID: id, Passed: true}
}

func failResult(id, message string) runstate.GateResult {
	return runstate.GateResult{
		GateID: id,
		Passed: false,
		Checks: []runstate.GateCheck{{Name: "workerStatus", Passed: false, Message: message}},
	}
}

// workerDoneGate is the default verdict for stages whose only
// measurable outcome is whether the worker reported Done: spec
// validation, planning, assembly, and run audit.
func workerDoneGate(id string) Func {
	return func(snapshot map[string]interface{}) runstate.GateResult {
		if workerStatus(snapshot) != "done" {
			return failResult(id, "worker did not report done")
		}
		return passResult(id)
	}
}

// testsPassGate fails unless every recorded test result passed.
func testsPassGate(snapshot map[string]interface{}) runstate.GateResult {
	const id = "tests_pass"
	if workerStatus(snapshot) != "done" {
		return failResult(id, "worker did not report done")
	}
	results, ok := runStateField(snapshot, "testResults")
	if !ok {
		return failResult(id, "no test results recorded")
	}
	list, _ := results.([]interface{})
	if len(list) == 0 {
		return failResult(id, "no test results recorded")
	}
	for _, raw := range list {
		entry, _ := raw.(map[string]interface{})
		if passed, _ := entry["passed"].(bool); !passed {
			return failResult(id, "at least one journey failed")
		}
	}
	return passResult(id)
}

// visualQAGate fails unless the recorded UI inspection passed.
func visualQAGate(snapshot map[string]interface{}) runstate.GateResult {
	const id = "visual_qa"
	if workerStatus(snapshot) != "done" {
		return failResult(id, "worker did not report done")
	}
	ui, ok := runStateField(snapshot, "uiInspection")
	if !ok {
		return failResult(id, "no UI inspection recorded")
	}
	entry, _ := ui.(map[string]interface{})
	if passed, _ := entry["passed"].(bool); !passed {
		return failResult(id, "UI inspection did not pass")
	}
	return passResult(id)
}

// securityClearGate fails unless the recorded security report passed.
func securityClearGate(snapshot map[string]interface{}) runstate.GateResult {
	const id = "security_clear"
	if workerStatus(snapshot) != "done" {
		return failResult(id, "worker did not report done")
	}
	report, ok := runStateField(snapshot, "securityReport")
	if !ok {
		return failResult(id, "no security report recorded")
	}
	entry, _ := report.(map[string]interface{})
	if passed, _ := entry["passed"].(bool); !passed {
		return failResult(id, "security report did not pass")
	}
	return passResult(id)
}

// artifactReadyGate fails unless at least one release artifact exists.
func artifactReadyGate(snapshot map[string]interface{}) runstate.GateResult {
	const id = "artifact_ready"
	if workerStatus(snapshot) != "done" {
		return failResult(id, "worker did not report done")
	}
	artifacts, ok := runStateField(snapshot, "releaseArtifacts")
	if !ok {
		return failResult(id, "no release artifacts recorded")
	}
	list, _ := artifacts.([]interface{})
	if len(list) == 0 {
		return failResult(id, "no release artifacts recorded")
	}
	return passResult(id)
}

// RegisterDefaults registers the default nine-stage gate map's eight
// gate functions (building has no gate) against r. It is a convenience
// for assembling the reference pipeline.DefaultFactory1 wiring; nothing
// in internal/master or internal/pipeline requires these particular
// verdict functions.
func RegisterDefaults(r *Registry) error {
	gates := map[string]Func{
		"spec_valid":     workerDoneGate("spec_valid"),
		"plan_complete":  workerDoneGate("plan_complete"),
		"build_success":  workerDoneGate("build_success"),
		"tests_pass":     testsPassGate,
		"visual_qa":      visualQAGate,
		"security_clear": securityClearGate,
		"artifact_ready": artifactReadyGate,
		"manifest_valid": workerDoneGate("manifest_valid"),
	}
	for id, fn := range gates {
		if err := r.Register(id, fn); err != nil {
			return err
		}
	}
	return nil
}
