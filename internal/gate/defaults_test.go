package gate

import "testing"

func TestRegisterDefaultsRegistersAllEightGates(t *testing.T) {
	r := NewRegistry()
	if err := RegisterDefaults(r); err != nil {
		t.Fatalf("RegisterDefaults: %v", err)
	}
	for _, id := range []string{
		"spec_valid", "plan_complete", "build_success", "tests_pass",
		"visual_qa", "security_clear", "artifact_ready", "manifest_valid",
	} {
		if _, ok := r.GetRegistered(id); !ok {
			t.Fatalf("expected gate %q to be registered", id)
		}
	}
}

func TestTestsPassGateFailsOnFailedJourney(t *testing.T) {
	snapshot := map[string]interface{}{
		"workerStatus": "done",
		"runState": map[string]interface{}{
			"testResults": []interface{}{
				map[string]interface{}{"journeyId": "j1", "passed": true},
				map[string]interface{}{"journeyId": "j2", "passed": false},
			},
		},
	}
	result := testsPassGate(snapshot)
	if result.Passed {
		t.Fatal("expected tests_pass to fail when a journey failed")
	}
}

func TestTestsPassGatePassesWhenAllPassed(t *testing.T) {
	snapshot := map[string]interface{}{
		"workerStatus": "done",
		"runState": map[string]interface{}{
			"testResults": []interface{}{
				map[string]interface{}{"journeyId": "j1", "passed": true},
			},
		},
	}
	result := testsPassGate(snapshot)
	if !result.Passed {
		t.Fatalf("expected tests_pass to pass, got %+v", result)
	}
}

func TestArtifactReadyGateFailsWithNoArtifacts(t *testing.T) {
	snapshot := map[string]interface{}{
		"workerStatus": "done",
		"runState":     map[string]interface{}{},
	}
	result := artifactReadyGate(snapshot)
	if result.Passed {
		t.Fatal("expected artifact_ready to fail with no artifacts")
	}
}

func TestWorkerDoneGateFailsOnFailedStatus(t *testing.T) {
	fn := workerDoneGate("plan_complete")
	result := fn(map[string]interface{}{"workerStatus": "failed"})
	if result.Passed {
		t.Fatal("expected gate to fail when workerStatus != done")
	}
}
