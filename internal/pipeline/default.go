package pipeline

import "github.com/antigravity-dev/shipyard/internal/evidence"

// gateMap is the default nine-stage gate wiring. building has no gate.
var gateMap = map[string]string{
	string(evidence.StageSpecValidation): "spec_valid",
	string(evidence.StagePlanning):       "plan_complete",
	string(evidence.StageAssembly):       "build_success",
	string(evidence.StageTesting):        "tests_pass",
	string(evidence.StageUIInspection):   "visual_qa",
	string(evidence.StageSecurityAudit):  "security_clear",
	string(evidence.StageReleasePackage): "artifact_ready",
	string(evidence.StageRunAudit):       "manifest_valid",
}

// DefaultFactory1 constructs the nine canonical stages in their standard
// dependency chain, wired to the default gate map. building has no gate.
func DefaultFactory1() (*Pipeline, error) {
	stages := []StageConfig{
		{
			ID:        string(evidence.StageSpecValidation),
			Worker:    "spec-validator",
			Gate:      gateMap[string(evidence.StageSpecValidation)],
			DependsOn: nil,
			Requires:  []string{"spec"},
			Produces:  []string{"specValidated"},
		},
		{
			ID:        string(evidence.StagePlanning),
			Worker:    "planner",
			Gate:      gateMap[string(evidence.StagePlanning)],
			DependsOn: []string{string(evidence.StageSpecValidation)},
			Requires:  []string{"specValidated"},
			Produces:  []string{"plan", "workUnits"},
		},
		{
			ID:        string(evidence.StageBuilding),
			Worker:    "builder",
			Gate:      "",
			DependsOn: []string{string(evidence.StagePlanning)},
			Parallel:  true,
			Requires:  []string{"plan", "workUnits"},
			Produces:  []string{"buildOutput"},
		},
		{
			ID:        string(evidence.StageAssembly),
			Worker:    "assembler",
			Gate:      gateMap[string(evidence.StageAssembly)],
			DependsOn: []string{string(evidence.StageBuilding)},
			Requires:  []string{"plan", "buildOutput"},
			Produces:  []string{"buildSuccess"},
		},
		{
			ID:        string(evidence.StageTesting),
			Worker:    "tester",
			Gate:      gateMap[string(evidence.StageTesting)],
			DependsOn: []string{string(evidence.StageAssembly)},
			Requires:  []string{"buildOutput"},
			Produces:  []string{"testResults"},
		},
		{
			ID:        string(evidence.StageUIInspection),
			Worker:    "ui-inspector",
			Gate:      gateMap[string(evidence.StageUIInspection)],
			DependsOn: []string{string(evidence.StageTesting)},
			Requires:  []string{"testResults"},
			Produces:  []string{"uiInspection"},
		},
		{
			ID:        string(evidence.StageSecurityAudit),
			Worker:    "security-auditor",
			Gate:      gateMap[string(evidence.StageSecurityAudit)],
			DependsOn: []string{string(evidence.StageUIInspection)},
			Requires:  []string{"buildOutput"},
			Produces:  []string{"securityReport"},
		},
		{
			ID:        string(evidence.StageReleasePackage),
			Worker:    "packager",
			Gate:      gateMap[string(evidence.StageReleasePackage)],
			DependsOn: []string{string(evidence.StageSecurityAudit)},
			Requires:  []string{"securityReport"},
			Produces:  []string{"releaseArtifacts"},
		},
		{
			ID:        string(evidence.StageRunAudit),
			Worker:    "run-auditor",
			Gate:      gateMap[string(evidence.StageRunAudit)],
			DependsOn: []string{string(evidence.StageReleasePackage)},
			Requires:  []string{"releaseArtifacts"},
			Produces:  []string{"manifest"},
		},
	}
	return New(stages)
}
