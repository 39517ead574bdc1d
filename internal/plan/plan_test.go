package plan

import (
	"strings"
	"testing"
)

// TestValidate exercises the structural checks on externally supplied
// plans.
func TestValidate(t *testing.T) {
	valid := &ExecutionPlan{Phases: []Phase{
		{ID: "p1", Tasks: []Task{{ID: "a"}, {ID: "b", DependsOn: []string{"a"}}}},
		{ID: "p2", Tasks: []Task{{ID: "c", DependsOn: []string{"b"}}}},
	}}

	tests := []struct {
		name    string
		plan    *ExecutionPlan
		wantErr string
	}{
		{"valid", valid, ""},
		{"no phases", &ExecutionPlan{}, "no phases"},
		{"empty phase", &ExecutionPlan{Phases: []Phase{{ID: "p1"}}}, "no tasks"},
		{"missing task id", &ExecutionPlan{Phases: []Phase{{ID: "p1", Tasks: []Task{{}}}}}, "no ID"},
		{"duplicate id", &ExecutionPlan{Phases: []Phase{{ID: "p1", Tasks: []Task{{ID: "a"}, {ID: "a"}}}}}, "duplicate"},
		{"unknown dep", &ExecutionPlan{Phases: []Phase{{ID: "p1", Tasks: []Task{{ID: "a", DependsOn: []string{"zz"}}}}}}, "unknown task"},
	}

	for _, tt := range tests {
		err := tt.plan.Validate()
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("%s: unexpected error: %v", tt.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("%s: error = %v, want contains %q", tt.name, err, tt.wantErr)
		}
	}
}

// TestCrossPhaseDependenciesAllowed verifies a task may depend on a task
// in an earlier phase.
func TestCrossPhaseDependenciesAllowed(t *testing.T) {
	p := &ExecutionPlan{Phases: []Phase{
		{ID: "p1", Tasks: []Task{{ID: "a"}}},
		{ID: "p2", Tasks: []Task{{ID: "b", DependsOn: []string{"a"}}}},
	}}
	if err := p.Validate(); err != nil {
		t.Errorf("Cross-phase dependency rejected: %v", err)
	}
}

// TestRoles verifies distinct roles return in first-appearance order.
func TestRoles(t *testing.T) {
	p := &ExecutionPlan{Phases: []Phase{
		{ID: "p1", Tasks: []Task{{ID: "a", Role: "backend"}, {ID: "b", Role: "design"}}},
		{ID: "p2", Tasks: []Task{{ID: "c", Role: "backend"}, {ID: "d"}}},
	}}
	roles := p.Roles()
	if len(roles) != 2 || roles[0] != "backend" || roles[1] != "design" {
		t.Errorf("Roles() = %v, want [backend design]", roles)
	}
}

// TestQualityTargetRank verifies targets order strictly.
func TestQualityTargetRank(t *testing.T) {
	ordered := []QualityTarget{QualityDraft, QualityStandard, QualityPremium, QualityAppleLevel}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1].Rank() >= ordered[i].Rank() {
			t.Errorf("Rank(%s) should be below Rank(%s)", ordered[i-1], ordered[i])
		}
	}
	if QualityTarget("bogus").Rank() != QualityStandard.Rank() {
		t.Error("Unknown targets should rank as standard")
	}
}

// TestArtifactLineCount verifies blank lines are excluded.
func TestArtifactLineCount(t *testing.T) {
	a := Artifact{Content: "line one\n\n  \nline two\nline three\n"}
	if got := a.LineCount(); got != 3 {
		t.Errorf("LineCount() = %d, want 3", got)
	}
	if got := (Artifact{}).LineCount(); got != 0 {
		t.Errorf("LineCount() of empty artifact = %d, want 0", got)
	}
}
