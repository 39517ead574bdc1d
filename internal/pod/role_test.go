package pod

import "testing"

// TestParseRole verifies every declared role parses and unknown strings
// are rejected.
func TestParseRole(t *testing.T) {
	for _, r := range Roles {
		got, err := ParseRole(string(r))
		if err != nil {
			t.Errorf("ParseRole(%q) failed: %v", r, err)
		}
		if got != r {
			t.Errorf("ParseRole(%q) = %q", r, got)
		}
	}

	if _, err := ParseRole("barista"); err == nil {
		t.Error("ParseRole accepted an unknown role")
	}
	if _, err := ParseRole(""); err == nil {
		t.Error("ParseRole accepted the empty string")
	}
}

// TestRoleTemplatesComplete verifies no role is missing its instruction
// template or tool list.
func TestRoleTemplatesComplete(t *testing.T) {
	for _, r := range Roles {
		if r.Instructions() == "" {
			t.Errorf("role %q has no instruction template", r)
		}
		if len(r.AllowedTools()) == 0 {
			t.Errorf("role %q has no allowed tools", r)
		}
	}
}

// TestSuccessRate verifies the neutral score for pods with no history.
func TestSuccessRate(t *testing.T) {
	p := New(RoleBackend)
	if got := p.SuccessRate(); got != 0.5 {
		t.Errorf("SuccessRate() with no history = %v, want 0.5", got)
	}

	p.CompletedTasks = []string{"a", "b", "c"}
	p.FailedTasks = []string{"d"}
	if got := p.SuccessRate(); got != 0.75 {
		t.Errorf("SuccessRate() = %v, want 0.75", got)
	}
}
