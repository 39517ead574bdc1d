package brain

import (
	"context"
	"errors"
	"testing"
)

// TestScriptedDefaults verifies unscripted tasks succeed with a canned
// artifact and record the call.
func TestScriptedDefaults(t *testing.T) {
	s := NewScripted()

	res, err := s.Execute(context.Background(), Prompt{TaskID: "t1", TaskName: "build it"})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if len(res.Artifacts) != 1 || res.Artifacts[0].TaskID != "t1" {
		t.Errorf("Expected one artifact for t1, got %+v", res.Artifacts)
	}
	if res.TokensUsed == 0 {
		t.Error("Expected nonzero token usage")
	}

	calls := s.Calls()
	if len(calls) != 1 || calls[0] != "t1" {
		t.Errorf("Calls() = %v, want [t1]", calls)
	}
}

// TestScriptedOutcomes verifies scripted results and failures override
// the default.
func TestScriptedOutcomes(t *testing.T) {
	s := NewScripted()
	s.ScriptResult("ok", Result{Output: "custom", TokensUsed: 42})
	bang := errors.New("bang")
	s.ScriptFailure("boom", bang)

	res, err := s.Execute(context.Background(), Prompt{TaskID: "ok"})
	if err != nil || res.Output != "custom" || res.TokensUsed != 42 {
		t.Errorf("Scripted result not honored: %+v, err=%v", res, err)
	}

	if _, err := s.Execute(context.Background(), Prompt{TaskID: "boom"}); !errors.Is(err, bang) {
		t.Errorf("Scripted failure not honored: %v", err)
	}
}

// TestScriptedHonorsCancellation verifies a cancelled context fails fast.
func TestScriptedHonorsCancellation(t *testing.T) {
	s := NewScripted()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Execute(ctx, Prompt{TaskID: "t1"}); err == nil {
		t.Error("Expected context error, got nil")
	}
	if len(s.Calls()) != 0 {
		t.Error("Cancelled execution should not be recorded as a call")
	}
}
