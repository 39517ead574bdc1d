package brain

import (
	"context"
	"fmt"
	"sync"

	"github.com/aristath/workorder/internal/plan"
)

// Scripted is a deterministic Brain for tests and dry runs. Outcomes are
// keyed by task ID; unscripted tasks succeed with a canned result.
type Scripted struct {
	mu       sync.Mutex
	results  map[string]Result
	failures map[string]error
	calls    []string
}

// NewScripted creates an empty scripted brain.
func NewScripted() *Scripted {
	return &Scripted{
		results:  make(map[string]Result),
		failures: make(map[string]error),
	}
}

// ScriptResult fixes the result returned for a task ID.
func (s *Scripted) ScriptResult(taskID string, r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[taskID] = r
}

// ScriptFailure fixes the error returned for a task ID.
func (s *Scripted) ScriptFailure(taskID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[taskID] = err
}

// Calls returns the task IDs executed so far, in call order.
func (s *Scripted) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Execute implements Brain.
func (s *Scripted) Execute(ctx context.Context, prompt Prompt) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, prompt.TaskID)

	if err, ok := s.failures[prompt.TaskID]; ok {
		return Result{}, err
	}
	if r, ok := s.results[prompt.TaskID]; ok {
		return r, nil
	}

	return Result{
		Output: fmt.Sprintf("completed %s", prompt.TaskName),
		Artifacts: []plan.Artifact{{
			TaskID:  prompt.TaskID,
			Type:    plan.ArtifactContent,
			Name:    prompt.TaskName,
			Content: fmt.Sprintf("output of %s", prompt.TaskID),
		}},
		TokensUsed: 100,
		Confidence: 0.9,
	}, nil
}
