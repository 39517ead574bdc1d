// Package brain defines the boundary to the external worker brain (an
// LLM client or equivalent). The engine invokes it once per task with an
// assembled prompt and receives free-form output, zero or more
// artifacts, and a token count. Latency is unbounded beyond the caller's
// context; cancellation does not interrupt an in-flight call, so late
// results must be discarded by the caller.
package brain

import (
	"context"

	"github.com/aristath/workorder/internal/plan"
)

// Prompt is the assembled input for one task execution.
type Prompt struct {
	TaskID       string
	TaskName     string
	Description  string
	Instructions string   // role-specific instruction template
	AllowedTools []string
	Context      []string // relevant artifacts from dependency/sibling tasks
	Messages     []string // pending bus messages addressed to the pod
}

// Result is the structured outcome of one brain invocation.
type Result struct {
	Output     string
	Artifacts  []plan.Artifact
	TokensUsed int
	Confidence float64
}

// Brain executes one unit of work. Implementations are external; the
// engine only depends on this interface.
type Brain interface {
	Execute(ctx context.Context, prompt Prompt) (Result, error)
}

// Func adapts a plain function to the Brain interface.
type Func func(ctx context.Context, prompt Prompt) (Result, error)

// Execute implements Brain.
func (f Func) Execute(ctx context.Context, prompt Prompt) (Result, error) {
	return f(ctx, prompt)
}
