package engine

import (
	"context"
	"time"
)

// CheckpointTrigger names the condition that raised a checkpoint.
type CheckpointTrigger string

const (
	TriggerPhaseComplete  CheckpointTrigger = "phase-complete"
	TriggerErrorThreshold CheckpointTrigger = "error-threshold"
	TriggerTimeElapsed    CheckpointTrigger = "time-elapsed"
)

// CheckpointStatus is the checkpoint lifecycle state.
type CheckpointStatus string

const (
	CheckpointPending  CheckpointStatus = "pending"
	CheckpointReached  CheckpointStatus = "reached"
	CheckpointResolved CheckpointStatus = "resolved"
)

// ResolutionAction is the decision supplied when a checkpoint resolves.
type ResolutionAction string

const (
	ResolutionContinue ResolutionAction = "continue"
	ResolutionPause    ResolutionAction = "pause"
	ResolutionModify   ResolutionAction = "modify"
)

// Resolution records who decided what, and when.
type Resolution struct {
	Action    ResolutionAction
	DecidedBy string
	At        time.Time
	Note      string
}

// Checkpoint is a human-or-policy approval gate between phases.
type Checkpoint struct {
	ID           string
	Order        int
	Trigger      CheckpointTrigger
	Status       CheckpointStatus
	Summary      string
	Achievements []string
	NextSteps    []string
	ArtifactIDs  []string
	Resolution   *Resolution
}

// Resolver supplies checkpoint resolutions. Under guided authority the
// controller blocks phase progression on Resolve until an external actor
// answers; this is the only externally required input during an
// otherwise autonomous run.
type Resolver interface {
	Resolve(ctx context.Context, cp *Checkpoint) (Resolution, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, cp *Checkpoint) (Resolution, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, cp *Checkpoint) (Resolution, error) {
	return f(ctx, cp)
}
