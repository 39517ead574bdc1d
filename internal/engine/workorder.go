// Package engine implements the execution controller: it owns a work
// order's lifecycle, builds the schedule from the plan, drives phases
// and parallel groups through pods, applies the quality gate, triggers
// checkpoints, enforces the time budget, and produces the final receipt.
// One controller instance drives one work order; the pod pool is the
// only cross-run-shared collaborator.
package engine

import (
	"time"

	"github.com/aristath/workorder/internal/plan"
)

// Status is the work-order lifecycle state.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusPlanning         Status = "planning"
	StatusAwaitingApproval Status = "awaiting-approval"
	StatusExecuting        Status = "executing"
	StatusCheckpoint       Status = "checkpoint"
	StatusPaused           Status = "paused"
	StatusCompleting       Status = "completing"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
	StatusTimeout          Status = "timeout"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// Authority controls how checkpoints resolve. Guided requires a human
// resolution; every other level auto-continues.
type Authority string

const (
	AuthorityGuided     Authority = "guided"
	AuthoritySupervised Authority = "supervised"
	AuthorityAutonomous Authority = "autonomous"
)

// WorkOrder is the root aggregate: one end-to-end unit of planned,
// budgeted, supervised execution. It is owned exclusively by the
// controller for the duration of a run and mutated only through
// controller-issued transitions.
type WorkOrder struct {
	ID          string
	Objective   string
	Kind        plan.Kind
	Target      plan.QualityTarget
	Authority   Authority
	Budget      time.Duration
	Status      Status
	Plan        *plan.ExecutionPlan
	PodIDs      []string
	Checkpoints []*Checkpoint
	Artifacts   []plan.Artifact
	Receipt     *Receipt // present only once the run reached a terminal state
	CreatedAt   time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}
