package events

import (
	"time"
)

// Event is the base interface for all run events. The event stream is a
// side channel for observers (TUI, logs); the scheduler never depends on
// its delivery.
type Event interface {
	EventType() string
	WorkOrderID() string
}

// Topic constants
const (
	TopicRun        = "run"
	TopicPhase      = "phase"
	TopicTask       = "task"
	TopicCheckpoint = "checkpoint"
)

// Event type constants
const (
	EventTypeRunStarted         = "run.started"
	EventTypeRunFinished        = "run.finished"
	EventTypePhaseStarted       = "phase.started"
	EventTypePhaseSettled       = "phase.settled"
	EventTypeTaskStarted        = "task.started"
	EventTypeTaskCompleted      = "task.completed"
	EventTypeTaskFailed         = "task.failed"
	EventTypeTaskSkipped        = "task.skipped"
	EventTypeQualityScored      = "quality.scored"
	EventTypeCheckpointReached  = "checkpoint.reached"
	EventTypeCheckpointResolved = "checkpoint.resolved"
)

// RunStartedEvent is published when a work order enters executing.
type RunStartedEvent struct {
	OrderID   string
	Objective string
	Phases    int
	Tasks     int
	Budget    time.Duration
	Timestamp time.Time
}

func (e RunStartedEvent) EventType() string   { return EventTypeRunStarted }
func (e RunStartedEvent) WorkOrderID() string { return e.OrderID }

// RunFinishedEvent is published once per run with the terminal status.
type RunFinishedEvent struct {
	OrderID   string
	Status    string
	Score     float64
	Elapsed   time.Duration
	Timestamp time.Time
}

func (e RunFinishedEvent) EventType() string   { return EventTypeRunFinished }
func (e RunFinishedEvent) WorkOrderID() string { return e.OrderID }

// PhaseStartedEvent is published when a phase begins.
type PhaseStartedEvent struct {
	OrderID   string
	PhaseID   string
	Name      string
	Order     int
	Tasks     int
	Timestamp time.Time
}

func (e PhaseStartedEvent) EventType() string   { return EventTypePhaseStarted }
func (e PhaseStartedEvent) WorkOrderID() string { return e.OrderID }

// PhaseSettledEvent is published after every task in a phase reached a
// terminal state.
type PhaseSettledEvent struct {
	OrderID   string
	PhaseID   string
	Status    string
	Completed int
	Failed    int
	Skipped   int
	Timestamp time.Time
}

func (e PhaseSettledEvent) EventType() string   { return EventTypePhaseSettled }
func (e PhaseSettledEvent) WorkOrderID() string { return e.OrderID }

// TaskStartedEvent is published when a task is handed to a pod.
type TaskStartedEvent struct {
	OrderID   string
	TaskID    string
	Name      string
	PodID     string
	Role      string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string   { return EventTypeTaskStarted }
func (e TaskStartedEvent) WorkOrderID() string { return e.OrderID }

// TaskCompletedEvent is published when a task completes successfully.
type TaskCompletedEvent struct {
	OrderID   string
	TaskID    string
	Name      string
	PodID     string
	Duration  time.Duration
	Artifacts int
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string   { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) WorkOrderID() string { return e.OrderID }

// TaskFailedEvent is published when a task fails.
type TaskFailedEvent struct {
	OrderID   string
	TaskID    string
	Name      string
	Err       error
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string   { return EventTypeTaskFailed }
func (e TaskFailedEvent) WorkOrderID() string { return e.OrderID }

// TaskSkippedEvent is published when a task is skipped because a
// dependency failed.
type TaskSkippedEvent struct {
	OrderID   string
	TaskID    string
	Name      string
	Timestamp time.Time
}

func (e TaskSkippedEvent) EventType() string   { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) WorkOrderID() string { return e.OrderID }

// QualityScoredEvent is published after a quality gate pass.
type QualityScoredEvent struct {
	OrderID   string
	PhaseID   string // empty for the final whole-run pass
	Score     float64
	Passed    bool
	Blockers  int
	Timestamp time.Time
}

func (e QualityScoredEvent) EventType() string   { return EventTypeQualityScored }
func (e QualityScoredEvent) WorkOrderID() string { return e.OrderID }

// CheckpointReachedEvent is published when a checkpoint trigger fires.
type CheckpointReachedEvent struct {
	OrderID      string
	CheckpointID string
	Trigger      string
	Summary      string
	Timestamp    time.Time
}

func (e CheckpointReachedEvent) EventType() string   { return EventTypeCheckpointReached }
func (e CheckpointReachedEvent) WorkOrderID() string { return e.OrderID }

// CheckpointResolvedEvent is published when a checkpoint resolution is
// recorded, whether human- or policy-supplied.
type CheckpointResolvedEvent struct {
	OrderID      string
	CheckpointID string
	Resolution   string
	DecidedBy    string
	Timestamp    time.Time
}

func (e CheckpointResolvedEvent) EventType() string   { return EventTypeCheckpointResolved }
func (e CheckpointResolvedEvent) WorkOrderID() string { return e.OrderID }
