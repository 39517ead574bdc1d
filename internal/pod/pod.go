// Package pod defines the role-specialized worker entity. Pods are
// created by the controller at run start (or drawn from the cross-run
// pool), execute tasks one unit of work at a time, and are terminated at
// run end. Their accumulated metrics outlive a run only inside the pool,
// for load balancing; nothing in per-run state depends on them.
package pod

import (
	"time"

	"github.com/google/uuid"
)

// Status is the pod lifecycle state.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusIdle         Status = "idle"
	StatusWorking      Status = "working"
	StatusComplete     Status = "complete"
	StatusFailed       Status = "failed"
	StatusTerminated   Status = "terminated"
)

// Usage tracks a pod's resource consumption.
type Usage struct {
	TokensUsed    int
	ExecutionTime time.Duration
	APICalls      int
}

// Health tracks a pod's error and warning counts.
type Health struct {
	Errors   int
	Warnings []string
}

// Pod is a long-lived worker bound to one role.
type Pod struct {
	ID             string
	Role           Role
	Status         Status
	CurrentTaskID  string
	CompletedTasks []string
	FailedTasks    []string
	Usage          Usage
	Health         Health
	Allocated      time.Duration // time budget share granted for the run
	CreatedAt      time.Time
}

// New creates a pod for the given role in the initializing state.
func New(role Role) *Pod {
	return &Pod{
		ID:        "pod-" + uuid.NewString(),
		Role:      role,
		Status:    StatusInitializing,
		CreatedAt: time.Now(),
	}
}

// SuccessRate returns the pod's historical completion ratio in [0,1].
// A pod with no history scores a neutral 0.5 so new pods are neither
// favored nor starved.
func (p *Pod) SuccessRate() float64 {
	total := len(p.CompletedTasks) + len(p.FailedTasks)
	if total == 0 {
		return 0.5
	}
	return float64(len(p.CompletedTasks)) / float64(total)
}
