// Package plan defines the execution plan consumed by the engine: phases,
// tasks, artifacts and quality targets. Plans are produced externally (by an
// LLM-backed planner) and are read-only from the engine's point of view;
// the engine performs structural validation only.
package plan

import (
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of a single task.
type TaskStatus string

const (
	TaskPending  TaskStatus = "pending"
	TaskReady    TaskStatus = "ready"
	TaskRunning  TaskStatus = "running"
	TaskComplete TaskStatus = "complete"
	TaskFailed   TaskStatus = "failed"
	TaskSkipped  TaskStatus = "skipped"
)

// Terminal reports whether the status is a final state.
func (s TaskStatus) Terminal() bool {
	return s == TaskComplete || s == TaskFailed || s == TaskSkipped
}

// PhaseStatus represents the lifecycle state of a phase.
type PhaseStatus string

const (
	PhasePending    PhaseStatus = "pending"
	PhaseInProgress PhaseStatus = "in-progress"
	PhaseComplete   PhaseStatus = "complete"
	PhaseFailed     PhaseStatus = "failed"
)

// QualityTarget is the ordered quality bar a work order is held to.
type QualityTarget string

const (
	QualityDraft      QualityTarget = "draft"
	QualityStandard   QualityTarget = "standard"
	QualityPremium    QualityTarget = "premium"
	QualityAppleLevel QualityTarget = "apple-level"
)

// Rank returns the ordering of a quality target (draft lowest).
// Unknown targets rank as standard.
func (q QualityTarget) Rank() int {
	switch q {
	case QualityDraft:
		return 0
	case QualityStandard:
		return 1
	case QualityPremium:
		return 2
	case QualityAppleLevel:
		return 3
	}
	return 1
}

// Kind categorizes a work order so the quality gate knows which artifact
// categories are required and whether design checks apply.
type Kind string

const (
	KindWebsite     Kind = "website"
	KindApplication Kind = "application"
	KindDocument    Kind = "document"
	KindCampaign    Kind = "campaign"
)

// Task is the atomic unit of assignable work.
type Task struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Role        string        `json:"role"`
	Estimated   time.Duration `json:"estimated"`
	Actual      time.Duration `json:"actual,omitempty"`
	DependsOn   []string      `json:"depends_on,omitempty"`
	Status      TaskStatus    `json:"status"`
	PodID       string        `json:"pod_id,omitempty"`
	Output      string        `json:"output,omitempty"`
	Confidence  float64       `json:"confidence,omitempty"`
}

// Phase is an ordered stage of a plan containing one or more tasks.
type Phase struct {
	ID        string        `json:"id"`
	Order     int           `json:"order"`
	Name      string        `json:"name"`
	Estimated time.Duration `json:"estimated"`
	Tasks     []Task        `json:"tasks"`
	Status    PhaseStatus   `json:"status"`
	Progress  float64       `json:"progress"`
}

// ExecutionPlan is the declarative plan a work order executes.
// Invariant (enforced upstream, not re-validated here): the sum of phase
// durations approximates the work order's time budget within ±10%.
type ExecutionPlan struct {
	Phases       []Phase       `json:"phases"`
	Estimated    time.Duration `json:"estimated"`
	Confidence   float64       `json:"confidence"`
	Risks        []string      `json:"risks,omitempty"`
	Deliverables []string      `json:"deliverables,omitempty"`
}

// Tasks returns every task in phase order.
func (p *ExecutionPlan) Tasks() []Task {
	var out []Task
	for _, ph := range p.Phases {
		out = append(out, ph.Tasks...)
	}
	return out
}

// Roles returns the distinct roles referenced anywhere in the plan,
// in first-appearance order.
func (p *ExecutionPlan) Roles() []string {
	seen := make(map[string]bool)
	var roles []string
	for _, ph := range p.Phases {
		for _, t := range ph.Tasks {
			if t.Role == "" || seen[t.Role] {
				continue
			}
			seen[t.Role] = true
			roles = append(roles, t.Role)
		}
	}
	return roles
}

// Validate performs the structural checks the engine requires of an
// externally produced plan: at least one phase, at least one task per
// phase, unique task IDs, and dependency IDs that resolve to tasks in
// the plan. No semantic validation is performed.
func (p *ExecutionPlan) Validate() error {
	if len(p.Phases) == 0 {
		return fmt.Errorf("plan has no phases")
	}

	ids := make(map[string]bool)
	for _, ph := range p.Phases {
		if len(ph.Tasks) == 0 {
			return fmt.Errorf("phase %q has no tasks", ph.ID)
		}
		for _, t := range ph.Tasks {
			if t.ID == "" {
				return fmt.Errorf("phase %q contains a task with no ID", ph.ID)
			}
			if ids[t.ID] {
				return fmt.Errorf("duplicate task ID %q", t.ID)
			}
			ids[t.ID] = true
		}
	}

	for _, ph := range p.Phases {
		for _, t := range ph.Tasks {
			for _, dep := range t.DependsOn {
				if !ids[dep] {
					return fmt.Errorf("task %q depends on unknown task %q", t.ID, dep)
				}
			}
		}
	}

	return nil
}
