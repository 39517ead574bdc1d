package engine

import (
	"fmt"
	"time"

	"github.com/aristath/workorder/internal/plan"
	"github.com/aristath/workorder/internal/pod"
	"github.com/aristath/workorder/internal/taskgraph"
)

// ExecutiveSummary is the receipt's plain-language overview.
type ExecutiveSummary struct {
	Accomplishments []string
	FilesProduced   int
	LinesProduced   int // lines of generated code
	Simplifications []string
	UnfinishedItems []string // skipped or never-attempted tasks; failures show in the technical summary
	QualityScore    float64
	QualityNotes    []string
}

// TechnicalSummary carries the run's machine-facing totals.
type TechnicalSummary struct {
	BuildStatus    string
	TotalTasks     int
	CompletedTasks int
	FailedTasks    int
	SkippedTasks   int
	Elapsed        time.Duration
	TokensUsed     int
}

// PodReceipt summarizes one pod's contribution to the run.
type PodReceipt struct {
	PodID          string
	Role           pod.Role
	TasksCompleted int
	TasksFailed    int
	TimeUsed       time.Duration
	TimeAllocated  time.Duration
	TokensUsed     int
	Warnings       []string
}

// Receipt is the terminal, immutable summary of a run. Every terminal
// path produces a best-effort receipt, failure and timeout included;
// there is no silent abort.
type Receipt struct {
	OrderID     string
	Status      Status
	GeneratedAt time.Time
	Executive   ExecutiveSummary
	Technical   TechnicalSummary
	Pods        []PodReceipt
	Rollback    []string
	Decisions   []DecisionPoint
}

// podRunStats is the controller's per-run pod accounting. Cross-run
// metrics live in the pool; these reset with every work order.
type podRunStats struct {
	completed int
	failed    int
	tokens    int
	timeUsed  time.Duration
	warnings  []string
}

// buildReceipt assembles the receipt from the run's final state.
func (c *Controller) buildReceipt(finalScore float64, finalNotes []string) *Receipt {
	order := c.order

	var completedNames, unfinished []string
	completed, failed, skipped, total := 0, 0, 0, 0
	var nodes []*taskgraph.Node
	if c.graph != nil {
		nodes = c.graph.Nodes()
	}
	for _, node := range nodes {
		total++
		switch node.Status {
		case plan.TaskComplete:
			completed++
			completedNames = append(completedNames, node.Name)
		case plan.TaskFailed:
			failed++
		case plan.TaskSkipped:
			skipped++
			unfinished = append(unfinished, node.Name)
		default:
			unfinished = append(unfinished, node.Name)
		}
	}

	files, lines, tokens := 0, 0, 0
	for _, a := range order.Artifacts {
		files++
		if a.Type == plan.ArtifactCode {
			lines += a.LineCount()
		}
	}

	var podReceipts []PodReceipt
	allocated := time.Duration(0)
	if len(order.PodIDs) > 0 {
		allocated = order.Budget / time.Duration(len(order.PodIDs))
	}
	for _, podID := range order.PodIDs {
		stats := c.podStats[podID]
		if stats == nil {
			stats = &podRunStats{}
		}
		role := pod.Role("")
		if pd, ok := c.pool.Get(podID); ok {
			role = pd.Role
		}
		tokens += stats.tokens
		podReceipts = append(podReceipts, PodReceipt{
			PodID:          podID,
			Role:           role,
			TasksCompleted: stats.completed,
			TasksFailed:    stats.failed,
			TimeUsed:       stats.timeUsed,
			TimeAllocated:  allocated,
			TokensUsed:     stats.tokens,
			Warnings:       stats.warnings,
		})
	}

	buildStatus := "unverified"
	if finalScore >= 70 && failed == 0 {
		buildStatus = "passing"
	}

	var rollback []string
	if len(order.Artifacts) > 0 {
		rollback = append(rollback,
			fmt.Sprintf("Discard the %d artifact(s) produced by this run; none were applied outside the artifact store.", len(order.Artifacts)))
		if lines > 0 {
			rollback = append(rollback, "Revert any tool-executor side effects recorded against this work order's artifact IDs.")
		}
	} else {
		rollback = append(rollback, "No artifacts were produced; nothing to roll back.")
	}

	return &Receipt{
		OrderID:     order.ID,
		Status:      order.Status,
		GeneratedAt: time.Now(),
		Executive: ExecutiveSummary{
			Accomplishments: completedNames,
			FilesProduced:   files,
			LinesProduced:   lines,
			Simplifications: c.simplifications,
			UnfinishedItems: unfinished,
			QualityScore:    finalScore,
			QualityNotes:    finalNotes,
		},
		Technical: TechnicalSummary{
			BuildStatus:    buildStatus,
			TotalTasks:     total,
			CompletedTasks: completed,
			FailedTasks:    failed,
			SkippedTasks:   skipped,
			Elapsed:        c.Elapsed(),
			TokensUsed:     tokens,
		},
		Pods:      podReceipts,
		Rollback:  rollback,
		Decisions: append([]DecisionPoint(nil), c.decisions...),
	}
}
