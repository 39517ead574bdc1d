package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/workorder/internal/events"
)

// RunPaneModel shows the run-level progress: task counts, a progress
// bar, the current phase, quality scores and the time budget.
type RunPaneModel struct {
	objective string
	total     int
	completed int
	running   int
	failed    int
	skipped   int
	phase     string
	budget    time.Duration
	started   time.Time
	finished  bool
	status    string
	score     float64
	scored    bool
	paused    bool
	width     int
	height    int
	focused   bool
}

// NewRunPaneModel creates a new run pane model.
func NewRunPaneModel() RunPaneModel {
	return RunPaneModel{}
}

// Update handles messages for the run pane.
func (m RunPaneModel) Update(msg tea.Msg) (RunPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.RunStartedEvent:
		m.objective = msg.Objective
		m.total = msg.Tasks
		m.budget = msg.Budget
		m.started = msg.Timestamp
		m.status = "executing"

	case events.RunFinishedEvent:
		m.finished = true
		m.status = msg.Status
		m.score = msg.Score
		m.scored = true

	case events.PhaseStartedEvent:
		m.phase = msg.Name

	case events.TaskStartedEvent:
		m.running++

	case events.TaskCompletedEvent:
		m.running--
		m.completed++

	case events.TaskFailedEvent:
		m.running--
		m.failed++

	case events.TaskSkippedEvent:
		m.skipped++

	case events.QualityScoredEvent:
		m.score = msg.Score
		m.scored = true

	case events.CheckpointReachedEvent:
		m.paused = true

	case events.CheckpointResolvedEvent:
		m.paused = msg.Resolution == "pause"
	}

	return m, nil
}

// View renders the run pane.
func (m RunPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Run Progress")
	b.WriteString(title)
	b.WriteString("\n\n")

	if m.objective != "" {
		b.WriteString(m.objective + "\n\n")
	}

	b.WriteString(fmt.Sprintf("Status:    %s\n", m.renderStatus()))
	if m.phase != "" && !m.finished {
		b.WriteString(fmt.Sprintf("Phase:     %s\n", m.phase))
	}
	b.WriteString(fmt.Sprintf("Total:     %d\n", m.total))
	b.WriteString(fmt.Sprintf("Completed: %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", m.completed))))
	b.WriteString(fmt.Sprintf("Running:   %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.running))))
	b.WriteString(fmt.Sprintf("Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed))))
	b.WriteString(fmt.Sprintf("Skipped:   %s\n", StyleStatusSkipped.Render(fmt.Sprintf("%d", m.skipped))))

	if m.scored {
		b.WriteString(fmt.Sprintf("Quality:   %.1f/100\n", m.score))
	}
	if m.budget > 0 && !m.started.IsZero() && !m.finished {
		remaining := m.budget - time.Since(m.started)
		if remaining < 0 {
			remaining = 0
		}
		b.WriteString(fmt.Sprintf("Budget:    %s remaining\n", remaining.Round(time.Second)))
	}

	b.WriteString("\n")

	if m.total > 0 {
		barWidth := min(m.width-8, 40)
		completedWidth := (m.completed * barWidth) / m.total
		failedWidth := ((m.failed + m.skipped) * barWidth) / m.total
		runningWidth := (m.running * barWidth) / m.total
		pendingWidth := barWidth - completedWidth - failedWidth - runningWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n", bar, m.completed, m.total))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func (m RunPaneModel) renderStatus() string {
	switch {
	case m.paused && !m.finished:
		return StyleCheckpoint.Render("paused")
	case m.finished && m.status == "completed":
		return StyleStatusComplete.Render(m.status)
	case m.finished:
		return StyleStatusFailed.Render(m.status)
	default:
		return StyleStatusRunning.Render(m.status)
	}
}

// SetSize updates the pane dimensions.
func (m *RunPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *RunPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
