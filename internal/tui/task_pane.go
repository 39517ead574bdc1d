package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/workorder/internal/events"
)

// TaskState tracks one task's display row.
type TaskState struct {
	TaskID    string
	Name      string
	PodID     string
	Role      string
	Status    string // "running", "completed", "failed", "skipped"
	StartTime time.Time
	Duration  time.Duration
}

// TaskPaneModel shows the task list on top and the scrolling run feed
// below it.
type TaskPaneModel struct {
	tasks       map[string]*TaskState // taskID -> state
	taskOrder   []string              // insertion order for display
	selectedIdx int
	feed        []string // run feed lines, newest last
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	vp := viewport.New(0, 0)
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: vp,
	}
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		if _, exists := m.tasks[msg.TaskID]; !exists {
			m.tasks[msg.TaskID] = &TaskState{
				TaskID:    msg.TaskID,
				Name:      msg.Name,
				PodID:     msg.PodID,
				Role:      msg.Role,
				Status:    "running",
				StartTime: msg.Timestamp,
			}
			m.taskOrder = append(m.taskOrder, msg.TaskID)
		}
		m.appendFeed(fmt.Sprintf("▶ %s started on %s (%s)", msg.Name, msg.PodID, msg.Role))

	case events.TaskCompletedEvent:
		if t, ok := m.tasks[msg.TaskID]; ok {
			t.Status = "completed"
			t.Duration = msg.Duration
		}
		m.appendFeed(fmt.Sprintf("✓ %s completed in %s (%d artifact(s))", msg.Name, msg.Duration.Round(time.Millisecond), msg.Artifacts))

	case events.TaskFailedEvent:
		if t, ok := m.tasks[msg.TaskID]; ok {
			t.Status = "failed"
		}
		m.appendFeed(StyleStatusFailed.Render(fmt.Sprintf("✗ %s failed: %v", msg.Name, msg.Err)))

	case events.TaskSkippedEvent:
		if _, exists := m.tasks[msg.TaskID]; !exists {
			m.tasks[msg.TaskID] = &TaskState{TaskID: msg.TaskID, Name: msg.Name}
			m.taskOrder = append(m.taskOrder, msg.TaskID)
		}
		m.tasks[msg.TaskID].Status = "skipped"
		m.appendFeed(StyleStatusSkipped.Render(fmt.Sprintf("- %s skipped (dependency failed)", msg.Name)))

	case events.PhaseStartedEvent:
		m.appendFeed(StyleTitle.Render(fmt.Sprintf("Phase %d: %s (%d tasks)", msg.Order, msg.Name, msg.Tasks)))

	case events.CheckpointReachedEvent:
		m.appendFeed(StyleCheckpoint.Render("⏸ checkpoint: " + msg.Summary))

	case events.CheckpointResolvedEvent:
		m.appendFeed(StyleCheckpoint.Render(fmt.Sprintf("⏵ checkpoint resolved: %s (by %s)", msg.Resolution, msg.DecidedBy)))
	}

	return m, cmd
}

func (m *TaskPaneModel) appendFeed(line string) {
	m.feed = append(m.feed, line)
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.feed, "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(StyleTitle.Render("Tasks"))
	b.WriteString("\n")

	listHeight := m.listHeight()
	start := 0
	if m.selectedIdx >= listHeight {
		start = m.selectedIdx - listHeight + 1
	}
	for i := start; i < len(m.taskOrder) && i < start+listHeight; i++ {
		t := m.tasks[m.taskOrder[i]]
		cursor := "  "
		if i == m.selectedIdx {
			cursor = "> "
		}
		b.WriteString(cursor + m.renderRow(t) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(m.viewport.View())

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func (m TaskPaneModel) renderRow(t *TaskState) string {
	var status string
	switch t.Status {
	case "running":
		status = StyleStatusRunning.Render("RUN ")
	case "completed":
		status = StyleStatusComplete.Render("DONE")
	case "failed":
		status = StyleStatusFailed.Render("FAIL")
	case "skipped":
		status = StyleStatusSkipped.Render("SKIP")
	default:
		status = StyleStatusPending.Render("....")
	}

	name := t.Name
	maxName := m.width - 14
	if maxName > 0 && lipgloss.Width(name) > maxName {
		name = name[:maxName]
	}
	return fmt.Sprintf("%s %s", status, name)
}

// listHeight is how many task rows fit above the feed viewport.
func (m TaskPaneModel) listHeight() int {
	h := (m.height - 6) / 2
	if h < 3 {
		h = 3
	}
	return h
}

func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = m.width - 4
	vh := m.height - m.listHeight() - 6
	if vh < 3 {
		vh = 3
	}
	m.viewport.Height = vh
	m.viewport.SetContent(strings.Join(m.feed, "\n"))
	m.viewport.GotoBottom()
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
