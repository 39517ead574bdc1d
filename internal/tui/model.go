// Package tui renders a live run view: a task list with the scrolling
// run feed on the left and run-level progress on the right, driven by
// the event bus. The view is an observer; dropping it changes nothing
// about execution.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/workorder/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneRun
)

// Controls is the subset of the controller the view drives. A nil
// Controls disables the pause/resume/cancel keys.
type Controls interface {
	Pause()
	Resume()
	Cancel()
}

// Model is the root Bubble Tea model for the run view.
type Model struct {
	taskPane    TaskPaneModel
	runPane     RunPaneModel
	focusedPane PaneID
	eventSub    <-chan events.Event
	controls    Controls
	width       int
	height      int
	finished    bool
	quitting    bool
}

// New creates the run view model.
// It subscribes to all events from the event bus using SubscribeAll.
func New(eventBus *events.EventBus, controls Controls) Model {
	return Model{
		taskPane:    NewTaskPaneModel(),
		runPane:     NewRunPaneModel(),
		focusedPane: PaneTasks,
		eventSub:    eventBus.SubscribeAll(256),
		controls:    controls,
	}
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			if m.controls != nil && !m.finished {
				m.controls.Cancel()
			}
			m.quitting = true
			return m, tea.Quit

		case KeyPause:
			if m.controls != nil && !m.finished {
				m.controls.Pause()
			}

		case KeyResume:
			if m.controls != nil && !m.finished {
				m.controls.Resume()
			}

		case KeyCancel:
			if m.controls != nil && !m.finished {
				m.controls.Cancel()
			}

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % 2
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + 1) % 2
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneRun
			m.updateFocusStates()

		default:
			// Delegate to the focused pane
			switch m.focusedPane {
			case PaneTasks:
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			case PaneRun:
				var cmd tea.Cmd
				m.runPane, cmd = m.runPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case events.Event:
		// Every event reaches both panes; each picks what it renders.
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)
		m.runPane, cmd = m.runPane.Update(msg)
		cmds = append(cmds, cmd)

		if _, ok := msg.(events.RunFinishedEvent); ok {
			m.finished = true
		}
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// View renders the run view.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	leftPane := m.taskPane.View()
	rightPane := m.runPane.View()

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)
	helpBar := HelpView()

	return lipgloss.JoinVertical(lipgloss.Left, mainContent, helpBar)
}

// computeLayout calculates pane dimensions and updates the child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 60) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // reserve 1 line for the help bar

	m.taskPane.SetSize(leftWidth, availableHeight)
	m.runPane.SetSize(rightWidth, availableHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of both panes.
func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.runPane.SetFocused(m.focusedPane == PaneRun)
}
