// Package tui renders a live view of a supervised run: run state and last
// verdict in a sidebar, scrolling worker output in the main pane. It is a
// pure observer of the ui fan-out channel; the loop runs unchanged when the
// TUI is not attached.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/worksonmyai/overseer/internal/loop"
	"github.com/worksonmyai/overseer/internal/reviewer"
	"github.com/worksonmyai/overseer/internal/ui"
)

// maxLogLines bounds the in-memory output history.
const maxLogLines = 2000

// RunInfo holds the static facts shown in the sidebar.
type RunInfo struct {
	Task          string
	MaxIterations int
	RepoLabel     string
}

// uiEventMsg wraps a ui.Event delivered to the program.
type uiEventMsg struct {
	ev ui.Event
}

// engineDoneMsg signals the engine finished with an outcome.
type engineDoneMsg struct {
	outcome loop.Outcome
}

// Model is the bubbletea model for the run view.
type Model struct {
	info   RunInfo
	cancel context.CancelFunc

	status     ui.Status
	iteration  int
	verdict    *reviewer.Verdict
	retryCount int
	outcome    *loop.Outcome

	lines        []string
	logViewport  viewport.Model
	spinner      spinner.Model
	renderer     *glamour.TermRenderer
	renderedTask string
	width        int
	height       int
	ready        bool
	quitting     bool
}

// NewModel creates the model. cancel stops the engine when the user quits
// before the run finishes.
func NewModel(info RunInfo, cancel context.CancelFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{
		info:    info,
		cancel:  cancel,
		spinner: s,
		status:  ui.StatusStarting,
	}
}

// renderTask renders the task as markdown for the sidebar, falling back to
// the raw string when the renderer is unavailable.
func (m *Model) renderTask(width int) {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(width, 20)),
	)
	if err != nil {
		m.renderedTask = m.info.Task
		return
	}
	m.renderer = r
	if out, err := r.Render(m.info.Task); err == nil {
		m.renderedTask = out
	} else {
		m.renderedTask = m.info.Task
	}
}
