package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/worksonmyai/overseer/internal/ui"
)

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles program messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.outcome != nil {
				return m, tea.Quit
			}
			// Stop the engine; the final engineDoneMsg quits the program.
			m.quitting = true
			m.cancel()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		sidebarWidth := m.sidebarWidth()
		logWidth := m.width - sidebarWidth - 6
		logHeight := m.height - 5
		if !m.ready {
			m.logViewport = newViewport(logWidth, logHeight)
			m.ready = true
		} else {
			m.logViewport.Width = logWidth
			m.logViewport.Height = logHeight
		}
		m.renderTask(sidebarWidth - 4)
		m.refreshLog()
		return m, nil

	case uiEventMsg:
		return m.handleUIEvent(msg.ev)

	case engineDoneMsg:
		m.outcome = &msg.outcome
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleUIEvent(ev ui.Event) (tea.Model, tea.Cmd) {
	switch ev.Kind {
	case ui.KindWorkerOutputLine:
		m.lines = append(m.lines, ev.Text)
		if len(m.lines) > maxLogLines {
			m.lines = m.lines[len(m.lines)-maxLogLines:]
		}
		m.refreshLog()
	case ui.KindIterationStarted:
		m.iteration = ev.Iteration
	case ui.KindReviewerDecision:
		v := ev.Verdict
		m.verdict = &v
		m.retryCount = ev.RetryCount
	case ui.KindStatusChanged:
		m.status = ev.Status
	case ui.KindTerminated:
		// Outcome details arrive with engineDoneMsg; nothing to track here.
	}
	return m, nil
}

func (m *Model) refreshLog() {
	if !m.ready {
		return
	}
	atBottom := m.logViewport.AtBottom()
	m.logViewport.SetContent(strings.Join(m.lines, "\n"))
	if atBottom {
		m.logViewport.GotoBottom()
	}
}

func (m Model) sidebarWidth() int {
	return max(40, min(60, m.width*40/100))
}
