package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/worksonmyai/overseer/internal/reviewer"
	"github.com/worksonmyai/overseer/internal/ui"
)

func newViewport(width, height int) viewport.Model {
	vp := viewport.New(max(width, 10), max(height, 3))
	return vp
}

// View renders the full screen: sidebar plus worker output pane.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	sidebarWidth := m.sidebarWidth()
	mainWidth := m.width - sidebarWidth - 4
	contentHeight := m.height - 3

	sidebar := m.renderSidebar(sidebarWidth - 4)
	sidebarBox := statusBoxStyle.Width(sidebarWidth).Height(contentHeight).Render(sidebar)

	logHeader := labelStyle.Render(fmt.Sprintf("Worker output (%d lines)", len(m.lines)))
	logsBox := logBoxStyle.Width(mainWidth).Height(contentHeight).
		Render(logHeader + "\n" + m.logViewport.View())

	main := lipgloss.JoinHorizontal(lipgloss.Top, sidebarBox, logsBox)
	return main + "\n" + m.renderHelp()
}

func (m Model) renderSidebar(width int) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("OVERSEER"))
	b.WriteString("\n")

	if m.info.RepoLabel != "" {
		b.WriteString(labelStyle.Render("Repo: "))
		b.WriteString(valueStyle.Render(m.info.RepoLabel))
		b.WriteString("\n")
	}

	b.WriteString(labelStyle.Render("State: "))
	b.WriteString(m.renderStatus())
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("Iteration: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d/%d", m.iteration, m.info.MaxIterations)))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Task"))
	b.WriteString("\n")
	task := m.renderedTask
	if task == "" {
		task = m.info.Task
	}
	b.WriteString(truncateLines(task, width))
	b.WriteString("\n")

	if m.verdict != nil {
		b.WriteString(labelStyle.Render("Last verdict"))
		b.WriteString("\n")
		style := verdictStyle
		if m.verdict.Action == reviewer.ActionAbort {
			style = abortStyle
		}
		b.WriteString(style.Render(string(m.verdict.Action)))
		b.WriteString(valueStyle.Render(" - " + m.verdict.Reason))
		if m.retryCount > 0 {
			b.WriteString(labelStyle.Render(fmt.Sprintf(" (%d retries)", m.retryCount)))
		}
		b.WriteString("\n")
	}

	if m.outcome != nil {
		b.WriteString("\n")
		b.WriteString(runningStyle.Render(m.outcome.String()))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) renderStatus() string {
	if m.outcome != nil {
		return valueStyle.Render("done")
	}
	if m.quitting {
		return abortStyle.Render("stopping...")
	}
	switch m.status {
	case ui.StatusReviewing:
		return m.spinner.View() + verdictStyle.Render("reviewing")
	case ui.StatusStreaming:
		return m.spinner.View() + runningStyle.Render("streaming")
	case ui.StatusTerminated:
		return valueStyle.Render("terminated")
	default:
		return m.spinner.View() + labelStyle.Render("starting")
	}
}

func (m Model) renderHelp() string {
	return helpStyle.Render("  q: stop run and quit")
}

// truncateLines clips rendered text to the sidebar width per line.
func truncateLines(s string, width int) string {
	if width <= 0 {
		return s
	}
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		if len(line) > width {
			lines[i] = line[:width]
		}
	}
	return strings.Join(lines, "\n")
}
