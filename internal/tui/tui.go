package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/worksonmyai/overseer/internal/debug"
	"github.com/worksonmyai/overseer/internal/loop"
	"github.com/worksonmyai/overseer/internal/ui"
)

// Run drives the engine with the TUI attached and returns its outcome.
// Quitting the TUI before the run finishes cancels the engine, which then
// unwinds with a fatal "cancelled" outcome.
func Run(ctx context.Context, engine *loop.Engine, pub *ui.Publisher, info RunInfo) loop.Outcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(info, cancel), tea.WithAltScreen())

	var outcome loop.Outcome
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		outcome = engine.Run(ctx)
		pub.Close()
	}()

	go func() {
		for ev := range pub.Events() {
			p.Send(uiEventMsg{ev: ev})
		}
		<-engineDone
		p.Send(engineDoneMsg{outcome: outcome})
	}()

	if _, err := p.Run(); err != nil {
		debug.Logf("tui: program error: %v", err)
		cancel()
	}
	<-engineDone
	return outcome
}
