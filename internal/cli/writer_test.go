package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/worksonmyai/overseer/internal/reviewer"
	"github.com/worksonmyai/overseer/internal/ui"
)

func TestWriterPlainOutput(t *testing.T) {
	var buf strings.Builder
	w := NewWriter(&buf, false)

	w.WriteEvent(ui.StatusChanged(ui.StatusStarting))
	w.WriteEvent(ui.IterationStarted(1))
	w.WriteEvent(ui.WorkerOutputLine("compiling"))
	w.WriteEvent(ui.ReviewerDecision(1, reviewer.Verdict{Action: reviewer.ActionContinue, Reason: "fine"}, 0))
	w.WriteEvent(ui.Terminated("completed successfully"))

	out := buf.String()
	require.Contains(t, out, "[starting]")
	require.Contains(t, out, "overseer: iteration 1")
	require.Contains(t, out, "compiling")
	require.Contains(t, out, "reviewer: continue - fine (0 retries)")
	require.Contains(t, out, "overseer: completed successfully")
	// Non-TTY output carries no ANSI escapes.
	require.NotContains(t, out, "\x1b[")
}

func TestWriterAbortVerdict(t *testing.T) {
	var buf strings.Builder
	w := NewWriter(&buf, false)
	w.WriteEvent(ui.ReviewerDecision(2, reviewer.Verdict{Action: reviewer.ActionAbort, Reason: "looping"}, 3))
	require.Contains(t, buf.String(), "abort - looping (3 retries)")
}
