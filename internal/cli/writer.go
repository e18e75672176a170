package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/worksonmyai/overseer/internal/reviewer"
	"github.com/worksonmyai/overseer/internal/ui"
)

var (
	prefixStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	abortStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	verdictStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
)

// Writer prints ui events to an output stream. In non-TTY mode it prints
// plain text without ANSI escapes.
type Writer struct {
	out   io.Writer
	isTTY bool
	mu    sync.Mutex
}

// NewWriter creates a Writer.
func NewWriter(out io.Writer, isTTY bool) *Writer {
	return &Writer{out: out, isTTY: isTTY}
}

// WriteEvent prints a single event.
func (w *Writer) WriteEvent(ev ui.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch ev.Kind {
	case ui.KindWorkerOutputLine:
		fmt.Fprintln(w.out, ev.Text)
	case ui.KindIterationStarted:
		fmt.Fprintf(w.out, "\n%s iteration %d\n", w.styled(prefixStyle, "overseer:"), ev.Iteration)
	case ui.KindReviewerDecision:
		style := verdictStyle
		if ev.Verdict.Action == reviewer.ActionAbort {
			style = abortStyle
		}
		fmt.Fprintf(w.out, "%s %s - %s (%d retries)\n",
			w.styled(prefixStyle, "reviewer:"),
			w.styled(style, string(ev.Verdict.Action)), ev.Verdict.Reason, ev.RetryCount)
	case ui.KindStatusChanged:
		fmt.Fprintf(w.out, "%s\n", w.styled(statusStyle, "["+ev.Status.String()+"]"))
	case ui.KindTerminated:
		fmt.Fprintf(w.out, "\n%s %s\n", w.styled(prefixStyle, "overseer:"), ev.Text)
	}
}

func (w *Writer) styled(style lipgloss.Style, s string) string {
	if !w.isTTY {
		return s
	}
	return style.Render(s)
}

func isTTY(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
