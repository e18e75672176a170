// Package sampler maintains the bounded evidence window submitted to the
// reviewer: a trimmed, filtered sliding window over worker-visible output.
package sampler

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/pretty"

	"github.com/worksonmyai/overseer/internal/debug"
	"github.com/worksonmyai/overseer/internal/event"
)

// DefaultCapacity is the reference window size in lines.
const DefaultCapacity = 100

// Sampler buffers the last N reviewer-relevant lines of worker output.
// Oldest lines are evicted first when the window is full. Not safe for
// concurrent use; the loop engine is the sole owner.
type Sampler struct {
	lines    []string
	capacity int
}

// New creates a sampler holding at most capacity lines. Non-positive
// capacities fall back to DefaultCapacity.
func New(capacity int) *Sampler {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Sampler{
		lines:    make([]string, 0, capacity),
		capacity: capacity,
	}
}

// Ingest classifies ev and appends zero or more lines to the window. It
// returns the lines that were appended, in order, so callers can forward
// them to observers without re-deriving the line rules.
func (s *Sampler) Ingest(ev event.Event) []string {
	switch ev.Kind {
	case event.KindTextPartAdded, event.KindTextPartUpdated:
		return s.addLines(ev.Text)
	case event.KindToolInvocation:
		return s.addLine(formatToolLine(ev.Tool, ev.Params))
	case event.KindError:
		return s.addLine(fmt.Sprintf("[Error: %s]", ev.Text))
	default:
		// Tool results, reasoning, and protocol noise are intentionally
		// excluded from the evidence window.
		debug.Logf("sampler: skipping %s event", ev.Kind)
		return nil
	}
}

// Render returns all buffered lines joined by newline, without a trailing
// newline. Pure; repeated calls with no intervening Ingest or Clear return
// identical strings.
func (s *Sampler) Render() string {
	return strings.Join(s.lines, "\n")
}

// LineCount returns the current number of buffered lines.
func (s *Sampler) LineCount() int {
	return len(s.lines)
}

// Clear empties the window. Called at the iteration boundary so each review
// sees only post-previous-review evidence.
func (s *Sampler) Clear() {
	s.lines = s.lines[:0]
}

func (s *Sampler) addLines(text string) []string {
	var added []string
	for _, line := range strings.Split(text, "\n") {
		added = append(added, s.addLine(line)...)
	}
	return added
}

func (s *Sampler) addLine(line string) []string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	for len(s.lines) >= s.capacity {
		s.lines = s.lines[1:]
	}
	s.lines = append(s.lines, trimmed)
	return []string{trimmed}
}

// formatToolLine synthesizes the single-line summary of a tool invocation.
// Map marshaling sorts keys, which keeps the serialization deterministic;
// unserializable parameter values fall back to {}.
func formatToolLine(name string, params map[string]any) string {
	raw, err := json.Marshal(params)
	if err != nil || params == nil {
		raw = []byte("{}")
	}
	return fmt.Sprintf("[Tool: %s(%s)]", name, pretty.Ugly(raw))
}
