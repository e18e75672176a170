// Package runstate keeps the append-only record of a run: one record per
// completed iteration, plus derived summaries for the reviewer and the
// human-readable activity log. The loop engine is the sole writer; all
// reads are pure.
package runstate

import (
	"fmt"
	"strings"
	"time"

	"github.com/worksonmyai/overseer/internal/reviewer"
)

// Iteration is the immutable record of one completed iteration.
type Iteration struct {
	// Number is 1-based and strictly increasing without gaps.
	Number int
	// Timestamp is the wall-clock time the decision was recorded, UTC.
	Timestamp time.Time
	// SampleSize is the number of lines submitted to the reviewer.
	SampleSize int
	// Verdict is the reviewer's decision for this iteration.
	Verdict reviewer.Verdict
	// RetryCount is the number of reviewer retries consumed, 0 on
	// first-call success.
	RetryCount int
}

// RunState tracks the iterations of a single run. State does not survive
// the run.
type RunState struct {
	iterations []Iteration
	current    int
	startTime  time.Time
}

// New creates an empty run state stamped with the current time.
func New() *RunState {
	return &RunState{startTime: time.Now().UTC()}
}

// StartIteration advances the current iteration counter. Every
// StartIteration must be followed by exactly one RecordDecision before the
// next StartIteration.
func (s *RunState) StartIteration() {
	if s.current > len(s.iterations) {
		panic(fmt.Sprintf("runstate: iteration %d started before iteration %d was recorded", s.current+1, s.current))
	}
	s.current++
}

// CurrentIteration returns the 1-based number of the iteration in flight,
// or the count of recorded iterations between iterations.
func (s *RunState) CurrentIteration() int {
	return s.current
}

// RecordDecision appends the record for the iteration in flight.
func (s *RunState) RecordDecision(sampleSize int, verdict reviewer.Verdict, retryCount int) {
	if s.current == 0 || s.current == len(s.iterations) {
		panic("runstate: RecordDecision called without a started iteration")
	}
	s.iterations = append(s.iterations, Iteration{
		Number:     s.current,
		Timestamp:  time.Now().UTC(),
		SampleSize: sampleSize,
		Verdict:    verdict,
		RetryCount: retryCount,
	})
}

// PreviousSummaries renders the last limit iterations as short strings for
// the reviewer context, oldest first.
func (s *RunState) PreviousSummaries(limit int) []string {
	if limit <= 0 || len(s.iterations) == 0 {
		return nil
	}
	start := len(s.iterations) - limit
	if start < 0 {
		start = 0
	}
	summaries := make([]string, 0, len(s.iterations)-start)
	for _, it := range s.iterations[start:] {
		summaries = append(summaries, fmt.Sprintf("Iteration %d (%d lines): %s - %s",
			it.Number, it.SampleSize, actionLabel(it.Verdict.Action), it.Verdict.Reason))
	}
	return summaries
}

// IsAtLimit reports whether the run has used its iteration budget.
func (s *RunState) IsAtLimit(max int) bool {
	return s.current >= max
}

// Iterations returns the recorded iterations.
func (s *RunState) Iterations() []Iteration {
	return s.iterations
}

// LastIteration returns the most recent record, or nil before the first.
func (s *RunState) LastIteration() *Iteration {
	if len(s.iterations) == 0 {
		return nil
	}
	return &s.iterations[len(s.iterations)-1]
}

// StartTime returns the construction time of the run state.
func (s *RunState) StartTime() time.Time {
	return s.startTime
}

// Runtime returns the elapsed time since the run started.
func (s *RunState) Runtime() time.Duration {
	return time.Since(s.startTime)
}

// TotalLinesSampled sums the sample sizes across all iterations.
func (s *RunState) TotalLinesSampled() int {
	total := 0
	for _, it := range s.iterations {
		total += it.SampleSize
	}
	return total
}

// TotalRetries sums the reviewer retries across all iterations.
func (s *RunState) TotalRetries() int {
	total := 0
	for _, it := range s.iterations {
		total += it.RetryCount
	}
	return total
}

// FormatActivityLog renders all iterations as a human-readable list.
func (s *RunState) FormatActivityLog() string {
	if len(s.iterations) == 0 {
		return "No iterations yet"
	}
	lines := make([]string, 0, len(s.iterations))
	for _, it := range s.iterations {
		mark := "+"
		if it.Verdict.Action == reviewer.ActionAbort {
			mark = "x"
		}
		lines = append(lines, fmt.Sprintf("[%s] Iteration %d: %s %s - %s (%d lines, %d retries)",
			it.Timestamp.Format("15:04:05"), it.Number, mark, actionLabel(it.Verdict.Action),
			it.Verdict.Reason, it.SampleSize, it.RetryCount))
	}
	return strings.Join(lines, "\n")
}

// StatusSummary renders a one-line description of the run's current state.
func (s *RunState) StatusSummary() string {
	last := s.LastIteration()
	if last == nil {
		return "Initializing..."
	}
	return fmt.Sprintf("Iteration %d - %s: %s", s.current, actionLabel(last.Verdict.Action), last.Verdict.Reason)
}

func actionLabel(a reviewer.Action) string {
	if a == reviewer.ActionAbort {
		return "Abort"
	}
	return "Continue"
}
