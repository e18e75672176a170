// Package ui provides the lossy fan-out channel of lifecycle events the loop
// engine publishes for presentation layers. Publishing never blocks: when no
// subscriber is attached or the buffer is full the event is dropped, and a
// dropped event never alters loop behavior.
package ui

import (
	"sync"

	"github.com/worksonmyai/overseer/internal/debug"
	"github.com/worksonmyai/overseer/internal/reviewer"
)

// Kind identifies the type of UI event.
type Kind int

const (
	// KindWorkerOutputLine is one captured line of worker output.
	KindWorkerOutputLine Kind = iota
	// KindIterationStarted marks the start of an iteration.
	KindIterationStarted
	// KindReviewerDecision carries a recorded verdict.
	KindReviewerDecision
	// KindStatusChanged marks a loop state transition.
	KindStatusChanged
	// KindTerminated carries the final outcome description.
	KindTerminated
)

// Status mirrors the loop engine's states for observers.
type Status int

const (
	StatusStarting Status = iota
	StatusStreaming
	StatusReviewing
	StatusTerminated
)

// String returns the display name of the status.
func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusStreaming:
		return "streaming"
	case StatusReviewing:
		return "reviewing"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Event is a single lifecycle observation.
type Event struct {
	Kind Kind

	// Text carries the worker output line or the outcome description.
	Text string
	// Iteration is set for KindIterationStarted and KindReviewerDecision.
	Iteration int
	// Verdict and RetryCount are set for KindReviewerDecision.
	Verdict    reviewer.Verdict
	RetryCount int
	// Status is set for KindStatusChanged.
	Status Status
}

// WorkerOutputLine creates a KindWorkerOutputLine event.
func WorkerOutputLine(line string) Event {
	return Event{Kind: KindWorkerOutputLine, Text: line}
}

// IterationStarted creates a KindIterationStarted event.
func IterationStarted(number int) Event {
	return Event{Kind: KindIterationStarted, Iteration: number}
}

// ReviewerDecision creates a KindReviewerDecision event.
func ReviewerDecision(iteration int, verdict reviewer.Verdict, retryCount int) Event {
	return Event{Kind: KindReviewerDecision, Iteration: iteration, Verdict: verdict, RetryCount: retryCount}
}

// StatusChanged creates a KindStatusChanged event.
func StatusChanged(status Status) Event {
	return Event{Kind: KindStatusChanged, Status: status}
}

// Terminated creates a KindTerminated event with the rendered outcome.
func Terminated(outcome string) Event {
	return Event{Kind: KindTerminated, Text: outcome}
}

// DefaultBuffer is the default subscriber buffer size.
const DefaultBuffer = 256

// Publisher fans events out to at most one subscriber over a bounded
// buffer. Safe for use by one publishing goroutine; Close is idempotent.
type Publisher struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewPublisher creates a publisher with the given buffer size.
func NewPublisher(buffer int) *Publisher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Publisher{ch: make(chan Event, buffer)}
}

// Publish delivers ev to the subscriber if there is room, and drops it
// silently otherwise. Never blocks.
func (p *Publisher) Publish(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- ev:
	default:
		debug.Logf("ui: dropped event kind=%d", ev.Kind)
	}
}

// Events returns the subscription channel. Delivered events arrive in
// publication order. The channel is closed by Close.
func (p *Publisher) Events() <-chan Event {
	return p.ch
}

// Close closes the subscription channel. Publishing after Close is a no-op.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.ch)
}
