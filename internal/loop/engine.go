// Package loop implements the supervised iteration state machine: stream
// worker events until a review trigger, ask the reviewer, record the
// verdict, and decide the next transition.
package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/worksonmyai/overseer/internal/debug"
	"github.com/worksonmyai/overseer/internal/event"
	"github.com/worksonmyai/overseer/internal/progress"
	"github.com/worksonmyai/overseer/internal/reviewer"
	"github.com/worksonmyai/overseer/internal/runstate"
	"github.com/worksonmyai/overseer/internal/sampler"
	"github.com/worksonmyai/overseer/internal/ui"
	"github.com/worksonmyai/overseer/internal/worker"
)

// Reviewer is the verdict source the engine consumes. The production
// implementation is reviewer.Client; tests substitute fakes.
type Reviewer interface {
	ReviewWithRetry(ctx context.Context, rc reviewer.Context) (reviewer.Verdict, int)
}

// Config holds the engine's immutable run parameters.
type Config struct {
	Task              string
	MaxIterations     int
	InactivityTimeout time.Duration
	SampleCapacity    int
	SummaryWindow     int
}

// Engine drives one run to a bounded terminal outcome. It is the single
// writer of the run state and the sole owner of the sampler; no locks are
// needed.
type Engine struct {
	cfg       Config
	transport worker.Transport
	reviewer  Reviewer
	smp       *sampler.Sampler
	state     *runstate.RunState

	pub *ui.Publisher    // optional
	log *progress.Logger // optional

	// pending holds an event peeked past a MessageCompleted trigger; it
	// belongs to the next iteration's evidence window.
	pending *event.Event
}

// New creates an engine for one run.
func New(cfg Config, transport worker.Transport, rev Reviewer) *Engine {
	return &Engine{
		cfg:       cfg,
		transport: transport,
		reviewer:  rev,
		smp:       sampler.New(cfg.SampleCapacity),
		state:     runstate.New(),
	}
}

// SetPublisher attaches the UI fan-out channel. Dropped UI events never
// alter loop behavior.
func (e *Engine) SetPublisher(p *ui.Publisher) {
	e.pub = p
}

// SetProgressLogger attaches the persistent run log.
func (e *Engine) SetProgressLogger(l *progress.Logger) {
	e.log = l
}

// State exposes the run state for final reporting.
func (e *Engine) State() *runstate.RunState {
	return e.state
}

// streamTrigger is the condition that ended a streaming phase.
type streamTrigger int

const (
	// triggerReview fires on message completion, inactivity, or a first
	// stream closure.
	triggerReview streamTrigger = iota
	// triggerCompleted fires on a SessionCompleted event.
	triggerCompleted
)

// Run executes the state machine until a terminal outcome.
func (e *Engine) Run(ctx context.Context) Outcome {
	e.publishStatus(ui.StatusStarting)

	sessionID, err := e.transport.CreateSession(ctx, e.cfg.Task)
	if err != nil {
		return e.terminate(Fatal(fmt.Sprintf("create session: %v", err)))
	}
	debug.Logf("loop: session %s created", sessionID)

	sub, err := e.transport.Subscribe(ctx, sessionID)
	if err != nil {
		return e.terminate(Fatal(fmt.Sprintf("subscribe to session events: %v", err)))
	}
	defer sub.Close()

	// Counts review triggers caused by stream closure with no event
	// received in between; two in a row is fatal.
	streamFailures := 0

	for {
		if ctx.Err() != nil {
			return e.terminate(Fatal("cancelled"))
		}
		if e.state.IsAtLimit(e.cfg.MaxIterations) {
			return e.terminate(Exhausted())
		}

		e.state.StartIteration()
		iteration := e.state.CurrentIteration()
		e.publish(ui.IterationStarted(iteration))
		if e.log != nil {
			e.log.Iteration(iteration, e.cfg.MaxIterations)
		}
		e.smp.Clear()

		e.publishStatus(ui.StatusStreaming)
		trigger, err := e.stream(ctx, sub, &streamFailures)
		if err != nil {
			if ctx.Err() != nil {
				return e.terminate(Fatal("cancelled"))
			}
			return e.terminate(Fatal(err.Error()))
		}
		if trigger == triggerCompleted {
			return e.terminate(Completed())
		}

		e.publishStatus(ui.StatusReviewing)
		rc := reviewer.Context{
			Task:              e.cfg.Task,
			Iteration:         iteration,
			PreviousSummaries: e.state.PreviousSummaries(e.cfg.SummaryWindow),
			CurrentSample:     e.smp.Render(),
		}
		verdict, retries := e.reviewer.ReviewWithRetry(ctx, rc)
		if ctx.Err() != nil {
			// Cancelled mid-review: the partial iteration is not recorded.
			return e.terminate(Fatal("cancelled"))
		}

		sampleSize := e.smp.LineCount()
		e.state.RecordDecision(sampleSize, verdict, retries)
		e.publish(ui.ReviewerDecision(iteration, verdict, retries))
		if e.log != nil {
			e.log.Verdict(string(verdict.Action), verdict.Reason, sampleSize, retries)
		}
		debug.Logf("loop: iteration %d verdict: %s - %s (retries %d)", iteration, verdict.Action, verdict.Reason, retries)

		if verdict.Action == reviewer.ActionAbort {
			return e.terminate(Aborted(verdict.Reason))
		}
	}
}

// stream consumes events until a review trigger fires. The inactivity timer
// arms only after the first event of the iteration and resets on every
// subsequent one, so idle startup does not spuriously trigger a review.
func (e *Engine) stream(ctx context.Context, sub worker.Subscription, streamFailures *int) (streamTrigger, error) {
	var timer *time.Timer
	var timeout <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	// handle processes one received event. done reports that the streaming
	// phase ended with the returned trigger.
	handle := func(ev event.Event) (trigger streamTrigger, done bool) {
		if ev.Kind == event.KindSessionCompleted {
			debug.Logf("loop: session completed")
			return triggerCompleted, true
		}

		for _, line := range e.smp.Ingest(ev) {
			e.publish(ui.WorkerOutputLine(line))
		}

		if ev.Kind == event.KindMessageCompleted {
			// A session-completed marker often sits right behind the
			// message boundary; prefer it over a pointless review. Any
			// other queued event belongs to the next iteration.
			select {
			case next, ok := <-sub.Events():
				if ok {
					if next.Kind == event.KindSessionCompleted {
						debug.Logf("loop: session completed at message boundary")
						return triggerCompleted, true
					}
					e.pending = &next
				}
			default:
			}
			debug.Logf("loop: message completed, triggering review")
			return triggerReview, true
		}

		if timer == nil {
			timer = time.NewTimer(e.cfg.InactivityTimeout)
			timeout = timer.C
		} else {
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(e.cfg.InactivityTimeout)
		}
		return 0, false
	}

	if e.pending != nil {
		ev := *e.pending
		e.pending = nil
		*streamFailures = 0
		if trigger, done := handle(ev); done {
			return trigger, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()

		case ev, ok := <-sub.Events():
			if !ok {
				if *streamFailures >= 1 {
					if err := sub.Err(); err != nil {
						return 0, fmt.Errorf("event stream failed twice without progress: %v", err)
					}
					return 0, fmt.Errorf("event stream closed twice without progress")
				}
				*streamFailures++
				debug.Logf("loop: event stream closed, reviewing what we have")
				return triggerReview, nil
			}
			*streamFailures = 0
			if trigger, done := handle(ev); done {
				return trigger, nil
			}

		case <-timeout:
			debug.Logf("loop: inactivity timeout after %s, triggering review", e.cfg.InactivityTimeout)
			return triggerReview, nil
		}
	}
}

func (e *Engine) terminate(o Outcome) Outcome {
	e.publishStatus(ui.StatusTerminated)
	e.publish(ui.Terminated(o.String()))
	if e.log != nil {
		e.log.Exit(o.String(), len(e.state.Iterations()))
	}
	return o
}

func (e *Engine) publish(ev ui.Event) {
	if e.pub != nil {
		e.pub.Publish(ev)
	}
}

func (e *Engine) publishStatus(s ui.Status) {
	e.publish(ui.StatusChanged(s))
}
