package loop

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/worksonmyai/overseer/internal/event"
	"github.com/worksonmyai/overseer/internal/reviewer"
	"github.com/worksonmyai/overseer/internal/ui"
	"github.com/worksonmyai/overseer/internal/worker"
)

type fakeSub struct {
	ch  chan event.Event
	err error
}

func (f *fakeSub) Events() <-chan event.Event { return f.ch }
func (f *fakeSub) Err() error                 { return f.err }
func (f *fakeSub) Close()                     {}

type fakeTransport struct {
	sub       *fakeSub
	createErr error
	subErr    error
}

func (f *fakeTransport) CreateSession(ctx context.Context, task string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	return "sess-1", nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, sessionID string) (worker.Subscription, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	return f.sub, nil
}

func (f *fakeTransport) SendMessage(ctx context.Context, sessionID, text string) error {
	return nil
}

type fakeReviewer struct {
	fn    func(rc reviewer.Context) (reviewer.Verdict, int)
	calls []reviewer.Context
}

func (f *fakeReviewer) ReviewWithRetry(ctx context.Context, rc reviewer.Context) (reviewer.Verdict, int) {
	f.calls = append(f.calls, rc)
	if f.fn == nil {
		return reviewer.Verdict{Action: reviewer.ActionContinue, Reason: "progressing"}, 0
	}
	return f.fn(rc)
}

func testConfig() Config {
	return Config{
		Task:              "build the feature",
		MaxIterations:     10,
		InactivityTimeout: time.Second,
		SampleCapacity:    100,
		SummaryWindow:     5,
	}
}

func newTestEngine(cfg Config, tr worker.Transport, rev Reviewer) *Engine {
	return New(cfg, tr, rev)
}

func TestNaturalCompletionSkipsReviewer(t *testing.T) {
	sub := &fakeSub{ch: make(chan event.Event, 8)}
	sub.ch <- event.TextPartAdded("hello")
	sub.ch <- event.MessageCompleted()
	sub.ch <- event.SessionCompleted()

	rev := &fakeReviewer{}
	e := newTestEngine(testConfig(), &fakeTransport{sub: sub}, rev)

	outcome := e.Run(context.Background())
	require.Equal(t, OutcomeCompleted, outcome.Kind)
	require.Empty(t, rev.calls)
	require.Empty(t, e.State().Iterations())
}

func TestImmediateSessionCompleted(t *testing.T) {
	sub := &fakeSub{ch: make(chan event.Event, 1)}
	sub.ch <- event.SessionCompleted()

	rev := &fakeReviewer{}
	e := newTestEngine(testConfig(), &fakeTransport{sub: sub}, rev)

	outcome := e.Run(context.Background())
	require.Equal(t, OutcomeCompleted, outcome.Kind)
	require.Empty(t, rev.calls)
	require.Empty(t, e.State().Iterations())
}

func TestOneReviewContinueThenCompletion(t *testing.T) {
	sub := &fakeSub{ch: make(chan event.Event, 8)}
	sub.ch <- event.TextPartAdded("designing")
	sub.ch <- event.ToolInvocation("read_file", map[string]any{"path": "x"})
	sub.ch <- event.MessageCompleted()

	rev := &fakeReviewer{}
	rev.fn = func(rc reviewer.Context) (reviewer.Verdict, int) {
		// The worker finishes while the verdict is being produced.
		sub.ch <- event.SessionCompleted()
		return reviewer.Verdict{Action: reviewer.ActionContinue, Reason: "progressing"}, 0
	}

	e := newTestEngine(testConfig(), &fakeTransport{sub: sub}, rev)
	outcome := e.Run(context.Background())

	require.Equal(t, OutcomeCompleted, outcome.Kind)
	require.Len(t, rev.calls, 1)
	rc := rev.calls[0]
	require.Equal(t, "build the feature", rc.Task)
	require.Equal(t, 1, rc.Iteration)
	require.Empty(t, rc.PreviousSummaries)
	require.Equal(t, "designing\n[Tool: read_file({\"path\":\"x\"})]", rc.CurrentSample)

	iters := e.State().Iterations()
	require.Len(t, iters, 1)
	require.Equal(t, 1, iters[0].Number)
	require.Equal(t, 2, iters[0].SampleSize)
	require.Equal(t, reviewer.ActionContinue, iters[0].Verdict.Action)
}

func TestAbortAfterLoopDetection(t *testing.T) {
	sub := &fakeSub{ch: make(chan event.Event, 16)}
	for i := 0; i < 10; i++ {
		sub.ch <- event.TextPartAdded("retrying")
	}
	sub.ch <- event.MessageCompleted()

	rev := &fakeReviewer{fn: func(rc reviewer.Context) (reviewer.Verdict, int) {
		return reviewer.Verdict{Action: reviewer.ActionAbort, Reason: "stuck in retry loop"}, 0
	}}

	e := newTestEngine(testConfig(), &fakeTransport{sub: sub}, rev)
	outcome := e.Run(context.Background())

	require.Equal(t, OutcomeAborted, outcome.Kind)
	require.Equal(t, "stuck in retry loop", outcome.Reason)
	require.Len(t, e.State().Iterations(), 1)
	require.Equal(t, reviewer.ActionAbort, e.State().Iterations()[0].Verdict.Action)
}

func TestReviewerOutageRecordsRetriesAndContinues(t *testing.T) {
	sub := &fakeSub{ch: make(chan event.Event, 8)}
	sub.ch <- event.TextPartAdded("working")
	sub.ch <- event.MessageCompleted()

	rev := &fakeReviewer{}
	rev.fn = func(rc reviewer.Context) (reviewer.Verdict, int) {
		sub.ch <- event.SessionCompleted()
		return reviewer.Verdict{
			Action: reviewer.ActionContinue,
			Reason: "reviewer unavailable; continuing on last known state",
		}, 3
	}

	e := newTestEngine(testConfig(), &fakeTransport{sub: sub}, rev)
	outcome := e.Run(context.Background())

	require.Equal(t, OutcomeCompleted, outcome.Kind)
	iters := e.State().Iterations()
	require.Len(t, iters, 1)
	require.Equal(t, 3, iters[0].RetryCount)
	require.Contains(t, iters[0].Verdict.Reason, "reviewer unavailable")
}

func TestIterationCapExhausts(t *testing.T) {
	sub := &fakeSub{ch: make(chan event.Event, 16)}
	for i := 1; i <= 3; i++ {
		sub.ch <- event.TextPartAdded(fmt.Sprintf("step-%d", i))
		sub.ch <- event.MessageCompleted()
	}

	cfg := testConfig()
	cfg.MaxIterations = 3
	rev := &fakeReviewer{}
	e := newTestEngine(cfg, &fakeTransport{sub: sub}, rev)

	outcome := e.Run(context.Background())
	require.Equal(t, OutcomeExhausted, outcome.Kind)
	require.Len(t, e.State().Iterations(), 3)
	require.Len(t, rev.calls, 3)

	// Each iteration reviews only its own evidence window.
	require.Equal(t, "step-1", rev.calls[0].CurrentSample)
	require.Equal(t, "step-2", rev.calls[1].CurrentSample)
	require.Equal(t, "step-3", rev.calls[2].CurrentSample)
	require.Len(t, rev.calls[2].PreviousSummaries, 2)
	require.Contains(t, rev.calls[2].PreviousSummaries[0], "Iteration 1")
}

func TestMaxIterationsOneReviewsExactlyOnce(t *testing.T) {
	sub := &fakeSub{ch: make(chan event.Event, 4)}
	sub.ch <- event.TextPartAdded("x")
	sub.ch <- event.MessageCompleted()

	cfg := testConfig()
	cfg.MaxIterations = 1
	rev := &fakeReviewer{}
	e := newTestEngine(cfg, &fakeTransport{sub: sub}, rev)

	outcome := e.Run(context.Background())
	require.Equal(t, OutcomeExhausted, outcome.Kind)
	require.Len(t, rev.calls, 1)
	require.Len(t, e.State().Iterations(), 1)
}

func TestInactivityTriggersReview(t *testing.T) {
	sub := &fakeSub{ch: make(chan event.Event, 4)}
	sub.ch <- event.TextPartAdded("one line")

	cfg := testConfig()
	cfg.InactivityTimeout = 50 * time.Millisecond
	rev := &fakeReviewer{}
	rev.fn = func(rc reviewer.Context) (reviewer.Verdict, int) {
		sub.ch <- event.SessionCompleted()
		return reviewer.Verdict{Action: reviewer.ActionContinue, Reason: "quiet but fine"}, 0
	}

	e := newTestEngine(cfg, &fakeTransport{sub: sub}, rev)
	outcome := e.Run(context.Background())

	require.Equal(t, OutcomeCompleted, outcome.Kind)
	require.Len(t, rev.calls, 1)
	require.Equal(t, "one line", rev.calls[0].CurrentSample)
}

func TestInactivityTimerNeedsPriorActivity(t *testing.T) {
	sub := &fakeSub{ch: make(chan event.Event, 4)}

	cfg := testConfig()
	cfg.InactivityTimeout = 50 * time.Millisecond
	rev := &fakeReviewer{}
	e := newTestEngine(cfg, &fakeTransport{sub: sub}, rev)

	done := make(chan Outcome, 1)
	go func() { done <- e.Run(context.Background()) }()

	// Several timeout periods of idle startup must not trigger a review.
	time.Sleep(200 * time.Millisecond)
	require.Empty(t, rev.calls)

	sub.ch <- event.SessionCompleted()
	outcome := <-done
	require.Equal(t, OutcomeCompleted, outcome.Kind)
	require.Empty(t, rev.calls)
}

func TestStreamClosureTriggersThinReviewThenFatal(t *testing.T) {
	sub := &fakeSub{ch: make(chan event.Event)}
	close(sub.ch)

	rev := &fakeReviewer{}
	e := newTestEngine(testConfig(), &fakeTransport{sub: sub}, rev)
	outcome := e.Run(context.Background())

	require.Equal(t, OutcomeFatal, outcome.Kind)
	require.Contains(t, outcome.Reason, "twice")

	// The closure-triggered iteration is still recorded, with an empty sample.
	iters := e.State().Iterations()
	require.Len(t, iters, 1)
	require.Equal(t, 0, iters[0].SampleSize)
	require.Len(t, rev.calls, 1)
	require.Equal(t, "", rev.calls[0].CurrentSample)
}

func TestCreateSessionFailureIsFatal(t *testing.T) {
	e := newTestEngine(testConfig(), &fakeTransport{createErr: worker.ErrNotSupported}, &fakeReviewer{})
	outcome := e.Run(context.Background())
	require.Equal(t, OutcomeFatal, outcome.Kind)
	require.Contains(t, outcome.Reason, "create session")
}

func TestSubscribeFailureIsFatal(t *testing.T) {
	e := newTestEngine(testConfig(), &fakeTransport{subErr: fmt.Errorf("boom")}, &fakeReviewer{})
	outcome := e.Run(context.Background())
	require.Equal(t, OutcomeFatal, outcome.Kind)
	require.Contains(t, outcome.Reason, "subscribe")
}

func TestCancellationIsFatalAndUnrecorded(t *testing.T) {
	sub := &fakeSub{ch: make(chan event.Event, 4)}
	sub.ch <- event.TextPartAdded("partial work")

	ctx, cancel := context.WithCancel(context.Background())
	e := newTestEngine(testConfig(), &fakeTransport{sub: sub}, &fakeReviewer{})

	done := make(chan Outcome, 1)
	go func() { done <- e.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	outcome := <-done
	require.Equal(t, OutcomeFatal, outcome.Kind)
	require.Equal(t, "cancelled", outcome.Reason)
	require.Empty(t, e.State().Iterations())
}

func TestUIEventsArePublished(t *testing.T) {
	sub := &fakeSub{ch: make(chan event.Event, 8)}
	sub.ch <- event.TextPartAdded("hello")
	sub.ch <- event.MessageCompleted()

	rev := &fakeReviewer{}
	rev.fn = func(rc reviewer.Context) (reviewer.Verdict, int) {
		sub.ch <- event.SessionCompleted()
		return reviewer.Verdict{Action: reviewer.ActionContinue, Reason: "ok"}, 0
	}

	pub := ui.NewPublisher(64)
	e := newTestEngine(testConfig(), &fakeTransport{sub: sub}, rev)
	e.SetPublisher(pub)

	outcome := e.Run(context.Background())
	pub.Close()
	require.Equal(t, OutcomeCompleted, outcome.Kind)

	var kinds []ui.Kind
	var terminatedText string
	for ev := range pub.Events() {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == ui.KindTerminated {
			terminatedText = ev.Text
		}
	}
	require.Contains(t, kinds, ui.KindIterationStarted)
	require.Contains(t, kinds, ui.KindWorkerOutputLine)
	require.Contains(t, kinds, ui.KindReviewerDecision)
	require.Contains(t, kinds, ui.KindStatusChanged)
	require.Equal(t, ui.KindTerminated, kinds[len(kinds)-1])
	require.Equal(t, "completed successfully", terminatedText)
}

func TestDroppedUIEventsDoNotAffectState(t *testing.T) {
	sub := &fakeSub{ch: make(chan event.Event, 16)}
	for i := 0; i < 10; i++ {
		sub.ch <- event.TextPartAdded(fmt.Sprintf("line %d", i))
	}
	sub.ch <- event.MessageCompleted()

	rev := &fakeReviewer{fn: func(rc reviewer.Context) (reviewer.Verdict, int) {
		return reviewer.Verdict{Action: reviewer.ActionAbort, Reason: "enough"}, 0
	}}

	// Tiny buffer with no subscriber: almost everything is dropped.
	pub := ui.NewPublisher(1)
	e := newTestEngine(testConfig(), &fakeTransport{sub: sub}, rev)
	e.SetPublisher(pub)

	outcome := e.Run(context.Background())
	require.Equal(t, OutcomeAborted, outcome.Kind)
	require.Len(t, e.State().Iterations(), 1)
	require.Equal(t, 10, e.State().Iterations()[0].SampleSize)
}

func TestOutcomeStrings(t *testing.T) {
	require.Equal(t, "completed successfully", Completed().String())
	require.Equal(t, "aborted by reviewer: stuck", Aborted("stuck").String())
	require.Equal(t, "maximum iterations reached", Exhausted().String())
	require.Equal(t, "fatal error: cancelled", Fatal("cancelled").String())
}
