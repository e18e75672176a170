// Package worker provides the transport capability the loop engine consumes
// (session create, event subscription, message send) together with the
// opencode server subprocess lifecycle. The engine treats the transport as
// an opaque event source; concrete implementations are injected at
// construction.
package worker

import (
	"context"
	"errors"

	"github.com/worksonmyai/overseer/internal/event"
)

// ErrNotSupported is returned by the stub transport on platforms without a
// usable opencode toolchain.
var ErrNotSupported = errors.New("worker transport not supported on this platform")

// Transport is the capability the loop engine depends on.
type Transport interface {
	// CreateSession opens a worker session seeded with the task and
	// returns its id. Called once per run.
	CreateSession(ctx context.Context, task string) (string, error)

	// Subscribe returns the typed event stream for a session.
	Subscribe(ctx context.Context, sessionID string) (Subscription, error)

	// SendMessage delivers a follow-up message to the session. Unused by
	// the loop today; reserved for future feedback injection.
	SendMessage(ctx context.Context, sessionID, text string) error
}

// Subscription is a stream of typed worker events. The Events channel is
// closed when the stream ends; Err distinguishes a transport error from a
// clean end-of-stream (nil).
type Subscription interface {
	Events() <-chan event.Event
	Err() error
	Close()
}

// StubTransport is the degenerate Transport for unsupported environments:
// session creation fails fast with ErrNotSupported, which the engine
// surfaces as a fatal setup failure.
type StubTransport struct{}

func (StubTransport) CreateSession(context.Context, string) (string, error) {
	return "", ErrNotSupported
}

func (StubTransport) Subscribe(context.Context, string) (Subscription, error) {
	return nil, ErrNotSupported
}

func (StubTransport) SendMessage(context.Context, string, string) error {
	return ErrNotSupported
}
