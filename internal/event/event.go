// Package event defines the typed worker events consumed by the loop,
// sampler, and UI observers, plus decoding of the SSE wire payloads the
// opencode server emits. Unknown wire variants decode to KindUnknown so new
// worker event kinds never break the loop.
package event

import (
	"github.com/tidwall/gjson"
)

// Kind identifies the type of worker event.
type Kind int

const (
	// KindUnknown is any wire variant the decoder does not recognize.
	KindUnknown Kind = iota
	// KindTextPartAdded is a new textual fragment from the worker.
	KindTextPartAdded
	// KindTextPartUpdated is an incremental delta to an open fragment.
	KindTextPartUpdated
	// KindToolInvocation is a tool call with its parameter map.
	KindToolInvocation
	// KindToolResult is tool output (discarded by the sampler).
	KindToolResult
	// KindReasoning is model thinking content (discarded).
	KindReasoning
	// KindSystemNotice is protocol/status noise (discarded).
	KindSystemNotice
	// KindError is a textual error produced by the worker.
	KindError
	// KindMessageCompleted marks the end of one coherent worker reply.
	KindMessageCompleted
	// KindSessionCompleted marks the worker believing the task is done.
	KindSessionCompleted
)

// String returns the wire-style name of the kind, for debug logging.
func (k Kind) String() string {
	switch k {
	case KindTextPartAdded:
		return "part_added"
	case KindTextPartUpdated:
		return "part_updated"
	case KindToolInvocation:
		return "tool_call"
	case KindToolResult:
		return "tool_result"
	case KindReasoning:
		return "thinking"
	case KindSystemNotice:
		return "progress"
	case KindError:
		return "error"
	case KindMessageCompleted:
		return "message_completed"
	case KindSessionCompleted:
		return "session_completed"
	default:
		return "unknown"
	}
}

// Event is a single typed worker event.
type Event struct {
	Kind Kind

	// Text holds the fragment body, delta, notice, or error message
	// depending on Kind.
	Text string

	// Tool and Params are set for KindToolInvocation.
	Tool   string
	Params map[string]any
}

// TextPartAdded creates a KindTextPartAdded event.
func TextPartAdded(body string) Event { return Event{Kind: KindTextPartAdded, Text: body} }

// TextPartUpdated creates a KindTextPartUpdated event.
func TextPartUpdated(delta string) Event { return Event{Kind: KindTextPartUpdated, Text: delta} }

// ToolInvocation creates a KindToolInvocation event.
func ToolInvocation(name string, params map[string]any) Event {
	return Event{Kind: KindToolInvocation, Tool: name, Params: params}
}

// ToolResult creates a KindToolResult event.
func ToolResult() Event { return Event{Kind: KindToolResult} }

// Reasoning creates a KindReasoning event.
func Reasoning(content string) Event { return Event{Kind: KindReasoning, Text: content} }

// SystemNotice creates a KindSystemNotice event.
func SystemNotice(message string) Event { return Event{Kind: KindSystemNotice, Text: message} }

// ErrorNotice creates a KindError event.
func ErrorNotice(message string) Event { return Event{Kind: KindError, Text: message} }

// MessageCompleted creates a KindMessageCompleted event.
func MessageCompleted() Event { return Event{Kind: KindMessageCompleted} }

// SessionCompleted creates a KindSessionCompleted event.
func SessionCompleted() Event { return Event{Kind: KindSessionCompleted} }

// Decode parses one SSE data payload into a typed Event. The payload is the
// JSON document following the "data:" prefix. Variants outside the known set
// return a KindUnknown event rather than an error.
func Decode(data []byte) Event {
	switch gjson.GetBytes(data, "type").String() {
	case "part_added":
		part := gjson.GetBytes(data, "part")
		if part.Get("type").String() == "text" {
			return TextPartAdded(part.Get("content").String())
		}
		return Event{Kind: KindUnknown}
	case "part_updated":
		return TextPartUpdated(gjson.GetBytes(data, "delta").String())
	case "tool_call":
		name := gjson.GetBytes(data, "name").String()
		params, _ := gjson.GetBytes(data, "params").Value().(map[string]any)
		return ToolInvocation(name, params)
	case "tool_result":
		return ToolResult()
	case "thinking":
		return Reasoning(gjson.GetBytes(data, "content").String())
	case "progress":
		return SystemNotice(gjson.GetBytes(data, "message").String())
	case "error":
		return ErrorNotice(gjson.GetBytes(data, "error").String())
	case "message_completed":
		return MessageCompleted()
	case "session_completed":
		return SessionCompleted()
	default:
		return Event{Kind: KindUnknown}
	}
}
