package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeTextPart(t *testing.T) {
	ev := Decode([]byte(`{"type":"part_added","part":{"type":"text","content":"hello\nworld"}}`))
	require.Equal(t, KindTextPartAdded, ev.Kind)
	require.Equal(t, "hello\nworld", ev.Text)
}

func TestDecodeNonTextPartIsUnknown(t *testing.T) {
	ev := Decode([]byte(`{"type":"part_added","part":{"type":"image","content":"..."}}`))
	require.Equal(t, KindUnknown, ev.Kind)
}

func TestDecodeDelta(t *testing.T) {
	ev := Decode([]byte(`{"type":"part_updated","delta":"more"}`))
	require.Equal(t, KindTextPartUpdated, ev.Kind)
	require.Equal(t, "more", ev.Text)
}

func TestDecodeToolCall(t *testing.T) {
	ev := Decode([]byte(`{"type":"tool_call","name":"read_file","params":{"path":"x","n":3}}`))
	require.Equal(t, KindToolInvocation, ev.Kind)
	require.Equal(t, "read_file", ev.Tool)
	require.Equal(t, "x", ev.Params["path"])
	require.EqualValues(t, 3, ev.Params["n"])
}

func TestDecodeToolCallWithoutParams(t *testing.T) {
	ev := Decode([]byte(`{"type":"tool_call","name":"ls"}`))
	require.Equal(t, KindToolInvocation, ev.Kind)
	require.Nil(t, ev.Params)
}

func TestDecodeLifecycleEvents(t *testing.T) {
	cases := map[string]Kind{
		`{"type":"tool_result","result":{"ok":true}}`:   KindToolResult,
		`{"type":"thinking","content":"hmm"}`:           KindReasoning,
		`{"type":"progress","message":"indexing"}`:      KindSystemNotice,
		`{"type":"error","error":"rate limited"}`:       KindError,
		`{"type":"message_completed","message_id":"m"}`: KindMessageCompleted,
		`{"type":"session_completed","session_id":"s"}`: KindSessionCompleted,
	}
	for payload, want := range cases {
		require.Equal(t, want, Decode([]byte(payload)).Kind, "payload: %s", payload)
	}
}

func TestDecodeUnknownVariant(t *testing.T) {
	require.Equal(t, KindUnknown, Decode([]byte(`{"type":"pty_updated","data":"x"}`)).Kind)
	require.Equal(t, KindUnknown, Decode([]byte(`not json`)).Kind)
	require.Equal(t, KindUnknown, Decode([]byte(`{}`)).Kind)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "session_completed", KindSessionCompleted.String())
	require.Equal(t, "unknown", Kind(999).String())
}
