package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorAssemblesInterleavedCalls(t *testing.T) {
	acc := NewAccumulator()
	events := []StreamEvent{
		{Type: EventTextDelta, Text: "Let me "},
		{Type: EventToolCallDelta, ToolCall: ToolCallDelta{Index: 1, ID: "b", Name: "list_files"}},
		{Type: EventToolCallDelta, ToolCall: ToolCallDelta{Index: 0, ID: "a", Name: "read_file", ArgsDelta: `{"pa`}},
		{Type: EventTextDelta, Text: "look."},
		{Type: EventToolCallDelta, ToolCall: ToolCallDelta{Index: 1, ArgsDelta: `{"path":"src"}`}},
		{Type: EventToolCallDelta, ToolCall: ToolCallDelta{Index: 0, ArgsDelta: `th":"main.go"}`}},
	}
	for _, ev := range events {
		acc.Add(ev)
	}

	assert.Equal(t, "Let me look.", acc.Text())
	calls := acc.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].ID)
	assert.Equal(t, "main.go", calls[0].Args["path"])
	assert.Equal(t, "b", calls[1].ID)
	assert.Equal(t, "src", calls[1].Args["path"])
}

func TestAccumulatorKeepsMalformedArgsRaw(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(StreamEvent{Type: EventToolCallDelta, ToolCall: ToolCallDelta{Index: 0, Name: "run_command", ArgsDelta: `{"command": "ls`}})

	calls := acc.ToolCalls()
	require.Len(t, calls, 1)
	assert.Nil(t, calls[0].Args)
	assert.Equal(t, `{"command": "ls`, calls[0].RawArgs)
	assert.Equal(t, "call_0", calls[0].ID)
}

func TestAccumulatorEmptyArgs(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(StreamEvent{Type: EventToolCallDelta, ToolCall: ToolCallDelta{Index: 0, ID: "x", Name: "list_files"}})
	calls := acc.ToolCalls()
	require.Len(t, calls, 1)
	assert.NotNil(t, calls[0].Args)
	assert.Empty(t, calls[0].Args)
}
