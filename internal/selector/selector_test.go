package selector

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
)

func call(id, name string, args map[string]any) message.ToolCall {
	return message.ToolCall{ID: id, Name: name, Args: args}
}

func TestRecordAndStats(t *testing.T) {
	s := New()
	s.Record("read_file", true, 10*time.Millisecond, "")
	s.Record("read_file", false, 30*time.Millisecond, "no such file")
	s.RecordResult(message.ToolResult{ToolName: "grep", Result: "x", Duration: time.Millisecond})

	st, ok := s.Stats("read_file")
	require.True(t, ok)
	assert.Equal(t, 2, st.Calls)
	assert.Equal(t, 1, st.Successes)
	assert.Equal(t, 1, st.Failures)
	assert.Equal(t, "no such file", st.LastError)
	assert.Equal(t, 20*time.Millisecond, st.AvgDuration())
	assert.InDelta(t, 0.5, st.SuccessRate(), 0.001)

	_, ok = s.Stats("missing")
	assert.False(t, ok)
	assert.Len(t, s.All(), 2)
	assert.Len(t, s.Summary(), 2)
}

func TestRecordConcurrent(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Record("run_command", true, time.Millisecond, "")
		}()
	}
	wg.Wait()
	st, _ := s.Stats("run_command")
	assert.Equal(t, 50, st.Calls)
}

func TestDetectRedundantCalls(t *testing.T) {
	tests := []struct {
		name  string
		calls []message.ToolCall
		want  []RedundancyKind
	}{
		{
			name: "exact duplicate",
			calls: []message.ToolCall{
				call("1", "read_file", map[string]any{"path": "a.go"}),
				call("2", "read_file", map[string]any{"path": "a.go"}),
			},
			want: []RedundancyKind{KindDuplicate},
		},
		{
			name: "range already covered",
			calls: []message.ToolCall{
				call("1", "read_file", map[string]any{"path": "a.go"}),
				call("2", "read_file", map[string]any{"path": "a.go", "start_line": float64(10)}),
			},
			want: []RedundancyKind{KindSubset},
		},
		{
			name: "whole file after range",
			calls: []message.ToolCall{
				call("1", "read_file", map[string]any{"path": "a.go", "start_line": float64(10)}),
				call("2", "read_file", map[string]any{"path": "a.go"}),
			},
			want: []RedundancyKind{KindSuperset},
		},
		{
			name: "different paths",
			calls: []message.ToolCall{
				call("1", "read_file", map[string]any{"path": "a.go"}),
				call("2", "read_file", map[string]any{"path": "b.go"}),
			},
		},
		{
			name: "writes are never subsets",
			calls: []message.ToolCall{
				call("1", "write_file", map[string]any{"path": "a.go"}),
				call("2", "write_file", map[string]any{"path": "a.go", "content": "x"}),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectRedundantCalls(tt.calls)
			require.Len(t, got, len(tt.want))
			for i, r := range got {
				assert.Equal(t, tt.want[i], r.Kind)
				assert.Equal(t, 1, r.Index)
				assert.Equal(t, "2", r.CallID)
				assert.NotEmpty(t, r.Suggestion)
			}
		})
	}
}

func TestSuggestOptimization(t *testing.T) {
	calls := []message.ToolCall{
		call("1", "read_file", map[string]any{"path": "a"}),
		call("2", "read_file", map[string]any{"path": "b"}),
		call("3", "read_file", map[string]any{"path": "c"}),
		call("4", "grep", map[string]any{"pattern": "x"}),
		call("5", "grep", map[string]any{"pattern": "y"}),
		call("6", "list_files", map[string]any{"path": "src"}),
	}
	hints := SuggestOptimization(calls)
	require.Len(t, hints, 2)
	assert.Contains(t, hints[0], "3 file reads")
	assert.Contains(t, hints[1], "2 searches")

	assert.Empty(t, SuggestOptimization(calls[:2]))
}
