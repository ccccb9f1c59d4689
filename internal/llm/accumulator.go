package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
)

// Accumulator assembles streamed deltas into text and complete tool calls.
type Accumulator struct {
	text  strings.Builder
	calls map[int]*pendingCall
	usage message.Usage
}

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{calls: make(map[int]*pendingCall)}
}

// Add folds one event into the accumulator.
func (a *Accumulator) Add(ev StreamEvent) {
	switch ev.Type {
	case EventTextDelta:
		a.text.WriteString(ev.Text)
	case EventToolCallDelta:
		d := ev.ToolCall
		pc, ok := a.calls[d.Index]
		if !ok {
			pc = &pendingCall{}
			a.calls[d.Index] = pc
		}
		if d.ID != "" {
			pc.id = d.ID
		}
		if d.Name != "" {
			pc.name = d.Name
		}
		pc.args.WriteString(d.ArgsDelta)
	case EventUsage:
		a.usage = ev.Usage
	}
}

// Text returns the accumulated assistant text.
func (a *Accumulator) Text() string { return a.text.String() }

// Usage returns the last usage record seen.
func (a *Accumulator) Usage() message.Usage { return a.usage }

// ToolCalls returns the assembled calls ordered by stream index. Argument text
// that is not valid JSON is kept verbatim in RawArgs.
func (a *Accumulator) ToolCalls() []message.ToolCall {
	if len(a.calls) == 0 {
		return nil
	}
	idx := make([]int, 0, len(a.calls))
	for i := range a.calls {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	out := make([]message.ToolCall, 0, len(idx))
	for _, i := range idx {
		pc := a.calls[i]
		if pc.name == "" {
			continue
		}
		call := message.ToolCall{ID: pc.id, Name: pc.name}
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d", i)
		}
		raw := strings.TrimSpace(pc.args.String())
		if raw == "" {
			call.Args = map[string]any{}
		} else {
			var args map[string]any
			if err := json.Unmarshal([]byte(raw), &args); err == nil {
				call.Args = args
			} else {
				call.RawArgs = raw
			}
		}
		out = append(out, call)
	}
	return out
}
