package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/approval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/engine"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/stream"
)

// renderer shows engine events and streamed text.
type renderer interface {
	engine.EventSink
	Chunk(c stream.Chunk)
}

// pump forwards a subscription to r until the channel closes.
func pump(ch <-chan stream.Chunk, r renderer) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for c := range ch {
			r.Chunk(c)
		}
	}()
	return done
}

// textRenderer prints model text to out and progress to status.
type textRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	status  io.Writer
	midLine bool
}

func newTextRenderer(out, status io.Writer) *textRenderer {
	return &textRenderer{out: out, status: status}
}

func (t *textRenderer) Chunk(c stream.Chunk) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c.Done {
		t.endLine()
		return
	}
	fmt.Fprint(t.out, c.Text)
	t.midLine = !strings.HasSuffix(c.Text, "\n")
}

func (t *textRenderer) endLine() {
	if t.midLine {
		fmt.Fprintln(t.out)
		t.midLine = false
	}
}

func (t *textRenderer) Emit(ev engine.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endLine()

	switch d := ev.Data.(type) {
	case engine.TriageData:
		fmt.Fprintf(t.status, "· triage: %s (%s)\n", d.Decision, d.Reason)
	case engine.PlanData:
		if d.Skipped || len(d.Steps) == 0 {
			return
		}
		fmt.Fprintf(t.status, "· plan (%s):\n", d.Kind)
		for i, s := range d.Steps {
			fmt.Fprintf(t.status, "    %d. %s\n", i+1, s)
		}
	case engine.GuardData:
		if d.ForceTermination {
			fmt.Fprintf(t.status, "· iteration limit reached (%d)\n", d.MaxIterations)
			return
		}
		fmt.Fprintf(t.status, "· iteration %d/%d\n", d.Iteration, d.MaxIterations)
	case engine.AgentData:
		if d.Error != "" {
			fmt.Fprintf(t.status, "✗ model error: %s\n", d.Error)
		}
		for _, c := range d.ToolCalls {
			fmt.Fprintf(t.status, "→ %s %s\n", c.Name, clip(c.ArgsJSON(), 120))
		}
	case engine.ApprovalRequest:
		fmt.Fprintf(t.status, "! approval needed (%s): %s\n", d.Risk, d.Reason)
		for _, c := range d.Calls {
			fmt.Fprintf(t.status, "    %s %s\n", c.Name, clip(c.ArgsJSON(), 200))
		}
	case engine.ApprovalData:
		if ev.Type == engine.EventNode && d.Status != approval.StatusApproved {
			fmt.Fprintf(t.status, "· approval: %s\n", d.Status)
		}
	case engine.ToolsData:
		for _, r := range d.Results {
			t.result(r)
		}
		if len(d.ModifiedFiles) > 0 {
			fmt.Fprintf(t.status, "· modified: %s\n", strings.Join(d.ModifiedFiles, ", "))
		}
		for _, s := range d.Suggestions {
			fmt.Fprintf(t.status, "· hint: %s\n", s)
		}
	case engine.VerifierData:
		if d.Report != nil {
			fmt.Fprintf(t.status, "· verify: %s\n", d.Report.Summary())
		}
	case engine.ReportData:
		fmt.Fprintf(t.out, "\n%s\n", d.Summary)
	case engine.ErrorData:
		fmt.Fprintf(t.status, "✗ %s\n", d.Message)
	}
}

func (t *textRenderer) result(r message.ToolResult) {
	if r.Failed() {
		fmt.Fprintf(t.status, "✗ %s: %s\n", r.ToolName, clip(r.Error, 200))
		return
	}
	fmt.Fprintf(t.status, "✓ %s (%s)\n", r.ToolName, r.Duration.Round(time.Millisecond))
}

// jsonRenderer writes one JSON object per line.
type jsonRenderer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newJSONRenderer(w io.Writer) *jsonRenderer {
	return &jsonRenderer{enc: json.NewEncoder(w)}
}

type chunkEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text,omitempty"`
	Done           bool   `json:"done,omitempty"`
}

func (j *jsonRenderer) write(v any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(v); err != nil {
		logger.Warn("dropping event", "error", err)
	}
}

func (j *jsonRenderer) Emit(ev engine.Event) { j.write(ev) }

func (j *jsonRenderer) Chunk(c stream.Chunk) {
	j.write(chunkEvent{Type: "chunk", ConversationID: c.ConversationID, Text: c.Text, Done: c.Done})
}

func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
