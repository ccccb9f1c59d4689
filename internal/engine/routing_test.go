package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/approval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/triage"
)

func TestRoutes(t *testing.T) {
	tests := []struct {
		name  string
		route func(*TaskState) string
		st    TaskState
		want  string
	}{
		{"triage direct", routeAfterTriage, TaskState{TriageDecision: triage.DirectResponse}, NodeDirectResponse},
		{"triage graph", routeAfterTriage, TaskState{TriageDecision: triage.Graph}, NodePlanner},
		{"planner", routeAfterPlanner, TaskState{}, NodeIterationGuard},
		{"guard continues", routeAfterGuard, TaskState{}, NodeAgent},
		{"guard stops", routeAfterGuard, TaskState{ForceTermination: true}, NodeReporter},
		{"agent error", routeAfterAgent, TaskState{AgentError: "boom", ToolCalls: []message.ToolCall{{ID: "a"}}}, NodeReporter},
		{"agent tools", routeAfterAgent, TaskState{ToolCalls: []message.ToolCall{{ID: "a"}}}, NodeApproval},
		{"agent text", routeAfterAgent, TaskState{}, NodeVerifier},
		{"approved", routeAfterApproval, TaskState{LastApprovalStatus: approval.StatusApproved}, NodeTools},
		{"pending", routeAfterApproval, TaskState{LastApprovalStatus: approval.StatusPending}, nodeEnd},
		{"denied", routeAfterApproval, TaskState{LastApprovalStatus: approval.StatusDenied}, NodeVerifier},
		{"tools", routeAfterTools, TaskState{}, NodeVerifier},
		{"verifier loops", routeAfterVerifier, TaskState{NeedsAdditionalIteration: true}, NodeIterationGuard},
		{"verifier done", routeAfterVerifier, TaskState{}, NodeReporter},
		{"end", routeToEnd, TaskState{}, nodeEnd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.st
			before := st
			assert.Equal(t, tt.want, tt.route(&st))
			assert.Equal(t, before, st, "routes must not modify state")
		})
	}
}

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		kind  PlanKind
		steps []string
	}{
		{"read only", "[READ-ONLY]\n1. Open main.go\n2) Explain the loop", PlanReadOnly, []string{"Open main.go", "Explain the loop"}},
		{"modification", "[MODIFICATION]\n  1: Edit a.go\nnot a step\n2. Run tests", PlanModification, []string{"Edit a.go", "Run tests"}},
		{"no marker", "1. Do it", PlanUnknown, []string{"Do it"}},
		{"empty", "", PlanUnknown, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, steps := parsePlan(tt.text)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.steps, steps)
		})
	}
}

func TestExtractFileRefs(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"fix the bug in src/app.ts", []string{"src/app.ts"}},
		{"look at @internal/engine/engine.go please", []string{"internal/engine/engine.go"}},
		{"update ./README.md and 'config.yaml'", []string{"README.md", "config.yaml"}},
		{"open \"Makefile.am\"", []string{"Makefile.am"}},
		{"hello world", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, extractFileRefs(tt.text))
		})
	}
}

func TestConstrainToSelection(t *testing.T) {
	sel := &Selection{Path: "a.go", StartLine: 3, EndLine: 9}

	got := constrainToSelection([]string{"Read a.go", "Rename x to y", "Update callers", "Run tests", "Review"}, sel)
	assert.Equal(t, []string{"Rename x to y", "Update callers", "Run tests"}, got)

	got = constrainToSelection([]string{"Read a.go", "Rename x"}, sel)
	assert.Len(t, got, 2)
	assert.Contains(t, got[0], "lines 3-9 of a.go")
}

func TestAnyRequiredTouched(t *testing.T) {
	tests := []struct {
		name     string
		required []string
		modified []string
		want     bool
	}{
		{"suffix", []string{"app.ts"}, []string{"src/app.ts"}, true},
		{"same base", []string{"lib/app.ts"}, []string{"src/app.ts"}, true},
		{"test sibling", []string{"src/app.ts"}, []string{"src/app.test.ts"}, false},
		{"base contains", []string{"app"}, []string{"src/app.go"}, true},
		{"none", []string{"src/app.ts"}, []string{"docs/readme.md"}, false},
		{"nothing modified", []string{"a.go"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, anyRequiredTouched(tt.required, tt.modified))
		})
	}
}

func TestIterationGuardNeverExceedsCeiling(t *testing.T) {
	e := &Engine{}
	st := &TaskState{MaxIterations: 3, NeedsAdditionalIteration: true, LastModified: []string{"a"}, LastToolCount: 2}
	r := &run{turn: &TurnContext{}, st: st, sink: nopSink{}}

	for i := 1; i <= 3; i++ {
		require.NoError(t, e.iterationGuardNode(context.Background(), r))
		assert.Equal(t, i, st.IterationCount)
		assert.False(t, st.ForceTermination)
		assert.False(t, st.NeedsAdditionalIteration)
		assert.Nil(t, st.LastModified)
		assert.Zero(t, st.LastToolCount)
	}
	require.NoError(t, e.iterationGuardNode(context.Background(), r))
	assert.Equal(t, 3, st.IterationCount)
	assert.True(t, st.ForceTermination)
}

func TestReportKindPriority(t *testing.T) {
	failed := []message.ToolResult{{ToolCallID: "a", Error: "x"}}
	assert.Equal(t, ReportAgentError, reportKind(&TaskState{AgentError: "e", ForceTermination: true, ToolResults: failed}))
	assert.Equal(t, ReportMaxIterations, reportKind(&TaskState{ForceTermination: true, ToolResults: failed}))
	assert.Equal(t, ReportToolError, reportKind(&TaskState{ToolResults: failed}))
	assert.Equal(t, ReportSuccess, reportKind(&TaskState{}))
}

func TestFormatReportCapsFileList(t *testing.T) {
	st := &TaskState{IterationCount: 2, MaxIterations: 15, Plan: []string{"a", "b"}, CurrentPlanStep: 1}
	for i := 0; i < 12; i++ {
		st.ModifiedFiles = append(st.ModifiedFiles, string(rune('a'+i))+".go")
	}
	out := formatReport(st, ReportSuccess)
	assert.Contains(t, out, "Files modified: 12, deleted: 0")
	assert.Contains(t, out, "... and 2 more")
	assert.NotContains(t, out, "k.go")
	assert.Contains(t, out, "Iterations: 2/15")
	assert.Contains(t, out, "Plan: 2/2 steps completed")
}

type memWriter struct {
	mu      sync.Mutex
	entries []ActivityEntry
	fail    bool
}

func (w *memWriter) WriteActivity(_ context.Context, e ActivityEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("disk full")
	}
	w.entries = append(w.entries, e)
	return nil
}

func TestAsyncActivityLogFlushesOnClose(t *testing.T) {
	w := &memWriter{}
	log := NewAsyncActivityLog(w, 8, nil)
	for i := 0; i < 3; i++ {
		log.Record(ActivityEntry{ToolName: "read_file", Status: "success", Time: time.Now()})
	}
	require.NoError(t, log.Close(context.Background()))
	assert.Len(t, w.entries, 3)

	log.Record(ActivityEntry{ToolName: "late"})
	assert.Equal(t, int64(1), log.Dropped())
	assert.NoError(t, log.Close(context.Background()), "close is idempotent")
}

func TestAsyncActivityLogSurvivesWriteErrors(t *testing.T) {
	w := &memWriter{fail: true}
	log := NewAsyncActivityLog(w, 0, nil)
	log.Record(ActivityEntry{ToolName: "write_file"})
	require.NoError(t, log.Close(context.Background()))
	assert.Empty(t, w.entries)
}
