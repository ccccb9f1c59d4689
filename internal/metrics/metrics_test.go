package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/approval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/engine"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/verify"
)

func TestHookRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := New(reg)
	ctx := context.Background()
	st := &engine.TaskState{}

	var hook engine.Hook = h
	hook.OnNodeEnd(ctx, engine.NodeAgent, st, 2*time.Second, nil)
	hook.OnNodeEnd(ctx, engine.NodeTools, st, time.Second, errors.New("boom"))
	hook.OnAfterModel(ctx, engine.NodeAgent, st, message.Usage{Prompt: 100, Completion: 20, Total: 120}, time.Second, nil)
	hook.OnAfterModel(ctx, engine.NodeAgent, st, message.Usage{}, time.Second, errors.New("429"))
	hook.OnToolResult(ctx, st, message.ToolResult{ToolName: "read_file", Duration: time.Millisecond})
	hook.OnToolResult(ctx, st, message.ToolResult{ToolName: "read_file", Error: "missing"})
	hook.OnToolRetry(ctx, message.ToolCall{Name: "grep"}, 1, time.Second, errors.New("timeout"))
	hook.OnApproval(ctx, st, approval.Decision{Status: approval.StatusApproved, Source: approval.SourceAuto})
	hook.OnVerification(ctx, st, verify.Report{AllPassed: false})
	hook.OnCompaction(ctx, st, 40, 25, 1000)
	hook.OnCompaction(ctx, st, 10, 10, 100)
	hook.OnDone(ctx, st, engine.ReportSuccess)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.ModelCalls.WithLabelValues(engine.NodeAgent, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.ModelCalls.WithLabelValues(engine.NodeAgent, "error")))
	assert.Equal(t, 100.0, testutil.ToFloat64(h.Tokens.WithLabelValues("prompt")))
	assert.Equal(t, 20.0, testutil.ToFloat64(h.Tokens.WithLabelValues("completion")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.ToolCalls.WithLabelValues("read_file", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.ToolCalls.WithLabelValues("read_file", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.ToolRetries.WithLabelValues("grep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Approvals.WithLabelValues("approved", approval.SourceAuto)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Verifications.WithLabelValues("failed")))
	assert.Equal(t, 15.0, testutil.ToFloat64(h.CompactedMessages))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Runs.WithLabelValues("success")))
	assert.Equal(t, 2, testutil.CollectAndCount(h.NodeDuration))
}

func TestNewRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) }, "duplicate registration")
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := New(reg)
	h.OnDone(context.Background(), nil, engine.ReportMaxIterations)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `sepilot_engine_runs_total{kind="max_iterations"} 1`))
}
