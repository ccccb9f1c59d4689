// Package metrics exports engine activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/approval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/engine"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/verify"
)

const namespace = "sepilot"

// Hook is an engine.Hook that records node, model, tool, approval and
// verification activity.
type Hook struct {
	engine.NopHook

	// NodeDuration measures node execution time.
	// Labels: node, status (ok, error)
	NodeDuration *prometheus.HistogramVec

	// ModelCalls counts model requests.
	// Labels: node, status (ok, error)
	ModelCalls *prometheus.CounterVec

	// ModelDuration measures model request latency.
	// Labels: node
	ModelDuration *prometheus.HistogramVec

	// Tokens counts token usage reported by the provider.
	// Labels: direction (prompt, completion)
	Tokens *prometheus.CounterVec

	// ToolCalls counts finished tool invocations.
	// Labels: tool, status (success, error)
	ToolCalls *prometheus.CounterVec

	// ToolDuration measures tool execution time including retries.
	// Labels: tool
	ToolDuration *prometheus.HistogramVec

	// ToolRetries counts retry attempts.
	// Labels: tool
	ToolRetries *prometheus.CounterVec

	// Approvals counts approval decisions.
	// Labels: status (approved, denied, pending), source
	Approvals *prometheus.CounterVec

	// Verifications counts verification passes.
	// Labels: result (passed, failed)
	Verifications *prometheus.CounterVec

	// CompactedMessages counts messages dropped by context compaction.
	CompactedMessages prometheus.Counter

	// Runs counts finished turns.
	// Labels: kind (success, agent_error, tool_error, max_iterations)
	Runs *prometheus.CounterVec
}

// New registers the metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Hook {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Hook{
		NodeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "node_duration_seconds",
			Help:      "Time spent in each engine node",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"node", "status"}),
		ModelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "calls_total",
			Help:      "Model requests by node and status",
		}, []string{"node", "status"}),
		ModelDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "duration_seconds",
			Help:      "Model request latency",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"node"}),
		Tokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "tokens_total",
			Help:      "Tokens used by direction",
		}, []string{"direction"}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Tool invocations by tool and status",
		}, []string{"tool", "status"}),
		ToolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tools",
			Name:      "duration_seconds",
			Help:      "Tool execution time including retries",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"tool"}),
		ToolRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tools",
			Name:      "retries_total",
			Help:      "Tool retry attempts",
		}, []string{"tool"}),
		Approvals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "approval",
			Name:      "decisions_total",
			Help:      "Approval decisions by status and source",
		}, []string{"status", "source"}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "runs_total",
			Help:      "Verification passes by result",
		}, []string{"result"}),
		CompactedMessages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "context",
			Name:      "compacted_messages_total",
			Help:      "Messages dropped by context compaction",
		}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Finished turns by report kind",
		}, []string{"kind"}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (h *Hook) OnNodeEnd(_ context.Context, node string, _ *engine.TaskState, d time.Duration, err error) {
	h.NodeDuration.WithLabelValues(node, status(err)).Observe(d.Seconds())
}

func (h *Hook) OnAfterModel(_ context.Context, node string, _ *engine.TaskState, usage message.Usage, d time.Duration, err error) {
	h.ModelCalls.WithLabelValues(node, status(err)).Inc()
	h.ModelDuration.WithLabelValues(node).Observe(d.Seconds())
	if usage.Prompt > 0 {
		h.Tokens.WithLabelValues("prompt").Add(float64(usage.Prompt))
	}
	if usage.Completion > 0 {
		h.Tokens.WithLabelValues("completion").Add(float64(usage.Completion))
	}
}

func (h *Hook) OnToolResult(_ context.Context, _ *engine.TaskState, res message.ToolResult) {
	s := "success"
	if res.Failed() {
		s = "error"
	}
	h.ToolCalls.WithLabelValues(res.ToolName, s).Inc()
	h.ToolDuration.WithLabelValues(res.ToolName).Observe(res.Duration.Seconds())
}

func (h *Hook) OnToolRetry(_ context.Context, call message.ToolCall, _ int, _ time.Duration, _ error) {
	h.ToolRetries.WithLabelValues(call.Name).Inc()
}

func (h *Hook) OnApproval(_ context.Context, _ *engine.TaskState, d approval.Decision) {
	h.Approvals.WithLabelValues(string(d.Status), d.Source).Inc()
}

func (h *Hook) OnVerification(_ context.Context, _ *engine.TaskState, r verify.Report) {
	result := "passed"
	if !r.AllPassed {
		result = "failed"
	}
	h.Verifications.WithLabelValues(result).Inc()
}

func (h *Hook) OnCompaction(_ context.Context, _ *engine.TaskState, before, after, _ int) {
	if before > after {
		h.CompactedMessages.Add(float64(before - after))
	}
}

func (h *Hook) OnDone(_ context.Context, _ *engine.TaskState, kind engine.ReportKind) {
	h.Runs.WithLabelValues(string(kind)).Inc()
}

// Handler serves the metrics gathered by g, or the default gatherer when g
// is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
