package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/approval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/compactor"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/llm"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/verify"
)

// LoggerHook writes run progress to a structured logger.
type LoggerHook struct{ L *slog.Logger }

func (h LoggerHook) OnNodeStart(ctx context.Context, node string, st *TaskState) {
	h.L.DebugContext(ctx, "node start", "conversation", st.ConversationID, "node", node, "iteration", st.IterationCount)
}
func (h LoggerHook) OnNodeEnd(ctx context.Context, node string, st *TaskState, d time.Duration, err error) {
	if err != nil {
		h.L.WarnContext(ctx, "node failed", "conversation", st.ConversationID, "node", node, "duration", d, "error", err)
		return
	}
	h.L.DebugContext(ctx, "node done", "conversation", st.ConversationID, "node", node, "duration", d)
}
func (h LoggerHook) OnBeforeModel(ctx context.Context, node string, st *TaskState, msgs []message.Message, tools []llm.ToolSchema) {
	h.L.InfoContext(ctx, "model call",
		"node", node,
		"messages", len(msgs),
		"tools", len(tools),
		"est_tokens", compactor.EstimateTokens(msgs),
		"cumulative_tokens", st.Usage.Total)
}
func (h LoggerHook) OnAfterModel(ctx context.Context, node string, st *TaskState, usage message.Usage, d time.Duration, err error) {
	if err != nil {
		h.L.WarnContext(ctx, "model call failed", "node", node, "duration", d, "error", err)
		return
	}
	h.L.InfoContext(ctx, "model reply", "node", node, "duration", d,
		"prompt_tokens", usage.Prompt, "completion_tokens", usage.Completion, "cumulative_tokens", st.Usage.Total)
}
func (h LoggerHook) OnStreamDelta(context.Context, *TaskState, string) {}
func (h LoggerHook) OnCompaction(ctx context.Context, st *TaskState, before, after, tokens int) {
	h.L.InfoContext(ctx, "context compacted", "before", before, "after", after, "est_tokens", tokens)
}
func (h LoggerHook) OnToolCall(ctx context.Context, _ *TaskState, c message.ToolCall) {
	h.L.InfoContext(ctx, "tool call", "tool", c.Name, "id", c.ID, "args", preview(c.ArgsJSON(), 200))
}
func (h LoggerHook) OnToolResult(ctx context.Context, _ *TaskState, r message.ToolResult) {
	if r.Failed() {
		h.L.WarnContext(ctx, "tool failed", "tool", r.ToolName, "id", r.ToolCallID, "attempts", r.Attempts, "error", r.Error)
		return
	}
	h.L.InfoContext(ctx, "tool done", "tool", r.ToolName, "id", r.ToolCallID, "duration", r.Duration, "result", preview(r.Result, 100))
}
func (h LoggerHook) OnToolRetry(ctx context.Context, c message.ToolCall, attempt int, delay time.Duration, err error) {
	h.L.WarnContext(ctx, "tool retry", "tool", c.Name, "attempt", attempt, "delay", delay, "error", err)
}
func (h LoggerHook) OnApproval(ctx context.Context, st *TaskState, d approval.Decision) {
	h.L.InfoContext(ctx, "approval", "conversation", st.ConversationID, "status", d.Status, "risk", d.Risk, "source", d.Source, "reason", d.Reason)
}
func (h LoggerHook) OnVerification(ctx context.Context, _ *TaskState, r verify.Report) {
	h.L.InfoContext(ctx, "verification", "checks", len(r.Checks), "passed", r.AllPassed)
}
func (h LoggerHook) OnDone(ctx context.Context, st *TaskState, kind ReportKind) {
	h.L.InfoContext(ctx, "done", "conversation", st.ConversationID, "result", kind,
		"iterations", st.IterationCount, "files_changed", st.FileChangesCount, "tokens", st.Usage.Total)
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
