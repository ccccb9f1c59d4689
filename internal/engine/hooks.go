package engine

import (
	"context"
	"time"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/approval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/llm"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/verify"
)

// Hook observes a run. Implementations must not mutate the state.
type Hook interface {
	OnNodeStart(ctx context.Context, node string, st *TaskState)
	OnNodeEnd(ctx context.Context, node string, st *TaskState, d time.Duration, err error)
	OnBeforeModel(ctx context.Context, node string, st *TaskState, msgs []message.Message, tools []llm.ToolSchema)
	OnAfterModel(ctx context.Context, node string, st *TaskState, usage message.Usage, d time.Duration, err error)
	OnStreamDelta(ctx context.Context, st *TaskState, delta string)
	OnCompaction(ctx context.Context, st *TaskState, before, after, tokens int)
	OnToolCall(ctx context.Context, st *TaskState, call message.ToolCall)
	OnToolResult(ctx context.Context, st *TaskState, res message.ToolResult)
	OnToolRetry(ctx context.Context, call message.ToolCall, attempt int, delay time.Duration, err error)
	OnApproval(ctx context.Context, st *TaskState, d approval.Decision)
	OnVerification(ctx context.Context, st *TaskState, r verify.Report)
	OnDone(ctx context.Context, st *TaskState, kind ReportKind)
}

// NopHook lets you implement any hook you need.
type NopHook struct{}

func (NopHook) OnNodeStart(context.Context, string, *TaskState)                                        {}
func (NopHook) OnNodeEnd(context.Context, string, *TaskState, time.Duration, error)                    {}
func (NopHook) OnBeforeModel(context.Context, string, *TaskState, []message.Message, []llm.ToolSchema) {}
func (NopHook) OnAfterModel(context.Context, string, *TaskState, message.Usage, time.Duration, error)  {}
func (NopHook) OnStreamDelta(context.Context, *TaskState, string)                                      {}
func (NopHook) OnCompaction(context.Context, *TaskState, int, int, int)                                {}
func (NopHook) OnToolCall(context.Context, *TaskState, message.ToolCall)                               {}
func (NopHook) OnToolResult(context.Context, *TaskState, message.ToolResult)                           {}
func (NopHook) OnToolRetry(context.Context, message.ToolCall, int, time.Duration, error)               {}
func (NopHook) OnApproval(context.Context, *TaskState, approval.Decision)                              {}
func (NopHook) OnVerification(context.Context, *TaskState, verify.Report)                              {}
func (NopHook) OnDone(context.Context, *TaskState, ReportKind)                                         {}

// Hooks fans every callback out to each hook in order.
type Hooks []Hook

func (hs Hooks) OnNodeStart(ctx context.Context, node string, st *TaskState) {
	for _, h := range hs {
		h.OnNodeStart(ctx, node, st)
	}
}
func (hs Hooks) OnNodeEnd(ctx context.Context, node string, st *TaskState, d time.Duration, err error) {
	for _, h := range hs {
		h.OnNodeEnd(ctx, node, st, d, err)
	}
}
func (hs Hooks) OnBeforeModel(ctx context.Context, node string, st *TaskState, msgs []message.Message, tools []llm.ToolSchema) {
	for _, h := range hs {
		h.OnBeforeModel(ctx, node, st, msgs, tools)
	}
}
func (hs Hooks) OnAfterModel(ctx context.Context, node string, st *TaskState, usage message.Usage, d time.Duration, err error) {
	for _, h := range hs {
		h.OnAfterModel(ctx, node, st, usage, d, err)
	}
}
func (hs Hooks) OnStreamDelta(ctx context.Context, st *TaskState, delta string) {
	for _, h := range hs {
		h.OnStreamDelta(ctx, st, delta)
	}
}
func (hs Hooks) OnCompaction(ctx context.Context, st *TaskState, before, after, tokens int) {
	for _, h := range hs {
		h.OnCompaction(ctx, st, before, after, tokens)
	}
}
func (hs Hooks) OnToolCall(ctx context.Context, st *TaskState, call message.ToolCall) {
	for _, h := range hs {
		h.OnToolCall(ctx, st, call)
	}
}
func (hs Hooks) OnToolResult(ctx context.Context, st *TaskState, res message.ToolResult) {
	for _, h := range hs {
		h.OnToolResult(ctx, st, res)
	}
}
func (hs Hooks) OnToolRetry(ctx context.Context, call message.ToolCall, attempt int, delay time.Duration, err error) {
	for _, h := range hs {
		h.OnToolRetry(ctx, call, attempt, delay, err)
	}
}
func (hs Hooks) OnApproval(ctx context.Context, st *TaskState, d approval.Decision) {
	for _, h := range hs {
		h.OnApproval(ctx, st, d)
	}
}
func (hs Hooks) OnVerification(ctx context.Context, st *TaskState, r verify.Report) {
	for _, h := range hs {
		h.OnVerification(ctx, st, r)
	}
}
func (hs Hooks) OnDone(ctx context.Context, st *TaskState, kind ReportKind) {
	for _, h := range hs {
		h.OnDone(ctx, st, kind)
	}
}
