package engine

import (
	"context"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/approval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
)

// approvalNode gates the latest batch. A pending batch suspends the run
// without touching the transcript: the assistant message that requested the
// calls must stay directly followed by their results.
func (e *Engine) approvalNode(ctx context.Context, r *run) error {
	st := r.st
	d := e.d.Gate.Evaluate(st.ToolCalls, st.LatestUserText(), st.AlwaysApproveTools)
	if d.Always {
		st.AlwaysApproveTools = true
	}
	st.LastApprovalStatus = d.Status
	e.d.Hooks.OnApproval(ctx, st, d)

	switch d.Status {
	case approval.StatusPending:
		st.Suspended = true
		r.emit(EventNode, NodeApproval, ApprovalData{Status: d.Status, Risk: d.Risk, Reason: d.Reason})
		r.emit(EventApprovalRequest, NodeApproval, ApprovalRequest{Calls: st.ToolCalls, Risk: d.Risk, Reason: d.Reason, Matches: d.Matches})
		return nil
	case approval.StatusDenied:
		st.ApprovalHistory = append(st.ApprovalHistory, d.Record(st.ToolCalls))
		st.ToolResults = skipCalls(st, "blocked by safety policy: "+d.Reason)
		st.Append(message.Assistant("I did not run these tools: "+d.Reason+". I need a safer way to do this.", nil))
	default:
		st.ApprovalHistory = append(st.ApprovalHistory, d.Record(st.ToolCalls))
	}
	r.emit(EventNode, NodeApproval, ApprovalData{Status: d.Status, Risk: d.Risk, Reason: d.Reason})
	return nil
}
