package engine

import (
	"context"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/prompts"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/triage"
)

func (e *Engine) triageNode(ctx context.Context, r *run) error {
	res, err := e.d.Classifier.Classify(ctx, r.st.LatestUserText())
	if err != nil {
		if isAbort(ctx, err) {
			return err
		}
		res = triage.Result{Decision: triage.Graph, Reason: "classification failed: " + err.Error()}
	}
	r.st.TriageDecision, r.st.TriageReason = res.Decision, res.Reason
	r.emit(EventNode, NodeTriage, TriageData{Decision: res.Decision, Reason: res.Reason})
	return nil
}

// directResponseNode answers in a single tool-less call and ends the turn.
func (e *Engine) directResponseNode(ctx context.Context, r *run) error {
	system := []message.Message{message.System(prompts.DefaultRegistry().Content(prompts.DirectResponse))}
	msgs := e.compact(ctx, r, transcript(r.st.Messages), system)

	reply, err := e.streamModel(ctx, r, NodeDirectResponse, msgs, nil, e.chatOptions(false))
	if err != nil {
		if isAbort(ctx, err) {
			return err
		}
		e.failAgent(r, NodeDirectResponse, err)
		e.d.Hooks.OnDone(ctx, r.st, ReportAgentError)
		r.st.Done = true
		return nil
	}
	r.st.Append(message.Assistant(reply.Text, nil))
	r.st.Done = true
	r.emit(EventNode, NodeDirectResponse, DirectResponseData{Content: reply.Text})
	e.d.Hooks.OnDone(ctx, r.st, ReportSuccess)
	return nil
}

// compact fits history behind the mandatory system blocks within the
// configured token budget.
func (e *Engine) compact(ctx context.Context, r *run, history, system []message.Message) []message.Message {
	out := e.d.Compactor.Compact(history, system, e.cfg.ContextTokens)
	if before := len(history) + len(system); len(out) != before {
		e.d.Hooks.OnCompaction(ctx, r.st, before, len(out), e.d.Compactor.Estimate(out))
	}
	return out
}

// failAgent records a model-call failure in the transcript.
func (e *Engine) failAgent(r *run, node string, err error) {
	r.st.AgentError = err.Error()
	r.st.Append(message.Assistant("The model call failed: "+err.Error(), nil))
	r.emit(EventNode, node, AgentData{Error: r.st.AgentError})
}
