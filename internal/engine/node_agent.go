package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/llm"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/prompts"
)

// iterationGuardNode stops the loop once the agent has run MaxIterations
// times. The count is checked before it is incremented, so it never exceeds
// the ceiling.
func (e *Engine) iterationGuardNode(_ context.Context, r *run) error {
	st := r.st
	if st.IterationCount >= st.MaxIterations {
		st.ForceTermination = true
	} else {
		st.IterationCount++
		st.NeedsAdditionalIteration = false
		st.LastModified = nil
		st.LastToolCount = 0
	}
	r.emit(EventNode, NodeIterationGuard, GuardData{
		Iteration:        st.IterationCount,
		MaxIterations:    st.MaxIterations,
		ForceTermination: st.ForceTermination,
	})
	return nil
}

func (e *Engine) agentNode(ctx context.Context, r *run) error {
	st := r.st
	system, err := e.systemBlocks(ctx, r)
	if err != nil {
		return err
	}
	history := transcript(st.Messages)
	msgs := e.compact(ctx, r, history, system)
	compacted := len(msgs) != len(history)+len(system)

	var schemas []llm.ToolSchema
	if r.turn.EnableTools {
		schemas, err = e.d.Catalog.Schemas(ctx)
		if err != nil {
			e.logger.WarnContext(ctx, "external tools unavailable, using built-ins only", "error", err)
		}
	}

	reply, err := e.streamModel(ctx, r, NodeAgent, msgs, schemas, e.chatOptions(len(schemas) > 0))
	if err != nil {
		if isAbort(ctx, err) {
			return err
		}
		st.ToolCalls, st.ToolResults = nil, nil
		e.failAgent(r, NodeAgent, err)
		return nil
	}

	st.Append(message.Assistant(reply.Text, reply.ToolCalls))
	st.ToolCalls = reply.ToolCalls
	st.ToolResults = nil
	r.emit(EventNode, NodeAgent, AgentData{
		Content:   reply.Text,
		ToolCalls: reply.ToolCalls,
		Usage:     reply.Usage,
		Compacted: compacted,
	})
	return nil
}

// systemBlocks builds the mandatory messages that precede the transcript.
func (e *Engine) systemBlocks(ctx context.Context, r *run) ([]message.Message, error) {
	st, turn := r.st, r.turn
	prompt, err := prompts.NewBuilder(nil).
		AddBlock(prompts.Identity).
		AddBlock(prompts.ToolUsage).
		AddBlock(prompts.Workflow).
		AddBlock(prompts.Safety).
		SetVariable("workdir", turn.WorkingDirectory).
		Build()
	if err != nil {
		return nil, err
	}
	out := []message.Message{message.System(prompt)}

	userText := st.LatestUserText()
	if turn.EnableRAG && e.d.Retriever != nil && userText != "" {
		rag, err := e.d.Retriever.RetrieveContext(ctx, userText)
		switch {
		case err != nil:
			if isAbort(ctx, err) {
				return nil, err
			}
			e.logger.WarnContext(ctx, "retrieval failed", "error", err)
		case rag != "":
			out = append(out, message.System(rag))
		}
	}
	if e.d.Skills != nil && userText != "" {
		skills, err := e.d.Skills.InjectSkills(ctx, userText, st.ConversationID)
		if err != nil {
			e.logger.WarnContext(ctx, "skill injection failed", "error", err)
		}
		out = append(out, skills...)
	}
	if sel := turn.ActiveSelection; sel != nil {
		out = append(out, message.System(selectionBlock(sel)))
	}
	if block := planStepBlock(st); block != "" {
		out = append(out, message.System(block))
	}
	return out, nil
}

func selectionBlock(sel *Selection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[SELECTION]\nThe user selected lines %d-%d of %s. Edit this code in place; do not re-read the file unless the edit fails.\n", sel.StartLine, sel.EndLine, sel.Path)
	if sel.Text != "" {
		b.WriteString("```\n" + sel.Text + "\n```")
	}
	return strings.TrimRight(b.String(), "\n")
}

func planStepBlock(st *TaskState) string {
	if len(st.Plan) == 0 || st.CurrentPlanStep >= len(st.Plan) {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[PLAN] step %d of %d: %s", st.CurrentPlanStep+1, len(st.Plan), st.Plan[st.CurrentPlanStep])
	if len(st.RequiredFiles) > 0 {
		b.WriteString("\nLikely relevant files: " + strings.Join(st.RequiredFiles, ", "))
	}
	return b.String()
}
