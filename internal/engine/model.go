package engine

import (
	"context"
	"time"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/llm"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
)

// modelReply is the assembled result of one streamed call.
type modelReply struct {
	Text      string
	ToolCalls []message.ToolCall
	Usage     message.Usage
}

// streamModel issues one streaming call, forwards text deltas to the sink
// and checks for aborts after every chunk. Text streamed before an abort has
// already reached the sink.
func (e *Engine) streamModel(ctx context.Context, r *run, node string, msgs []message.Message, schemas []llm.ToolSchema, opts llm.ChatOptions) (modelReply, error) {
	if err := e.checkAbort(ctx, r); err != nil {
		return modelReply{}, err
	}
	e.d.Hooks.OnBeforeModel(ctx, node, r.st, msgs, schemas)
	start := time.Now()

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	acc := llm.NewAccumulator()
	deltaCh, errCh := e.d.Model.Stream(cctx, e.model(r.turn), msgs, schemas, opts)
	var streamErr error
	for deltaCh != nil || errCh != nil {
		select {
		case ev, ok := <-deltaCh:
			if !ok {
				deltaCh = nil
				continue
			}
			acc.Add(ev)
			if ev.Type == llm.EventTextDelta && ev.Text != "" {
				if e.d.Sink != nil {
					e.d.Sink.EmitChunk(r.st.ConversationID, ev.Text)
				}
				e.d.Hooks.OnStreamDelta(ctx, r.st, ev.Text)
			}
			if err := e.checkAbort(ctx, r); err != nil {
				streamErr = err
				deltaCh, errCh = nil, nil
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				streamErr = err
				deltaCh, errCh = nil, nil
			}
		case <-ctx.Done():
			streamErr = aborted(ctx.Err())
			deltaCh, errCh = nil, nil
		}
	}

	reply := modelReply{Text: acc.Text(), ToolCalls: acc.ToolCalls(), Usage: acc.Usage()}
	if streamErr != nil && isAbort(ctx, streamErr) {
		streamErr = aborted(streamErr)
	}
	if streamErr == nil {
		r.st.Usage.Add(reply.Usage)
	}
	e.d.Hooks.OnAfterModel(ctx, node, r.st, reply.Usage, time.Since(start), streamErr)
	return reply, streamErr
}

func (e *Engine) chatOptions(withTools bool) llm.ChatOptions {
	opts := llm.ChatOptions{Temperature: e.cfg.Temperature, MaxOutputTokens: e.cfg.MaxOutputTokens}
	if withTools {
		opts.ToolChoice = "auto"
	}
	return opts
}

// transcript returns the history the model may see: messages with no
// content are dropped unless they carry tool calls or answer one.
func transcript(msgs []message.Message) []message.Message {
	out := make([]message.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" && !m.HasToolCalls() && m.Role != message.RoleTool {
			continue
		}
		out = append(out, m)
	}
	return out
}
