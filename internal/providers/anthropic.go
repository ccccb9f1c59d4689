package providers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/llm"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
)

const (
	defaultAnthropicMaxTokens   = 4096
	defaultAnthropicTemperature = float32(0.1)
)

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient returns a client. baseURL may be empty.
func NewAnthropicClient(apiKey, baseURL string) *AnthropicClient {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &AnthropicClient{client: anthropic.NewClient(apiKey, opts...)}
}

// toAnthropicMessages merges consecutive user-side entries (user text and
// tool results) into one message, as the API expects alternating roles.
func toAnthropicMessages(msgs []message.Message) []anthropic.Message {
	var out []anthropic.Message
	appendUser := func(c anthropic.MessageContent) {
		if n := len(out); n > 0 && out[n-1].Role == anthropic.RoleUser {
			out[n-1].Content = append(out[n-1].Content, c)
			return
		}
		out = append(out, anthropic.Message{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{c}})
	}
	requested := answeredCalls(msgs)

	for _, m := range msgs {
		switch m.Role {
		case message.RoleUser:
			appendUser(anthropic.NewTextMessageContent(m.Content))
		case message.RoleAssistant:
			var content []anthropic.MessageContent
			if strings.TrimSpace(m.Content) != "" {
				content = append(content, anthropic.NewTextMessageContent(m.Content))
			}
			for _, c := range m.ToolCalls {
				content = append(content, anthropic.NewToolUseMessageContent(c.ID, c.Name, json.RawMessage(c.ArgsJSON())))
			}
			if len(content) == 0 {
				continue
			}
			out = append(out, anthropic.Message{Role: anthropic.RoleAssistant, Content: content})
		case message.RoleTool:
			if !requested[m.ToolCallID] {
				continue
			}
			content := m.Content
			if content == "" {
				content = "{}"
			}
			appendUser(anthropic.NewToolResultMessageContent(m.ToolCallID, content, strings.HasPrefix(content, errorPrefix)))
		}
	}
	return out
}

func toAnthropicTools(schemas []llm.ToolSchema) ([]anthropic.ToolDefinition, error) {
	var out []anthropic.ToolDefinition
	for _, ts := range schemas {
		schema, err := parseSchema(ts)
		if err != nil {
			return nil, err
		}
		out = append(out, anthropic.ToolDefinition{Name: ts.Name, Description: ts.Description, InputSchema: schema})
	}
	return out, nil
}

func (c *AnthropicClient) request(model string, msgs []message.Message, schemas []llm.ToolSchema, opts llm.ChatOptions) (anthropic.MessagesRequest, error) {
	tools, err := toAnthropicTools(schemas)
	if err != nil {
		return anthropic.MessagesRequest{}, err
	}
	maxTokens := defaultAnthropicMaxTokens
	if opts.MaxOutputTokens > 0 {
		maxTokens = opts.MaxOutputTokens
	}
	temperature := defaultAnthropicTemperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	req := anthropic.MessagesRequest{
		Model:       anthropic.Model(model),
		Messages:    toAnthropicMessages(msgs),
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}
	if sys := systemPrompt(msgs); sys != "" {
		req.MultiSystem = []anthropic.MessageSystemPart{{Type: "text", Text: sys}}
	}
	if len(tools) > 0 {
		req.Tools = tools
	}
	return req, nil
}

func usageOf(u anthropic.MessagesUsage) message.Usage {
	return message.Usage{Prompt: u.InputTokens, Completion: u.OutputTokens, Total: u.InputTokens + u.OutputTokens}
}

// Chat implements llm.Client.
func (c *AnthropicClient) Chat(ctx context.Context, model string, msgs []message.Message, schemas []llm.ToolSchema, opts llm.ChatOptions) (llm.Response, error) {
	req, err := c.request(model, msgs, schemas, opts)
	if err != nil {
		return llm.Response{}, err
	}
	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		return llm.Response{}, wrapError(err, 0)
	}

	var text strings.Builder
	var calls []message.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				text.WriteString(*block.Text)
			}
		case "tool_use":
			if block.MessageContentToolUse == nil || block.Name == "" {
				continue
			}
			call := decodeArgs(string(block.Input))
			call.ID, call.Name = block.ID, block.Name
			calls = append(calls, call)
		}
	}
	return llm.Response{
		Content:      text.String(),
		ToolCalls:    calls,
		Usage:        usageOf(resp.Usage),
		FinishReason: finishReason(len(calls) > 0, string(resp.StopReason)),
	}, nil
}

// Stream implements llm.Client. The SDK streams through callbacks; text is
// forwarded as it arrives and each tool_use block is sent whole when it
// closes.
func (c *AnthropicClient) Stream(ctx context.Context, model string, msgs []message.Message, schemas []llm.ToolSchema, opts llm.ChatOptions) (<-chan llm.StreamEvent, <-chan error) {
	events := make(chan llm.StreamEvent, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(events)

		base, err := c.request(model, msgs, schemas, opts)
		if err != nil {
			errCh <- err
			return
		}
		send := func(ev llm.StreamEvent) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		var streamErr error
		toolIndex := 0
		req := anthropic.MessagesStreamRequest{MessagesRequest: base}
		req.OnError = func(resp anthropic.ErrorResponse) {
			if streamErr == nil && resp.Error != nil {
				streamErr = wrapError(errors.New("anthropic streaming error: "+resp.Error.Message), 0)
			}
		}
		req.OnContentBlockDelta = func(d anthropic.MessagesEventContentBlockDeltaData) {
			if d.Delta.Type == "text_delta" && d.Delta.Text != nil && *d.Delta.Text != "" {
				send(llm.StreamEvent{Type: llm.EventTextDelta, Text: *d.Delta.Text})
			}
		}
		req.OnContentBlockStop = func(_ anthropic.MessagesEventContentBlockStopData, content anthropic.MessageContent) {
			if content.Type != "tool_use" || content.MessageContentToolUse == nil {
				return
			}
			tu := content.MessageContentToolUse
			send(llm.StreamEvent{Type: llm.EventToolCallDelta, ToolCall: llm.ToolCallDelta{
				Index:     toolIndex,
				ID:        tu.ID,
				Name:      tu.Name,
				ArgsDelta: string(tu.Input),
			}})
			toolIndex++
		}

		resp, err := c.client.CreateMessagesStream(ctx, req)
		switch {
		case err != nil:
			errCh <- wrapError(err, 0)
		case streamErr != nil:
			errCh <- streamErr
		default:
			if resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
				send(llm.StreamEvent{Type: llm.EventUsage, Usage: usageOf(resp.Usage)})
			}
		}
	}()
	return events, errCh
}
