package providers

import (
	"context"
	"errors"
	"io"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/llm"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
)

// OpenAIClient calls OpenAI or any OpenAI-compatible endpoint.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient returns a client. baseURL may be empty.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

func toOpenAIMessages(msgs []message.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if sys := systemPrompt(msgs); sys != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: sys})
	}
	requested := answeredCalls(msgs)
	for _, m := range msgs {
		switch m.Role {
		case message.RoleUser:
			// Name is engine bookkeeping; several providers reject it on user turns.
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case message.RoleAssistant:
			am := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			if am.Content == "" {
				// the SDK serializes "" as null, which some endpoints reject
				am.Content = " "
			}
			for _, c := range m.ToolCalls {
				am.ToolCalls = append(am.ToolCalls, openai.ToolCall{
					ID:       c.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: c.Name, Arguments: c.ArgsJSON()},
				})
			}
			out = append(out, am)
		case message.RoleTool:
			if !requested[m.ToolCallID] {
				continue
			}
			content := m.Content
			if content == "" {
				content = "{}"
			}
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, ToolCallID: m.ToolCallID, Content: content})
		}
	}
	return out
}

func toOpenAITools(schemas []llm.ToolSchema) ([]openai.Tool, error) {
	var out []openai.Tool
	for _, ts := range schemas {
		params, err := parseSchema(ts)
		if err != nil {
			return nil, err
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ts.Name,
				Description: ts.Description,
				Parameters:  params,
			},
		})
	}
	return out, nil
}

func (c *OpenAIClient) request(model string, msgs []message.Message, schemas []llm.ToolSchema, opts llm.ChatOptions) (openai.ChatCompletionRequest, error) {
	tools, err := toOpenAITools(schemas)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}
	req := openai.ChatCompletionRequest{Model: model, Messages: toOpenAIMessages(msgs)}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
		if opts.ToolChoice != "" {
			req.ToolChoice = opts.ToolChoice
		}
	}
	if opts.MaxOutputTokens > 0 {
		req.MaxTokens = opts.MaxOutputTokens
	}
	if opts.Temperature > 0 {
		t := opts.Temperature
		req.Temperature = &t
	}
	return req, nil
}

func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return wrapError(err, apiErr.HTTPStatusCode)
	}
	return wrapError(err, 0)
}

// Chat implements llm.Client.
func (c *OpenAIClient) Chat(ctx context.Context, model string, msgs []message.Message, schemas []llm.ToolSchema, opts llm.ChatOptions) (llm.Response, error) {
	req, err := c.request(model, msgs, schemas, opts)
	if err != nil {
		return llm.Response{}, err
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return llm.Response{}, openAIError(err)
	}
	if len(resp.Choices) == 0 {
		return llm.Response{}, errors.New("empty response from OpenAI")
	}
	choice := resp.Choices[0]

	var calls []message.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		call := decodeArgs(tc.Function.Arguments)
		call.ID, call.Name = tc.ID, tc.Function.Name
		calls = append(calls, call)
	}
	return llm.Response{
		Content:      choice.Message.Content,
		ToolCalls:    calls,
		Usage:        message.Usage{Prompt: resp.Usage.PromptTokens, Completion: resp.Usage.CompletionTokens, Total: resp.Usage.TotalTokens},
		FinishReason: finishReason(len(calls) > 0, string(choice.FinishReason)),
	}, nil
}

// Stream implements llm.Client. Tool call fragments are forwarded by index
// and assembled by the caller.
func (c *OpenAIClient) Stream(ctx context.Context, model string, msgs []message.Message, schemas []llm.ToolSchema, opts llm.ChatOptions) (<-chan llm.StreamEvent, <-chan error) {
	events := make(chan llm.StreamEvent, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(events)

		req, err := c.request(model, msgs, schemas, opts)
		if err != nil {
			errCh <- err
			return
		}
		req.Stream = true
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

		stream, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			errCh <- openAIError(err)
			return
		}
		defer stream.Close()

		send := func(ev llm.StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errCh <- openAIError(err)
				return
			}
			if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
				u := message.Usage{Prompt: resp.Usage.PromptTokens, Completion: resp.Usage.CompletionTokens, Total: resp.Usage.TotalTokens}
				if !send(llm.StreamEvent{Type: llm.EventUsage, Usage: u}) {
					return
				}
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" && !send(llm.StreamEvent{Type: llm.EventTextDelta, Text: delta.Content}) {
				return
			}
			for pos, tc := range delta.ToolCalls {
				idx := pos
				if tc.Index != nil {
					idx = *tc.Index
				}
				d := llm.ToolCallDelta{Index: idx, ID: tc.ID, Name: tc.Function.Name, ArgsDelta: tc.Function.Arguments}
				if !send(llm.StreamEvent{Type: llm.EventToolCallDelta, ToolCall: d}) {
					return
				}
			}
		}
	}()
	return events, errCh
}
