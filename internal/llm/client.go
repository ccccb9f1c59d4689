// Package llm defines the model-call boundary consumed by the engine.
// Provider adapters live in internal/providers.
package llm

import (
	"context"
	"fmt"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
)

// Client abstracts a chat-completion provider.
type Client interface {
	Chat(ctx context.Context, model string, messages []message.Message, tools []ToolSchema, opts ChatOptions) (Response, error)
	// Stream delivers deltas until the event channel closes. At most one error is sent.
	Stream(ctx context.Context, model string, messages []message.Message, tools []ToolSchema, opts ChatOptions) (<-chan StreamEvent, <-chan error)
}

// ChatOptions are forwarded to the provider SDK.
type ChatOptions struct {
	Temperature     float32
	MaxOutputTokens int
	// ToolChoice is "auto" when tools are supplied and empty otherwise.
	ToolChoice string
}

// ToolSchema is the OpenAI-style function definition exposed to the model.
type ToolSchema struct {
	Name        string
	Description string
	JSONSchema  string
}

// Response is a normalized result of one non-streaming call.
type Response struct {
	Content      string
	ToolCalls    []message.ToolCall
	Usage        message.Usage
	FinishReason string // "stop" | "length" | "tool_calls" | "content_filter"
}

// StreamEventType enumerates stream deltas.
type StreamEventType string

const (
	EventTextDelta     StreamEventType = "text_delta"
	EventToolCallDelta StreamEventType = "tool_call_delta"
	EventUsage         StreamEventType = "usage"
)

// ToolCallDelta is one fragment of a tool call. Fragments sharing an Index
// belong to the same call; ID and Name usually arrive only on the first one.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	ArgsDelta string
}

// StreamEvent is a single streaming delta.
type StreamEvent struct {
	Type     StreamEventType
	Text     string
	ToolCall ToolCallDelta
	Usage    message.Usage
}

// ProviderError carries transport metadata extracted from an SDK error.
type ProviderError struct {
	Err        error
	HTTPStatus int
	RetryAfter string
}

func (e *ProviderError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("provider error (status %d): %v", e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("provider error: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
