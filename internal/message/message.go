// Package message defines the transcript entries shared by the engine, the
// model providers and the leaf services.
package message

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role represents the role of a transcript entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is the provider-agnostic transcript entry.
type Message struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`         // tool name for tool messages
	ToolCallID string     `json:"tool_call_id,omitempty"` // originating call id for tool messages
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // calls requested by an assistant message
	CreatedAt  time.Time  `json:"created_at"`
}

// Validate checks that the message is well formed.
func (m Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
	default:
		return fmt.Errorf("invalid message role: %s", m.Role)
	}
	if m.Role == RoleTool && m.ToolCallID == "" {
		return fmt.Errorf("tool messages must carry a tool call id")
	}
	return nil
}

// HasToolCalls reports whether an assistant message requested tools.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Args    map[string]any `json:"args,omitempty"`
	RawArgs string         `json:"raw_args,omitempty"` // set when the argument text was not valid JSON
}

// ArgsJSON returns the serialized arguments, preferring the raw text when parsing failed.
func (c ToolCall) ArgsJSON() string {
	if c.Args == nil && c.RawArgs != "" {
		return c.RawArgs
	}
	if c.Args == nil {
		return "{}"
	}
	b, err := json.Marshal(c.Args)
	if err != nil {
		return c.RawArgs
	}
	return string(b)
}

// StringArg returns a string argument or "".
func (c ToolCall) StringArg(key string) string {
	if c.Args == nil {
		return ""
	}
	s, _ := c.Args[key].(string)
	return s
}

// ToolResult is the resolved outcome of one tool call. Exactly one result
// exists per call id, failures included.
type ToolResult struct {
	ToolCallID string        `json:"tool_call_id"`
	ToolName   string        `json:"tool_name"`
	Result     string        `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Attempts   int           `json:"attempts,omitempty"`
}

// Failed reports whether the call ended in an error.
func (r ToolResult) Failed() bool {
	return r.Error != ""
}

// Usage holds token accounting returned by providers.
type Usage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Add accumulates another usage record.
func (u *Usage) Add(o Usage) {
	u.Prompt += o.Prompt
	u.Completion += o.Completion
	u.Total += o.Total
}

var clock struct {
	mu   sync.Mutex
	last time.Time
}

// Now returns a timestamp strictly greater than any previously returned one,
// so transcript order and timestamp order never disagree.
func Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	t := time.Now()
	if !t.After(clock.last) {
		t = clock.last.Add(time.Nanosecond)
	}
	clock.last = t
	return t
}

// New creates a message with a fresh id and timestamp.
func New(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: Now(),
	}
}

// System creates a system message.
func System(content string) Message { return New(RoleSystem, content) }

// User creates a user message.
func User(content string) Message { return New(RoleUser, content) }

// Assistant creates an assistant message, optionally carrying tool calls.
func Assistant(content string, calls []ToolCall) Message {
	m := New(RoleAssistant, content)
	m.ToolCalls = calls
	return m
}

// Tool creates a tool-role message for a call result.
func Tool(res ToolResult) Message {
	content := res.Result
	if res.Error != "" {
		content = "ERROR: " + res.Error
	}
	m := New(RoleTool, content)
	m.Name = res.ToolName
	m.ToolCallID = res.ToolCallID
	return m
}

// LastUser returns the content of the most recent user message.
func LastUser(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
