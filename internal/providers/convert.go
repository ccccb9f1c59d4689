// Package providers adapts vendor SDKs to llm.Client.
package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/llm"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
)

const errorPrefix = "ERROR: "

func parseSchema(ts llm.ToolSchema) (map[string]any, error) {
	if strings.TrimSpace(ts.JSONSchema) == "" {
		return map[string]any{"type": "object"}, nil
	}
	var schema map[string]any
	if err := json.Unmarshal([]byte(ts.JSONSchema), &schema); err != nil {
		return nil, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
	}
	return schema, nil
}

// systemPrompt joins every system message; providers take one system block.
func systemPrompt(msgs []message.Message) string {
	var parts []string
	for _, m := range msgs {
		if m.Role == message.RoleSystem && strings.TrimSpace(m.Content) != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// answeredCalls returns the ids of calls requested by assistant messages, so
// orphaned tool messages can be dropped before they reach a provider that
// rejects them.
func answeredCalls(msgs []message.Message) map[string]bool {
	ids := make(map[string]bool)
	for _, m := range msgs {
		for _, c := range m.ToolCalls {
			ids[c.ID] = true
		}
	}
	return ids
}

var statusCodes = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusBadRequest,
	http.StatusPaymentRequired,
	529, // anthropic overloaded
}

// wrapError attaches the HTTP status and Retry-After hint to err. status is
// used when the SDK exposed it; otherwise both are scraped from the text.
func wrapError(err error, status int) error {
	if err == nil {
		return nil
	}
	text := err.Error()
	if status == 0 {
		for _, code := range statusCodes {
			if strings.Contains(text, fmt.Sprint(code)) {
				status = code
				break
			}
		}
	}
	var retryAfter string
	lower := strings.ToLower(text)
	for _, marker := range []string{"retry-after", "retry after"} {
		if idx := strings.Index(lower, marker); idx != -1 {
			if fields := strings.Fields(strings.TrimLeft(text[idx+len(marker):], ": ")); len(fields) > 0 {
				retryAfter = fields[0]
			}
			break
		}
	}
	return &llm.ProviderError{Err: err, HTTPStatus: status, RetryAfter: retryAfter}
}

func finishReason(hasCalls bool, reason string) string {
	switch {
	case hasCalls:
		return "tool_calls"
	case reason == "length" || reason == "max_tokens":
		return "length"
	case reason == "content_filter" || reason == "content_filtered" || reason == "refusal":
		return "content_filter"
	}
	return "stop"
}

func decodeArgs(raw string) message.ToolCall {
	var call message.ToolCall
	raw = strings.TrimSpace(raw)
	if raw == "" {
		call.Args = map[string]any{}
		return call
	}
	if err := json.Unmarshal([]byte(raw), &call.Args); err != nil {
		call.Args = nil
		call.RawArgs = raw
	}
	return call
}
