package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/llm"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
)

// renderLimit caps each message in the rendered transcript.
const renderLimit = 600

// Summarizer handles LLM-based summarization for sessions.
type Summarizer struct {
	llm   llm.Client
	model string
}

// NewSummarizer creates a new session summarizer.
func NewSummarizer(client llm.Client, model string) *Summarizer {
	return &Summarizer{
		llm:   client,
		model: model,
	}
}

// GenerateTitle generates a short 3-5 word title for the session.
func (s *Summarizer) GenerateTitle(ctx context.Context, history []message.Message) (string, error) {
	if len(history) == 0 {
		return "New Session", nil
	}

	systemPrompt := "You are a helpful assistant. Generate a short, concise title (3-5 words) for this session based on the user's intent and work done. Do not use quotes or punctuation."

	// the opening messages carry the intent
	limit := min(len(history), 10)
	userPrompt := fmt.Sprintf("History:\n%s\n\nGenerate Title:", render(history[:limit]))

	msgs := []message.Message{message.System(systemPrompt), message.User(userPrompt)}
	resp, err := s.llm.Chat(ctx, s.model, msgs, nil, llm.ChatOptions{
		MaxOutputTokens: 20,
		Temperature:     0.3,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate title: %w", err)
	}

	return strings.Trim(strings.TrimSpace(resp.Content), `"'`), nil
}

// GenerateSummary generates a context summary for the next session.
func (s *Summarizer) GenerateSummary(ctx context.Context, history []message.Message) (string, error) {
	if len(history) == 0 {
		return "", nil
	}

	systemPrompt := "You represent the memory of an AI coding assistant. Summarize the following session history to preserve context for a future session. Focus on: decisions made, files modified, unresolved errors, and next steps. Be concise."

	userPrompt := fmt.Sprintf("Summarize this session:\n\n%s", render(history))

	msgs := []message.Message{message.System(systemPrompt), message.User(userPrompt)}
	resp, err := s.llm.Chat(ctx, s.model, msgs, nil, llm.ChatOptions{
		MaxOutputTokens: 500,
		Temperature:     0.1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}

	return strings.TrimSpace(resp.Content), nil
}

// render flattens the transcript for a summary prompt. System messages are
// dropped and long contents are clipped.
func render(history []message.Message) string {
	var b strings.Builder
	for _, m := range history {
		if m.Role == message.RoleSystem {
			continue
		}
		content := m.Content
		if len(content) > renderLimit {
			content = content[:renderLimit] + "..."
		}
		switch {
		case m.Role == message.RoleTool:
			fmt.Fprintf(&b, "[tool %s] %s\n", m.Name, content)
		case len(m.ToolCalls) > 0:
			names := make([]string, len(m.ToolCalls))
			for i, c := range m.ToolCalls {
				names[i] = c.Name
			}
			fmt.Fprintf(&b, "[%s] %s (calls: %s)\n", m.Role, content, strings.Join(names, ", "))
		default:
			fmt.Fprintf(&b, "[%s] %s\n", m.Role, content)
		}
	}
	return b.String()
}
