// Package reasoning holds tools that let the model record its thinking
// without touching the workspace.
package reasoning

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools"
)

// NewThinkTool returns think. The reasoning is logged at info level and
// echoed nowhere else.
func NewThinkTool(logger *slog.Logger) tools.Tool {
	if logger == nil {
		logger = slog.Default()
	}
	return tools.Tool{
		Name: "think",
		Description: `Record your reasoning before acting. Use it after reading the task to state your approach, before an edit to say what will change, or when choosing between options.

Example:
think({"reasoning": "The bug is in parseConfig in internal/config/load.go: it ignores the env override. I will read that function, then edit it with edit_file."})`,
		SchemaJSON: `{"type":"object","properties":{
			"reasoning":{"type":"string","description":"Your reasoning; name files and functions when relevant"},
			"reason":{"type":"string","description":"Alias for reasoning"}
		}}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			reasoning, _ := args["reasoning"].(string)
			if reasoning == "" {
				reasoning, _ = args["reason"].(string)
			}
			if strings.TrimSpace(reasoning) == "" {
				return "", errors.New("reasoning cannot be empty")
			}
			logger.InfoContext(ctx, "model reasoning", "text", reasoning)
			return `{"status":"noted"}`, nil
		},
		Retryable: true,
	}
}
