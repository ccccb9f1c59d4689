// Package prompts holds the system prompt blocks the engine sends to the
// model.
package prompts

// Block IDs registered by this package.
const (
	Identity       = "identity"
	ToolUsage      = "tool_usage"
	Workflow       = "workflow"
	Safety         = "safety"
	Planner        = "planner"
	DirectResponse = "direct_response"
)

// Block is one named piece of system prompt. Content may contain {{key}}
// placeholders filled by Builder.
type Block struct {
	ID          string
	Description string
	Content     string
}
