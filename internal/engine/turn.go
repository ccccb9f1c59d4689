package engine

// Selection is a span of text the user has selected in an open file.
type Selection struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Text      string `json:"text"`
}

// TurnContext is the per-turn configuration threaded through every node.
type TurnContext struct {
	ConversationID     string
	WorkingDirectory   string
	MaxIterations      int
	ActiveSelection    *Selection
	AlwaysApproveTools bool
	EnableRAG          bool
	EnableTools        bool
	// Model overrides the engine's default model for this turn.
	Model string
}
