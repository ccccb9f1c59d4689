// Package tools defines built-in tools and the catalog the model sees.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/llm"
)

// Func executes a tool with already-decoded arguments.
type Func func(ctx context.Context, args map[string]any) (string, error)

// Tool is a built-in tool.
type Tool struct {
	Name        string
	Description string
	SchemaJSON  string
	Fn          Func
	// Retryable marks idempotent tools. Non-retryable tools get a single attempt.
	Retryable bool
	// Modifies marks tools that write to the workspace. PathArg names the
	// argument holding the target path so the tracker can snapshot it.
	Modifies bool
	PathArg  string
}

// ValidateArgs validates args against the tool's JSON schema.
func (t Tool) ValidateArgs(args map[string]any) error {
	if t.SchemaJSON == "" {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(t.SchemaJSON),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return &ValidationError{ToolName: t.Name, Errors: msgs}
	}
	return nil
}

// ValidationError reports arguments that failed schema validation.
type ValidationError struct {
	ToolName string
	Errors   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool %s validation failed: %s", e.ToolName, strings.Join(e.Errors, "; "))
}

// Registry holds built-in tools by name.
type Registry map[string]Tool

// Register adds or replaces a tool.
func (r Registry) Register(t Tool) {
	r[t.Name] = t
}

// Names returns the sorted tool names.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the tool schemas sorted by name.
func (r Registry) Schemas() []llm.ToolSchema {
	out := make([]llm.ToolSchema, 0, len(r))
	for _, n := range r.Names() {
		t := r[n]
		out = append(out, llm.ToolSchema{Name: t.Name, Description: t.Description, JSONSchema: t.SchemaJSON})
	}
	return out
}
