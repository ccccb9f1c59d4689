package tools

import (
	"context"
	"fmt"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/llm"
)

// ExternalTool is a tool served by a connected tool server.
type ExternalTool struct {
	Name         string
	Description  string
	InputSchema  string
	SourceServer string
}

// ExternalCatalog lists and invokes tools provided by external servers.
// Connection management belongs to the host.
type ExternalCatalog interface {
	ListExternalTools(ctx context.Context) ([]ExternalTool, error)
	InvokeExternal(ctx context.Context, server, name string, args map[string]any) (string, error)
}

// Catalog is the full tool surface exposed to the model: built-in tools
// first, then external tools whose names do not shadow a built-in.
type Catalog struct {
	Builtin  Registry
	External ExternalCatalog
}

// ListBuiltin returns the built-in tool schemas.
func (c *Catalog) ListBuiltin() []llm.ToolSchema {
	if c == nil || c.Builtin == nil {
		return nil
	}
	return c.Builtin.Schemas()
}

// ListExternal returns the external tools, or nil when none are connected.
func (c *Catalog) ListExternal(ctx context.Context) ([]ExternalTool, error) {
	if c == nil || c.External == nil {
		return nil, nil
	}
	list, err := c.External.ListExternalTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list external tools: %w", err)
	}
	return list, nil
}

// Schemas merges built-in and external schemas. A failing external catalog
// degrades to built-ins only and the error is returned alongside.
func (c *Catalog) Schemas(ctx context.Context) ([]llm.ToolSchema, error) {
	out := c.ListBuiltin()
	ext, err := c.ListExternal(ctx)
	for _, t := range ext {
		if _, shadowed := c.Builtin[t.Name]; shadowed {
			continue
		}
		schema := t.InputSchema
		if schema == "" {
			schema = `{"type":"object"}`
		}
		out = append(out, llm.ToolSchema{Name: t.Name, Description: t.Description, JSONSchema: schema})
	}
	return out, err
}

// FindExternal looks up an external tool by name.
func (c *Catalog) FindExternal(ctx context.Context, name string) (ExternalTool, bool, error) {
	ext, err := c.ListExternal(ctx)
	if err != nil {
		return ExternalTool{}, false, err
	}
	for _, t := range ext {
		if t.Name == name {
			return t, true, nil
		}
	}
	return ExternalTool{}, false, nil
}
