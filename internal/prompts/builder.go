package prompts

import (
	"fmt"
	"strings"
)

// Builder composes a system prompt from registered blocks, free-form
// fragments and {{key}} variables.
type Builder struct {
	registry  *Registry
	fragments []string
	variables map[string]string
	err       error
}

// NewBuilder creates a builder that resolves blocks from registry, or from
// DefaultRegistry when registry is nil.
func NewBuilder(registry *Registry) *Builder {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Builder{registry: registry, variables: make(map[string]string)}
}

// AddBlock appends a registered block. A missing block is reported by
// Build.
func (b *Builder) AddBlock(id string) *Builder {
	p, err := b.registry.Lookup(id)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	b.fragments = append(b.fragments, p.Content)
	return b
}

// AddFragment appends a fragment to the prompt. Empty fragments are ignored.
func (b *Builder) AddFragment(text string) *Builder {
	if strings.TrimSpace(text) != "" {
		b.fragments = append(b.fragments, text)
	}
	return b
}

// SetVariable sets a variable for template substitution.
func (b *Builder) SetVariable(key, value string) *Builder {
	b.variables[key] = value
	return b
}

// Build constructs the final prompt string.
func (b *Builder) Build() (string, error) {
	if b.err != nil {
		return "", fmt.Errorf("failed to build prompt: %w", b.err)
	}
	result := strings.Join(b.fragments, "\n\n")
	for key, value := range b.variables {
		result = strings.ReplaceAll(result, fmt.Sprintf("{{%s}}", key), value)
	}
	return result, nil
}
