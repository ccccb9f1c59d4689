package tools

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// ResolvePath joins rel onto root and rejects results outside root.
func ResolvePath(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	cleanRoot := filepath.Clean(root)
	abs := rel
	if !filepath.IsAbs(rel) {
		abs = filepath.Join(cleanRoot, rel)
	}
	abs = filepath.Clean(abs)
	r, err := filepath.Rel(cleanRoot, abs)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the workspace root", rel)
	}
	return abs, nil
}

// ToJSON marshals a tool result.
func ToJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(b), nil
}
