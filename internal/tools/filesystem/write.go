package filesystem

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools"
)

type writeResult struct {
	Path    string `json:"path"`
	Bytes   int    `json:"bytes"`
	Created bool   `json:"created"`
}

func writeFileImpl(fsys FileSystem, root, path, content string) (string, error) {
	abs, err := tools.ResolvePath(root, path)
	if err != nil {
		return "", err
	}
	_, statErr := fsys.Stat(abs)
	if err := fsys.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := fsys.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return tools.ToJSON(writeResult{Path: path, Bytes: len(content), Created: statErr != nil})
}

// NewWriteFileTool returns write_file. fsys may be nil.
func NewWriteFileTool(root string, fsys FileSystem) tools.Tool {
	fsys = orOS(fsys)
	return tools.Tool{
		Name:        "write_file",
		Description: "Writes a whole file, creating parent directories. Overwrites existing files; prefer edit_file for small changes.",
		SchemaJSON:  `{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`,
		Fn: func(_ context.Context, args map[string]any) (string, error) {
			path, err := stringArg(args, "path")
			if err != nil {
				return "", err
			}
			content, err := stringArg(args, "content")
			if err != nil {
				return "", err
			}
			return writeFileImpl(fsys, root, path, content)
		},
		Modifies: true,
		PathArg:  "path",
	}
}
