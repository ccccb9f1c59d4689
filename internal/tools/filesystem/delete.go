package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools"
)

type deleteResult struct {
	Path    string `json:"path"`
	Deleted bool   `json:"deleted"`
	Message string `json:"message,omitempty"`
}

func deleteFileImpl(fsys FileSystem, root, path string) (string, error) {
	abs, err := tools.ResolvePath(root, path)
	if err != nil {
		return "", err
	}
	info, err := fsys.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return tools.ToJSON(deleteResult{Path: path, Message: "file does not exist"})
		}
		return "", fmt.Errorf("failed to check file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory; delete_file only removes files", path)
	}
	if err := fsys.Remove(abs); err != nil {
		return "", fmt.Errorf("failed to delete file: %w", err)
	}
	return tools.ToJSON(deleteResult{Path: path, Deleted: true})
}

// NewDeleteFileTool returns delete_file. fsys may be nil.
func NewDeleteFileTool(root string, fsys FileSystem) tools.Tool {
	fsys = orOS(fsys)
	return tools.Tool{
		Name:        "delete_file",
		Description: "Deletes one file from the workspace. Directories are refused.",
		SchemaJSON:  `{"type":"object","properties":{"path":{"type":"string","minLength":1}},"required":["path"]}`,
		Fn: func(_ context.Context, args map[string]any) (string, error) {
			path, err := stringArg(args, "path")
			if err != nil {
				return "", err
			}
			return deleteFileImpl(fsys, root, path)
		},
		Modifies: true,
		PathArg:  "path",
	}
}
