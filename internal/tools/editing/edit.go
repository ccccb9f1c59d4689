// Package editing implements in-place file edits.
package editing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools"
)

const (
	maxEditLines  = 500
	warnEditLines = 200
	maxHintLines  = 5
)

var textExts = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".mjs": true, ".cjs": true, ".java": true, ".kt": true, ".c": true, ".cpp": true,
	".h": true, ".hpp": true, ".cs": true, ".rs": true, ".rb": true, ".php": true,
	".html": true, ".css": true, ".scss": true, ".vue": true, ".svelte": true,
	".md": true, ".txt": true, ".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".sh": true, ".bash": true, ".zsh": true, ".sql": true, ".xml": true, ".mod": true,
}

var generatedMarkers = []string{
	"Code generated",
	"DO NOT EDIT",
	"Auto-generated",
	"automatically generated",
	"This file is generated",
}

type editResult struct {
	Path         string `json:"path"`
	Replacements int    `json:"replacements"`
	Warning      string `json:"warning,omitempty"`
}

func editFileImpl(root, path, oldString, newString string, replaceAll bool) (string, error) {
	abs, err := tools.ResolvePath(root, path)
	if err != nil {
		return "", err
	}
	if !isTextFile(abs) {
		return "", fmt.Errorf("%s is not a text file; edit_file only edits source and text files", path)
	}
	if oldString == newString {
		return "", errors.New("old_string and new_string are identical")
	}
	warning, err := checkEditSize(oldString)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	content := string(data)
	if marker, ok := generatedMarker(content); ok {
		return "", fmt.Errorf("%s looks generated (found %q); edit its generator instead", path, marker)
	}

	count := strings.Count(content, oldString)
	switch {
	case count == 0:
		return "", notFoundError(content, oldString)
	case count > 1 && !replaceAll:
		return "", fmt.Errorf("old_string appears %d times%s; add surrounding context to make it unique or set replace_all", count, candidateLines(content, oldString))
	}

	n := 1
	if replaceAll {
		n = -1
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, []byte(strings.Replace(content, oldString, newString, n)), info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	replaced := 1
	if replaceAll {
		replaced = count
	}
	return tools.ToJSON(editResult{Path: path, Replacements: replaced, Warning: warning})
}

func isTextFile(path string) bool {
	return textExts[strings.ToLower(filepath.Ext(path))]
}

func generatedMarker(content string) (string, bool) {
	preview := content
	if len(preview) > 500 {
		preview = preview[:500]
	}
	for _, m := range generatedMarkers {
		if strings.Contains(preview, m) {
			return m, true
		}
	}
	return "", false
}

func checkEditSize(oldString string) (string, error) {
	lines := strings.Count(oldString, "\n")
	if lines > maxEditLines {
		return "", fmt.Errorf("old_string spans %d lines (max %d); split the change into smaller edits", lines, maxEditLines)
	}
	if lines > warnEditLines {
		return fmt.Sprintf("old_string spans %d lines; smaller edits are easier to verify", lines), nil
	}
	return "", nil
}

func notFoundError(content, oldString string) error {
	var hint string
	if strings.Contains(strings.Join(strings.Fields(content), " "), strings.Join(strings.Fields(oldString), " ")) {
		hint = " The text exists with different whitespace or indentation."
	}
	return fmt.Errorf("old_string not found (file indents with %s).%s Read the file again and copy the exact text", detectIndentation(content), hint)
}

// candidateLines lists up to maxHintLines lines containing the first line of
// oldString.
func candidateLines(content, oldString string) string {
	first := strings.TrimSpace(strings.SplitN(oldString, "\n", 2)[0])
	if first == "" {
		return ""
	}
	var nums []int
	for i, line := range strings.Split(content, "\n") {
		if strings.Contains(line, first) {
			nums = append(nums, i+1)
			if len(nums) == maxHintLines {
				break
			}
		}
	}
	if len(nums) == 0 {
		return ""
	}
	return fmt.Sprintf(" (lines %v)", nums)
}

func detectIndentation(content string) string {
	switch {
	case strings.Contains(content, "\n\t"):
		return "tabs"
	case strings.Contains(content, "\n    "):
		return "4 spaces"
	case strings.Contains(content, "\n  "):
		return "2 spaces"
	}
	return "no indentation"
}

// NewEditFileTool returns edit_file, an exact search and replace.
func NewEditFileTool(root string) tools.Tool {
	return tools.Tool{
		Name:        "edit_file",
		Description: "Replaces an exact string in a file. Read the file first and copy old_string exactly, including indentation. old_string must be unique unless replace_all is set.",
		SchemaJSON: `{"type":"object","properties":{
			"path":{"type":"string","description":"Path relative to the workspace root"},
			"old_string":{"type":"string","minLength":1},
			"new_string":{"type":"string"},
			"replace_all":{"type":"boolean"}
		},"required":["path","old_string","new_string"]}`,
		Fn: func(_ context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			oldString, _ := args["old_string"].(string)
			newString, _ := args["new_string"].(string)
			replaceAll, _ := args["replace_all"].(bool)
			return editFileImpl(root, path, oldString, newString, replaceAll)
		},
		Modifies: true,
		PathArg:  "path",
	}
}
