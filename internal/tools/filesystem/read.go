package filesystem

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools"
)

const (
	// Files below fullLines are returned whole; up to outlineLines they come
	// with a size warning; above that only an outline is returned unless a
	// line range is requested.
	fullLines    = 200
	outlineLines = 400
	// maxRangeLines caps one ranged read.
	maxRangeLines = 400
)

type readResult struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	LineCount   int    `json:"line_count"`
	ContentType string `json:"content_type"` // full, range or outline
	StartLine   int    `json:"start_line,omitempty"`
	EndLine     int    `json:"end_line,omitempty"`
}

func readFileImpl(fsys FileSystem, root, path string, start, end int) (string, error) {
	abs, err := tools.ResolvePath(root, path)
	if err != nil {
		return "", err
	}
	data, err := fsys.ReadFile(abs)
	if err != nil {
		return "", err
	}
	content := string(data)
	lines := strings.Split(content, "\n")
	lineCount := len(lines)

	if start > 0 || end > 0 {
		if start < 1 {
			start = 1
		}
		if end <= 0 || end > lineCount {
			end = lineCount
		}
		if start > end {
			return "", fmt.Errorf("start_line %d is past the end of %s (%d lines)", start, path, lineCount)
		}
		if end-start+1 > maxRangeLines {
			end = start + maxRangeLines - 1
		}
		var b strings.Builder
		for i := start; i <= end; i++ {
			fmt.Fprintf(&b, "%5d| %s\n", i, lines[i-1])
		}
		return tools.ToJSON(readResult{Path: path, Content: b.String(), LineCount: lineCount, ContentType: "range", StartLine: start, EndLine: end})
	}

	switch {
	case lineCount < fullLines:
		return tools.ToJSON(readResult{Path: path, Content: content, LineCount: lineCount, ContentType: "full"})
	case lineCount < outlineLines:
		header := fmt.Sprintf("NOTE: this file has %d lines. Pass start_line and end_line to read only the part you need.\n\n", lineCount)
		return tools.ToJSON(readResult{Path: path, Content: header + content, LineCount: lineCount, ContentType: "full"})
	default:
		return tools.ToJSON(readResult{Path: path, Content: outline(lines, path), LineCount: lineCount, ContentType: "outline"})
	}
}

// outline lists the declaration lines of a large file with their numbers.
func outline(lines []string, path string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "OUTLINE ONLY: %s has %d lines. Call read_file with start_line and end_line to read a section.\n\n", path, len(lines))

	prefixes := declPrefixes(filepath.Ext(path))
	if prefixes == nil {
		head, tail := 30, 30
		for i := 0; i < head && i < len(lines); i++ {
			fmt.Fprintf(&b, "Line %4d: %s\n", i+1, lines[i])
		}
		if len(lines) > head+tail {
			fmt.Fprintf(&b, "\n... %d lines omitted ...\n\n", len(lines)-head-tail)
		}
		for i := max(head, len(lines)-tail); i < len(lines); i++ {
			fmt.Fprintf(&b, "Line %4d: %s\n", i+1, lines[i])
		}
		return b.String()
	}

	inComment := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "/*") {
			inComment = true
		}
		if inComment {
			if strings.Contains(trimmed, "*/") {
				inComment = false
			}
			continue
		}
		for _, p := range prefixes {
			if strings.HasPrefix(trimmed, p) {
				fmt.Fprintf(&b, "Line %4d: %s\n", i+1, trimmed)
				break
			}
		}
	}
	return b.String()
}

func declPrefixes(ext string) []string {
	switch ext {
	case ".go":
		return []string{"package ", "import", "type ", "func ", "const ", "var "}
	case ".py":
		return []string{"import ", "from ", "class ", "def ", "async def ", "@"}
	case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs":
		return []string{"import ", "export ", "class ", "function ", "async function ", "interface ", "type "}
	case ".rs":
		return []string{"use ", "mod ", "pub ", "fn ", "struct ", "enum ", "impl ", "trait "}
	case ".java", ".kt", ".cs":
		return []string{"package ", "import ", "public ", "private ", "protected ", "class ", "interface ", "fun "}
	}
	return nil
}

// NewReadFileTool returns read_file. fsys may be nil.
func NewReadFileTool(root string, fsys FileSystem) tools.Tool {
	fsys = orOS(fsys)
	return tools.Tool{
		Name:        "read_file",
		Description: "Reads a file from the workspace. Large files return an outline; pass start_line and end_line (1-based, inclusive) to read a section with line numbers.",
		SchemaJSON: `{"type":"object","properties":{
			"path":{"type":"string","description":"Path relative to the workspace root"},
			"start_line":{"type":"integer","minimum":1},
			"end_line":{"type":"integer","minimum":1}
		},"required":["path"]}`,
		Fn: func(_ context.Context, args map[string]any) (string, error) {
			path, err := stringArg(args, "path")
			if err != nil {
				return "", err
			}
			return readFileImpl(fsys, root, path, intArg(args, "start_line", 0), intArg(args, "end_line", 0))
		},
		Retryable: true,
	}
}
