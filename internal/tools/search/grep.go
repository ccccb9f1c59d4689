// Package search implements the grep and codebase_search tools.
package search

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/sandbox"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools"
)

const (
	maxGrepResults = 100
	grepTimeout    = 10 * time.Second
	maxScanBytes   = 1 << 20
)

var skipDirs = gitignore.CompileIgnoreLines(".git/", "node_modules/", ".sepilot/", "vendor/", "dist/", "build/")

// Match is one matching line.
type Match struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

type grepResult struct {
	Pattern   string  `json:"pattern"`
	Results   []Match `json:"results"`
	Count     int     `json:"count"`
	Truncated bool    `json:"truncated"`
	Engine    string  `json:"engine"` // ripgrep or builtin
}

type rgMessage struct {
	Type string `json:"type"`
	Data struct {
		Path struct {
			Text string `json:"text"`
		} `json:"path"`
		Lines struct {
			Text string `json:"text"`
		} `json:"lines"`
		LineNumber int `json:"line_number"`
	} `json:"data"`
}

type grepQuery struct {
	pattern         string
	path            string
	globs           []string
	caseInsensitive bool
}

// grepImpl searches with ripgrep and falls back to a Go walk when rg is not
// installed or no runner is configured.
func grepImpl(ctx context.Context, runner sandbox.Runner, root string, q grepQuery) (string, error) {
	if q.pattern == "" {
		return "", fmt.Errorf("pattern cannot be empty")
	}
	if q.path != "" {
		if _, err := tools.ResolvePath(root, q.path); err != nil {
			return "", err
		}
	}
	if runner != nil {
		matches, err := ripgrep(ctx, runner, root, q)
		if err == nil {
			return formatMatches(q.pattern, matches, "ripgrep")
		}
		if !sandbox.IsCommandNotFound(err) {
			return "", err
		}
	}
	matches, err := walkGrep(ctx, root, q)
	if err != nil {
		return "", err
	}
	return formatMatches(q.pattern, matches, "builtin")
}

func ripgrep(ctx context.Context, runner sandbox.Runner, root string, q grepQuery) ([]Match, error) {
	args := []string{"--json"}
	if q.caseInsensitive {
		args = append(args, "-i")
	}
	for _, g := range q.globs {
		args = append(args, "-g", g)
	}
	args = append(args, "-e", q.pattern)
	if q.path != "" {
		args = append(args, q.path)
	} else {
		args = append(args, ".")
	}

	res, err := runner.RunCmd(ctx, root, "rg", args, grepTimeout)
	if err != nil {
		switch {
		case res.Code == 1:
			return nil, nil // no matches
		case res.Code == 127:
			return nil, fmt.Errorf("rg: command not found")
		case sandbox.IsCommandNotFound(err):
			return nil, err
		}
		return nil, fmt.Errorf("grep failed: %w: %s", err, strings.TrimSpace(res.Stderr))
	}

	var matches []Match
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line == "" {
			continue
		}
		var msg rgMessage
		if json.Unmarshal([]byte(line), &msg) != nil || msg.Type != "match" {
			continue
		}
		matches = append(matches, Match{
			Path:    filepath.ToSlash(strings.TrimPrefix(msg.Data.Path.Text, "./")),
			Line:    msg.Data.LineNumber,
			Content: strings.TrimSpace(msg.Data.Lines.Text),
		})
	}
	return matches, nil
}

func walkGrep(ctx context.Context, root string, q grepQuery) ([]Match, error) {
	expr := q.pattern
	if q.caseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	start := filepath.Clean(root)
	if q.path != "" {
		start, _ = tools.ResolvePath(root, q.path)
	}

	var matches []Match
	err = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, _ := filepath.Rel(root, p)
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && skipDirs.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !globMatch(q.globs, d.Name()) {
			return nil
		}
		found, err := grepFile(p, rel, re)
		if err != nil {
			return nil
		}
		matches = append(matches, found...)
		if len(matches) > maxGrepResults {
			return filepath.SkipAll
		}
		return nil
	})
	return matches, err
}

func grepFile(abs, rel string, re *regexp.Regexp) ([]Match, error) {
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Match
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxScanBytes)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if n == 1 && strings.IndexByte(line, 0) >= 0 {
			return nil, nil // binary
		}
		if re.MatchString(line) {
			out = append(out, Match{Path: rel, Line: n, Content: strings.TrimSpace(line)})
		}
	}
	return out, sc.Err()
}

func globMatch(globs []string, name string) bool {
	if len(globs) == 0 {
		return true
	}
	included := false
	for _, g := range globs {
		if neg, ok := strings.CutPrefix(g, "!"); ok {
			if m, _ := filepath.Match(neg, name); m {
				return false
			}
			continue
		}
		if m, _ := filepath.Match(g, name); m {
			included = true
		}
	}
	return included || allNegated(globs)
}

func allNegated(globs []string) bool {
	for _, g := range globs {
		if !strings.HasPrefix(g, "!") {
			return false
		}
	}
	return true
}

func formatMatches(pattern string, matches []Match, engine string) (string, error) {
	res := grepResult{Pattern: pattern, Results: matches, Engine: engine}
	if res.Results == nil {
		res.Results = []Match{}
	}
	if len(res.Results) > maxGrepResults {
		res.Results = res.Results[:maxGrepResults]
		res.Truncated = true
	}
	res.Count = len(res.Results)
	return tools.ToJSON(res)
}

func splitGlobs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NewGrepTool returns grep. runner may be nil, in which case the search
// always walks the workspace in process.
func NewGrepTool(root string, runner sandbox.Runner) tools.Tool {
	return tools.Tool{
		Name:        "grep",
		Description: "Regex code search across the workspace (ripgrep when available). Use it to find definitions, references and string literals. Supports case-insensitive search and comma-separated globs such as \"*.go,!*_test.go\".",
		SchemaJSON: `{"type":"object","properties":{
			"pattern":{"type":"string","description":"Regular expression"},
			"path":{"type":"string","description":"File or directory relative to the workspace root"},
			"globs":{"type":"string","description":"Comma-separated file globs; prefix with ! to exclude"},
			"case_insensitive":{"type":"boolean"}
		},"required":["pattern"]}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			q := grepQuery{}
			q.pattern, _ = args["pattern"].(string)
			q.path, _ = args["path"].(string)
			q.caseInsensitive, _ = args["case_insensitive"].(bool)
			if g, ok := args["globs"].(string); ok {
				q.globs = splitGlobs(g)
			}
			return grepImpl(ctx, runner, root, q)
		},
		Retryable: true,
	}
}
