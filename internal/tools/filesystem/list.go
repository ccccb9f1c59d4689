package filesystem

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools"
)

const defaultListLimit = 1000

// DefaultIgnore is used when the caller passes no ignore patterns.
var DefaultIgnore = []string{".git/", "node_modules/", ".sepilot/"}

type listResult struct {
	Path      string   `json:"path"`
	Files     []string `json:"files"`
	Recursive bool     `json:"recursive"`
	Truncated bool     `json:"truncated"`
}

type listOptions struct {
	recursive bool
	maxDepth  int // -1 is unlimited
	limit     int
	ignore    []string
}

func listFilesImpl(fsys FileSystem, root, path string, opts listOptions) (string, error) {
	dir := filepath.Clean(root)
	if path != "" && path != "." {
		var err error
		if dir, err = tools.ResolvePath(root, path); err != nil {
			return "", err
		}
	}
	if opts.limit <= 0 {
		opts.limit = defaultListLimit
	}
	if len(opts.ignore) == 0 {
		opts.ignore = DefaultIgnore
	}
	matcher := gitignore.CompileIgnoreLines(opts.ignore...)
	ignored := func(rel string, isDir bool) bool {
		rel = filepath.ToSlash(rel)
		if isDir {
			return matcher.MatchesPath(rel + "/")
		}
		return matcher.MatchesPath(rel)
	}

	res := listResult{Path: path, Files: []string{}, Recursive: opts.recursive}

	if !opts.recursive {
		entries, err := fsys.ReadDir(dir)
		if err != nil {
			return "", err
		}
		for _, e := range entries {
			rel, err := filepath.Rel(root, filepath.Join(dir, e.Name()))
			if err != nil || ignored(rel, e.IsDir()) {
				continue
			}
			name := filepath.ToSlash(rel)
			if e.IsDir() {
				name += "/"
			}
			res.Files = append(res.Files, name)
			if len(res.Files) >= opts.limit {
				res.Truncated = true
				break
			}
		}
		return tools.ToJSON(res)
	}

	err := fsys.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || p == dir {
			return nil
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return nil
		}
		if ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if opts.maxDepth >= 0 {
			if fromDir, err := filepath.Rel(dir, p); err == nil && strings.Count(fromDir, string(filepath.Separator)) > opts.maxDepth {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		name := filepath.ToSlash(rel)
		if d.IsDir() {
			name += "/"
		}
		res.Files = append(res.Files, name)
		if len(res.Files) >= opts.limit {
			res.Truncated = true
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return tools.ToJSON(res)
}

// NewListFilesTool returns list_files. fsys may be nil.
func NewListFilesTool(root string, fsys FileSystem) tools.Tool {
	fsys = orOS(fsys)
	return tools.Tool{
		Name:        "list_files",
		Description: "Lists files and directories (directories end in /). Supports recursive listing with a depth limit and gitignore-style ignore patterns.",
		SchemaJSON: `{"type":"object","properties":{
			"path":{"type":"string","description":"Directory relative to the workspace root; empty for the root"},
			"recursive":{"type":"boolean"},
			"max_depth":{"type":"integer","description":"Depth limit for recursive listing; -1 is unlimited"},
			"limit":{"type":"integer","minimum":1},
			"ignore_patterns":{"type":"array","items":{"type":"string"}}
		}}`,
		Fn: func(_ context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			opts := listOptions{
				maxDepth: intArg(args, "max_depth", -1),
				limit:    intArg(args, "limit", defaultListLimit),
			}
			opts.recursive, _ = args["recursive"].(bool)
			if patterns, ok := args["ignore_patterns"].([]any); ok {
				for _, p := range patterns {
					if s, ok := p.(string); ok {
						opts.ignore = append(opts.ignore, s)
					}
				}
			}
			return listFilesImpl(fsys, root, path, opts)
		},
		Retryable: true,
	}
}
