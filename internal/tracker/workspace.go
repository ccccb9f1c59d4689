package tracker

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultMaxFiles caps the number of files a workspace snapshot records.
const DefaultMaxFiles = 5000

// DefaultExcludes are dependency, build and VCS directories never snapshotted.
var DefaultExcludes = []string{
	".git/",
	".sepilot/",
	"node_modules/",
	"dist/",
	"build/",
	"out/",
	".next/",
	".nuxt/",
	".turbo/",
	".cache/",
	"coverage/",
	"__pycache__/",
	".venv/",
	"venv/",
	"target/",
	".idea/",
	".vscode/",
}

// FileStamp is the cheap per-file fingerprint used for workspace diffs.
type FileStamp struct {
	Size    int64
	ModTime time.Time
}

// Workspace is a size+mtime snapshot of a directory tree, keyed by slash
// separated paths relative to Root.
type Workspace struct {
	Root      string
	Files     map[string]FileStamp
	Truncated bool
}

// SnapshotOptions tunes SnapshotWorkspace.
type SnapshotOptions struct {
	MaxFiles int
	Excludes []string // gitignore-style patterns; nil uses DefaultExcludes
}

// SnapshotWorkspace walks root and records size and mtime for each file.
func SnapshotWorkspace(root string, opts SnapshotOptions) (Workspace, error) {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	patterns := opts.Excludes
	if patterns == nil {
		patterns = DefaultExcludes
	}
	patterns = append(append([]string(nil), patterns...), readIgnoreFile(filepath.Join(root, ".gitignore"))...)
	matcher := gitignore.CompileIgnoreLines(patterns...)

	ws := Workspace{Root: root, Files: make(map[string]FileStamp)}
	errStop := errors.New("stop")
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if matcher.MatchesPath(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if matcher.MatchesPath(rel) {
			return nil
		}
		if len(ws.Files) >= opts.MaxFiles {
			ws.Truncated = true
			return errStop
		}
		info, ierr := d.Info()
		if ierr != nil {
			return nil
		}
		ws.Files[rel] = FileStamp{Size: info.Size(), ModTime: info.ModTime()}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return ws, err
	}
	return ws, nil
}

// DiffWorkspaces returns created or modified paths and deleted paths, sorted.
// A path missing from after only counts as deleted if it is really gone,
// since a capped snapshot may have skipped it.
func DiffWorkspaces(before, after Workspace) (modified, deleted []string) {
	for p, a := range after.Files {
		b, ok := before.Files[p]
		if !ok || b.Size != a.Size || !b.ModTime.Equal(a.ModTime) {
			if !ok && before.Truncated {
				// a capped snapshot cannot tell new files from unseen ones
				continue
			}
			modified = append(modified, p)
		}
	}
	for p := range before.Files {
		if _, ok := after.Files[p]; ok {
			continue
		}
		if after.Truncated {
			if _, err := os.Lstat(filepath.Join(after.Root, filepath.FromSlash(p))); err == nil {
				continue
			}
		}
		deleted = append(deleted, p)
	}
	sort.Strings(modified)
	sort.Strings(deleted)
	return modified, deleted
}

func readIgnoreFile(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
