// Package analyzer builds a shallow index of a workspace and recommends
// files relevant to a natural-language request.
package analyzer

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

const (
	// DefaultMaxDepth bounds how deep AnalyzeStructure descends.
	DefaultMaxDepth = 6
	// DefaultMaxEntries bounds how many entries AnalyzeStructure records.
	DefaultMaxEntries = 8000
)

// SkipDirs are dependency, build and VCS directories that are never indexed.
var SkipDirs = []string{
	".git",
	".svn",
	".hg",
	"node_modules",
	"dist",
	"build",
	"out",
	"vendor",
	"__pycache__",
	"coverage",
	".next",
	".nuxt",
	".cache",
	".turbo",
	"target",
	"bin",
	"obj",
	".venv",
	"venv",
	".idea",
	".vscode",
}

// Entry is one file or directory in the index.
type Entry struct {
	Path  string // slash separated, relative to Root
	Name  string
	Ext   string
	Dir   bool
	Depth int // 1 for entries directly under Root
	Size  int64
}

// Structure is a shallow workspace index.
type Structure struct {
	Root      string
	Entries   []Entry
	Truncated bool
}

// Files returns only the file entries.
func (s Structure) Files() []Entry {
	out := make([]Entry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if !e.Dir {
			out = append(out, e)
		}
	}
	return out
}

// Limits caps a walk.
type Limits struct {
	MaxDepth   int
	MaxEntries int
}

// AnalyzeStructure indexes root down to maxDepth with the default entry cap.
func AnalyzeStructure(root string, maxDepth int) (Structure, error) {
	return AnalyzeStructureWithLimits(root, Limits{MaxDepth: maxDepth})
}

// AnalyzeStructureWithLimits indexes root honouring both caps. Skipped
// directories and .gitignore matches are left out.
func AnalyzeStructureWithLimits(root string, lim Limits) (Structure, error) {
	if lim.MaxDepth <= 0 {
		lim.MaxDepth = DefaultMaxDepth
	}
	if lim.MaxEntries <= 0 {
		lim.MaxEntries = DefaultMaxEntries
	}
	info, err := os.Stat(root)
	if err != nil {
		return Structure{}, err
	}
	if !info.IsDir() {
		return Structure{}, errors.New(root + " is not a directory")
	}

	matcher := newIgnoreMatcher(root)
	st := Structure{Root: root}
	errFull := errors.New("entry cap reached")

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		depth := strings.Count(rel, "/") + 1

		if d.IsDir() {
			if isSkipDir(d.Name()) || matcher.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
		} else if matcher.MatchesPath(rel) {
			return nil
		}
		if depth > lim.MaxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if len(st.Entries) >= lim.MaxEntries {
			st.Truncated = true
			return errFull
		}

		e := Entry{Path: rel, Name: d.Name(), Dir: d.IsDir(), Depth: depth}
		if !e.Dir {
			e.Ext = strings.ToLower(filepath.Ext(e.Name))
			if fi, ierr := d.Info(); ierr == nil {
				e.Size = fi.Size()
			}
		}
		st.Entries = append(st.Entries, e)
		return nil
	})
	if err != nil && !errors.Is(err, errFull) {
		return st, err
	}
	return st, nil
}

func isSkipDir(name string) bool {
	for _, s := range SkipDirs {
		if name == s {
			return true
		}
	}
	return false
}

func newIgnoreMatcher(root string) *gitignore.GitIgnore {
	var lines []string
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err == nil {
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			lines = append(lines, sc.Text())
		}
	}
	return gitignore.CompileIgnoreLines(lines...)
}
