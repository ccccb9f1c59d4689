package analyzer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Analyzer caches the structure of one workspace and drops the cache when
// files are created, removed or renamed underneath it.
type Analyzer struct {
	root     string
	limits   Limits
	logger   *slog.Logger
	debounce time.Duration

	mu     sync.Mutex
	cached *Structure
	builds int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLimits overrides the walk caps.
func WithLimits(l Limits) Option {
	return func(a *Analyzer) { a.limits = l }
}

// WithLogger sets the logger used by Watch.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithDebounce sets how long Watch batches events before invalidating.
func WithDebounce(d time.Duration) Option {
	return func(a *Analyzer) { a.debounce = d }
}

// New returns an analyzer rooted at root.
func New(root string, opts ...Option) *Analyzer {
	a := &Analyzer{
		root:     root,
		logger:   slog.New(slog.NewTextHandler(os.Stderr, nil)),
		debounce: 300 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Root returns the analyzed directory.
func (a *Analyzer) Root() string { return a.root }

// Structure returns the cached index, building it on first use.
func (a *Analyzer) Structure() (Structure, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cached != nil {
		return *a.cached, nil
	}
	st, err := AnalyzeStructureWithLimits(a.root, a.limits)
	if err != nil {
		return Structure{}, err
	}
	a.cached = &st
	a.builds++
	return st, nil
}

// Builds reports how many times the structure has been walked. It changes
// after an invalidation is followed by a call to Structure.
func (a *Analyzer) Builds() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.builds
}

// Recommend returns up to topN files relevant to prompt.
func (a *Analyzer) Recommend(prompt string, topN int) ([]string, error) {
	st, err := a.Structure()
	if err != nil {
		return nil, err
	}
	return RecommendFiles(prompt, st, topN), nil
}

// Invalidate drops the cached structure.
func (a *Analyzer) Invalidate() {
	a.mu.Lock()
	a.cached = nil
	a.mu.Unlock()
}

// Watch invalidates the cache on structural filesystem changes until ctx is
// done. It blocks; run it in its own goroutine.
func (a *Analyzer) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	matcher := newIgnoreMatcher(a.root)
	err = filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != a.root {
			rel, _ := filepath.Rel(a.root, path)
			if isSkipDir(d.Name()) || matcher.MatchesPath(filepath.ToSlash(rel)+"/") {
				return filepath.SkipDir
			}
		}
		if err := w.Add(path); err != nil {
			a.logger.Warn("watch directory", "path", path, "error", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", a.root, err)
	}

	ticker := time.NewTicker(a.debounce)
	defer ticker.Stop()
	dirty := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !isSkipDir(info.Name()) {
					if err := w.Add(ev.Name); err != nil {
						a.logger.Warn("watch new directory", "path", ev.Name, "error", err)
					}
				}
			}
			dirty = true
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("watcher error", "error", err)
		case <-ticker.C:
			if dirty {
				dirty = false
				a.Invalidate()
				a.logger.Debug("workspace structure changed", "root", a.root)
			}
		}
	}
}
