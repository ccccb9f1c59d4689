package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func sampleRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/app.ts":                     "export {}",
		"src/components/UserProfile.tsx": "export {}",
		"lib/utils.go":                   "package lib",
		"README.md":                      "# repo",
		"node_modules/x/index.js":        "",
		"dist/out.js":                    "",
		"debug.log":                      "",
		"secret/key.txt":                 "",
		".gitignore":                     "*.log\nsecret/\n",
	})
	return root
}

func paths(st Structure) []string {
	var out []string
	for _, e := range st.Entries {
		out = append(out, e.Path)
	}
	return out
}

func TestAnalyzeStructureSkipsIgnored(t *testing.T) {
	root := sampleRepo(t)
	st, err := AnalyzeStructure(root, 0)
	require.NoError(t, err)

	got := paths(st)
	assert.Contains(t, got, "src/app.ts")
	assert.Contains(t, got, "src/components/UserProfile.tsx")
	assert.Contains(t, got, "lib/utils.go")
	for _, p := range got {
		assert.NotContains(t, p, "node_modules")
		assert.NotContains(t, p, "dist")
		assert.NotContains(t, p, "secret")
		assert.NotEqual(t, "debug.log", p)
	}
	assert.False(t, st.Truncated)

	for _, e := range st.Entries {
		if e.Path == "src/app.ts" {
			assert.Equal(t, ".ts", e.Ext)
			assert.Equal(t, 2, e.Depth)
			assert.False(t, e.Dir)
		}
	}
}

func TestAnalyzeStructureCaps(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a/b/c/d.txt": "",
		"a/one.txt":   "",
		"two.txt":     "",
	})

	t.Run("depth", func(t *testing.T) {
		st, err := AnalyzeStructure(root, 2)
		require.NoError(t, err)
		for _, e := range st.Entries {
			assert.LessOrEqual(t, e.Depth, 2, e.Path)
		}
		assert.Contains(t, paths(st), "a/b")
		assert.NotContains(t, paths(st), "a/b/c")
	})

	t.Run("entries", func(t *testing.T) {
		st, err := AnalyzeStructureWithLimits(root, Limits{MaxEntries: 2})
		require.NoError(t, err)
		assert.Len(t, st.Entries, 2)
		assert.True(t, st.Truncated)
	})

	t.Run("not a directory", func(t *testing.T) {
		_, err := AnalyzeStructure(filepath.Join(root, "two.txt"), 1)
		assert.Error(t, err)
	})
}

func TestRecommendFiles(t *testing.T) {
	st, err := AnalyzeStructure(sampleRepo(t), 0)
	require.NoError(t, err)

	tests := []struct {
		name   string
		prompt string
		topN   int
		first  string
		empty  bool
	}{
		{name: "explicit path", prompt: "fix the bug in src/app.ts", topN: 5, first: "src/app.ts"},
		{name: "camel case parts", prompt: "update the user profile component", topN: 3, first: "src/components/UserProfile.tsx"},
		{name: "stem match", prompt: "refactor utils", topN: 1, first: "lib/utils.go"},
		{name: "no terms", prompt: "", topN: 5, empty: true},
		{name: "zero top", prompt: "app", topN: 0, empty: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecommendFiles(tt.prompt, st, tt.topN)
			if tt.empty {
				assert.Empty(t, got)
				return
			}
			require.NotEmpty(t, got)
			assert.Equal(t, tt.first, got[0])
			assert.LessOrEqual(t, len(got), tt.topN)
		})
	}
}

func TestSplitIdentifier(t *testing.T) {
	tests := map[string][]string{
		"UserProfile":   {"user", "profile"},
		"snake_case_id": {"snake", "case", "id"},
		"kebab-name":    {"kebab", "name"},
		"HTTPServer":    {"http", "server"},
		"plain":         {"plain"},
	}
	for in, want := range tests {
		assert.Equal(t, want, splitIdentifier(in), in)
	}
}

func TestAnalyzerCachesAndInvalidates(t *testing.T) {
	root := sampleRepo(t)
	a := New(root)

	_, err := a.Structure()
	require.NoError(t, err)
	_, err = a.Structure()
	require.NoError(t, err)
	assert.Equal(t, 1, a.builds)

	a.Invalidate()
	recs, err := a.Recommend("src/app.ts", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/app.ts"}, recs)
	assert.Equal(t, 2, a.builds)
}

func TestAnalyzerWatchInvalidatesOnCreate(t *testing.T) {
	root := sampleRepo(t)
	a := New(root, WithDebounce(20*time.Millisecond))
	_, err := a.Structure()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx) }()
	time.Sleep(150 * time.Millisecond)

	writeFiles(t, root, map[string]string{"src/new_feature.ts": ""})

	assert.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.cached == nil
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
