package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/analyzer"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestChunkLines(t *testing.T) {
	tests := []struct {
		name    string
		content string
		size    int
		want    [][2]int
	}{
		{"empty", "", 4, nil},
		{"single short", "a\nb\n", 4, [][2]int{{1, 2}}},
		{"hard split", "1\n2\n3\n4\n5\n6\n7\n8\n9\n", 4, [][2]int{{1, 4}, {5, 8}, {9, 9}}},
		{"split at blank after half", "a\nb\n\nc\nd\ne\n", 4, [][2]int{{1, 3}, {4, 6}}},
		{"blank only dropped", "\n\n\n\n\n", 4, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got [][2]int
			for _, c := range ChunkLines("f.txt", []byte(tt.content), tt.size) {
				got = append(got, [2]int{c.StartLine, c.EndLine})
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChunkIDsStable(t *testing.T) {
	a := ChunkLines("x.go", []byte("package x\n"), 40)
	b := ChunkLines("x.go", []byte("package y\n"), 40)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].ID, b[0].ID)
	assert.NotEqual(t, a[0].ID, ChunkLines("y.go", []byte("package x\n"), 40)[0].ID)
}

func TestRetrieveContext(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"internal/auth/login.go": "package auth\n\nfunc Login(user, password string) error {\n\treturn checkPassword(user, password)\n}\n",
		"internal/cart/cart.go":  "package cart\n\nfunc Total(items []int) int {\n\treturn 0\n}\n",
		"README.md":              "# demo\n",
		"node_modules/x/auth.js": "password password password\n",
		"image.bin":              "\x00\x01password",
	})

	idx := New(analyzer.New(root), Options{}, nil)
	t.Cleanup(func() { idx.Close() })

	hits, err := idx.Search(context.Background(), "password check", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "internal/auth/login.go", hits[0].Path)
	for _, h := range hits {
		assert.NotContains(t, h.Path, "node_modules")
		assert.NotEqual(t, "image.bin", h.Path)
	}

	out, err := idx.RetrieveContext(context.Background(), "login password")
	require.NoError(t, err)
	assert.Contains(t, out, "--- internal/auth/login.go:1-5 ---")
	assert.Contains(t, out, "checkPassword")

	out, err = idx.RetrieveContext(context.Background(), "zzzunmatched")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestIndexRebuildsAfterInvalidate(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.go": "package a\n"})
	az := analyzer.New(root)
	idx := New(az, Options{}, nil)
	t.Cleanup(func() { idx.Close() })

	hits, err := idx.Search(context.Background(), "invoice", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	writeFiles(t, root, map[string]string{"billing/invoice.go": "package billing\n\ntype Invoice struct{}\n"})
	hits, err = idx.Search(context.Background(), "invoice", 5)
	require.NoError(t, err)
	assert.Empty(t, hits, "stale until the analyzer is invalidated")

	az.Invalidate()
	hits, err = idx.Search(context.Background(), "invoice", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "billing/invoice.go", hits[0].Path)
}

func TestRetrieveContextCapsSize(t *testing.T) {
	root := t.TempDir()
	body := strings.Repeat("token widget\n", 30)
	writeFiles(t, root, map[string]string{"a.txt": body, "b.txt": body, "c.txt": body})

	idx := New(analyzer.New(root), Options{MaxContextChars: 500}, nil)
	t.Cleanup(func() { idx.Close() })

	out, err := idx.RetrieveContext(context.Background(), "widget")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), 500)
}
