package tracker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu    sync.Mutex
	saved []Checkpoint
	err   error
}

func (m *memStore) SaveCheckpoint(_ context.Context, cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, cp)
	return nil
}

func TestTrackModifyLifecycle(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(existing, []byte("one"), 0o644))
	created := filepath.Join(dir, "b.txt")
	removed := filepath.Join(dir, "c.txt")
	require.NoError(t, os.WriteFile(removed, []byte("bye"), 0o644))

	store := &memStore{}
	tr := New("conv-1", store)

	tests := []struct {
		path   string
		mutate func(string) error
		want   ChangeKind
	}{
		{existing, func(p string) error { return os.WriteFile(p, []byte("two"), 0o644) }, ChangeModified},
		{created, func(p string) error { return os.WriteFile(p, []byte("new"), 0o644) }, ChangeCreated},
		{removed, os.Remove, ChangeDeleted},
	}
	for _, tt := range tests {
		before, err := tr.TrackBeforeModify(tt.path)
		require.NoError(t, err)
		require.NoError(t, tt.mutate(tt.path))
		change, err := tr.TrackAfterModify(tt.path, before)
		require.NoError(t, err)
		assert.Equal(t, tt.want, change.Kind, tt.path)
	}

	assert.Len(t, tr.Pending(), 3)
	cp, err := tr.CreateRollbackPoint(context.Background(), "after edits")
	require.NoError(t, err)
	assert.NotEmpty(t, cp.ID)
	assert.Equal(t, "conv-1", cp.ConversationID)
	assert.Len(t, cp.Changes, 3)
	assert.Empty(t, tr.Pending())
	assert.Len(t, store.saved, 1)
	assert.Len(t, tr.Checkpoints(), 1)

	require.NoError(t, Restore(cp))
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
	_, err = os.Stat(created)
	assert.True(t, os.IsNotExist(err))
	data, err = os.ReadFile(removed)
	require.NoError(t, err)
	assert.Equal(t, "bye", string(data))
}

func TestUnchangedFileIsNotPending(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "same.txt")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	tr := New("conv", nil)
	before, err := tr.TrackBeforeModify(p)
	require.NoError(t, err)
	change, err := tr.TrackAfterModify(p, before)
	require.NoError(t, err)
	assert.Equal(t, ChangeUnchanged, change.Kind)

	cp, err := tr.CreateRollbackPoint(context.Background(), "noop")
	require.NoError(t, err)
	assert.Empty(t, cp.Changes)
	assert.Empty(t, tr.Checkpoints())
}

func TestRollbackPointStoreFailure(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f.txt")
	tr := New("conv", &memStore{err: errors.New("disk full")})
	before, _ := tr.TrackBeforeModify(p)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	_, err := tr.TrackAfterModify(p, before)
	require.NoError(t, err)

	cp, err := tr.CreateRollbackPoint(context.Background(), "x")
	assert.Error(t, err)
	assert.Len(t, cp.Changes, 1)
}

func TestWorkspaceDiff(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) {
		p := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	write("src/app.ts", "a")
	write("src/old.ts", "b")
	write("node_modules/pkg/index.js", "c")
	write("README.md", "d")

	before, err := SnapshotWorkspace(dir, SnapshotOptions{})
	require.NoError(t, err)
	assert.NotContains(t, before.Files, "node_modules/pkg/index.js")
	assert.Contains(t, before.Files, "src/app.ts")

	write("src/app.ts", "changed content")
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "src/app.ts"), future, future))
	write("src/new.ts", "e")
	require.NoError(t, os.Remove(filepath.Join(dir, "src/old.ts")))
	write("node_modules/pkg/other.js", "f")

	after, err := SnapshotWorkspace(dir, SnapshotOptions{})
	require.NoError(t, err)
	modified, deleted := DiffWorkspaces(before, after)
	assert.Equal(t, []string{"src/app.ts", "src/new.ts"}, modified)
	assert.Equal(t, []string{"src/old.ts"}, deleted)
}

func TestSnapshotHonoursCap(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a", "b", "c", "d"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(n), 0o644))
	}
	ws, err := SnapshotWorkspace(dir, SnapshotOptions{MaxFiles: 2})
	require.NoError(t, err)
	assert.Len(t, ws.Files, 2)
	assert.True(t, ws.Truncated)
}

func TestSnapshotReadsGitignore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*.log\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "debug.log"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("x"), 0o644))
	ws, err := SnapshotWorkspace(dir, SnapshotOptions{})
	require.NoError(t, err)
	assert.NotContains(t, ws.Files, "debug.log")
	assert.Contains(t, ws.Files, "main.go")
}
