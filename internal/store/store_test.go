package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/engine"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tracker"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestActivities(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	for i, name := range []string{"read_file", "grep", "run_command"} {
		err := db.WriteActivity(ctx, engine.ActivityEntry{
			ConversationID: "c1",
			ToolName:       name,
			Args:           map[string]any{"path": "main.go"},
			Result:         "ok",
			Status:         "success",
			Duration:       1500 * time.Millisecond,
			Time:           base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
	require.NoError(t, db.WriteActivity(ctx, engine.ActivityEntry{ConversationID: "c2", ToolName: "grep", Status: "error"}))

	all, err := db.Activities(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "read_file", all[0].ToolName)
	assert.Equal(t, "main.go", all[0].Args["path"])
	assert.Equal(t, 1500*time.Millisecond, all[0].Duration)

	last, err := db.Activities(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "grep", last[0].ToolName)
	assert.Equal(t, "run_command", last[1].ToolName)

	other, err := db.Activities(ctx, "c2", 10)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "error", other[0].Status)
}

func TestCheckpointRoundTripAndRestore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	dir := t.TempDir()

	edited := filepath.Join(dir, "edited.txt")
	require.NoError(t, os.WriteFile(edited, []byte("original"), 0o644))
	created := filepath.Join(dir, "created.txt")

	tr := tracker.New("c1", db)
	for _, p := range []string{edited, created} {
		before, err := tr.TrackBeforeModify(p)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(p, []byte("changed"), 0o644))
		_, err = tr.TrackAfterModify(p, before)
		require.NoError(t, err)
	}
	cp, err := tr.CreateRollbackPoint(ctx, "after write_file")
	require.NoError(t, err)

	loaded, err := db.Checkpoint(ctx, cp.ID)
	require.NoError(t, err)
	assert.Equal(t, "c1", loaded.ConversationID)
	assert.Equal(t, "after write_file", loaded.Label)
	require.Len(t, loaded.Changes, 2)
	assert.Equal(t, tracker.ChangeModified, loaded.Changes[0].Kind)
	assert.Equal(t, []byte("original"), loaded.Changes[0].Before.Content)
	assert.Equal(t, tracker.ChangeCreated, loaded.Changes[1].Kind)
	assert.False(t, loaded.Changes[1].Before.Exists)

	require.NoError(t, tracker.Restore(loaded))
	data, err := os.ReadFile(edited)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
	assert.NoFileExists(t, created)

	list, err := db.ListCheckpoints(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, cp.ID, list[0].ID)
	assert.Equal(t, 2, list[0].Files)
}

func TestCheckpointNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Checkpoint(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveCheckpointDuplicateRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	cp := tracker.Checkpoint{
		ID:             "cp-1",
		ConversationID: "c1",
		Label:          "first",
		CreatedAt:      time.Now(),
		Changes:        []tracker.Change{{Path: "a.go", Kind: tracker.ChangeCreated}},
	}
	require.NoError(t, db.SaveCheckpoint(ctx, cp))
	assert.Error(t, db.SaveCheckpoint(ctx, cp))

	list, err := db.ListCheckpoints(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].Files)
}
