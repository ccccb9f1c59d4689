// Package tracker records file state around modifications so that changes
// can be audited and grouped into rollback points.
package tracker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxContentBytes bounds how much original content a snapshot keeps for undo.
const maxContentBytes = 1 << 20

// ChangeKind describes how a file changed between two snapshots.
type ChangeKind string

const (
	ChangeCreated   ChangeKind = "created"
	ChangeModified  ChangeKind = "modified"
	ChangeDeleted   ChangeKind = "deleted"
	ChangeUnchanged ChangeKind = "unchanged"
)

// Snapshot is a file's state at one point in time.
type Snapshot struct {
	Path    string
	Exists  bool
	Size    int64
	ModTime time.Time
	Hash    string
	// Content holds the original bytes when the file is small enough.
	Content   []byte
	Truncated bool
	TakenAt   time.Time
}

// Change is the reconciled delta for one path.
type Change struct {
	Path   string
	Kind   ChangeKind
	Before Snapshot
	After  Snapshot
}

// Checkpoint groups the changes made since the previous checkpoint.
type Checkpoint struct {
	ID             string
	ConversationID string
	Label          string
	Changes        []Change
	CreatedAt      time.Time
}

// CheckpointStore persists checkpoints. Implementations must be safe for
// concurrent use.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
}

// Tracker is safe for concurrent use by parallel tool calls.
type Tracker struct {
	conversationID string
	store          CheckpointStore

	mu          sync.Mutex
	pending     []Change
	checkpoints []Checkpoint
}

// New creates a tracker scoped to one conversation. store may be nil.
func New(conversationID string, store CheckpointStore) *Tracker {
	return &Tracker{conversationID: conversationID, store: store}
}

// TrackBeforeModify snapshots path. It never blocks the write that follows;
// a missing file is a valid snapshot.
func (t *Tracker) TrackBeforeModify(path string) (Snapshot, error) {
	return takeSnapshot(path, true)
}

// TrackAfterModify reconciles path against before and records the delta.
func (t *Tracker) TrackAfterModify(path string, before Snapshot) (Change, error) {
	after, err := takeSnapshot(path, false)
	if err != nil {
		return Change{}, err
	}
	c := Change{Path: path, Kind: classify(before, after), Before: before, After: after}
	if c.Kind != ChangeUnchanged {
		t.mu.Lock()
		t.pending = append(t.pending, c)
		t.mu.Unlock()
	}
	return c, nil
}

// Pending returns changes not yet folded into a checkpoint.
func (t *Tracker) Pending() []Change {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Change(nil), t.pending...)
}

// CreateRollbackPoint folds pending changes into a named checkpoint.
// With nothing pending it returns a checkpoint with no changes and does not
// persist it.
func (t *Tracker) CreateRollbackPoint(ctx context.Context, label string) (Checkpoint, error) {
	t.mu.Lock()
	cp := Checkpoint{
		ID:             uuid.NewString(),
		ConversationID: t.conversationID,
		Label:          label,
		Changes:        t.pending,
		CreatedAt:      time.Now(),
	}
	t.pending = nil
	if len(cp.Changes) > 0 {
		t.checkpoints = append(t.checkpoints, cp)
	}
	t.mu.Unlock()

	if len(cp.Changes) == 0 || t.store == nil {
		return cp, nil
	}
	if err := t.store.SaveCheckpoint(ctx, cp); err != nil {
		return cp, fmt.Errorf("save checkpoint %s: %w", cp.ID, err)
	}
	return cp, nil
}

// Checkpoints returns the checkpoints created so far, oldest first.
func (t *Tracker) Checkpoints() []Checkpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Checkpoint(nil), t.checkpoints...)
}

// Restore writes the pre-change content of every change in cp back to disk,
// newest change first. Files that did not exist before are removed.
func Restore(cp Checkpoint) error {
	var errs []error
	for i := len(cp.Changes) - 1; i >= 0; i-- {
		c := cp.Changes[i]
		switch {
		case !c.Before.Exists:
			if err := os.Remove(c.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
		case c.Before.Truncated:
			errs = append(errs, fmt.Errorf("%s: original content too large to restore", c.Path))
		default:
			if err := os.WriteFile(c.Path, c.Before.Content, 0o644); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func takeSnapshot(path string, keepContent bool) (Snapshot, error) {
	s := Snapshot{Path: path, TakenAt: time.Now()}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return s, fmt.Errorf("%s is a directory", path)
	}
	s.Exists = true
	s.Size = info.Size()
	s.ModTime = info.ModTime()

	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	s.Hash = hex.EncodeToString(sum[:])
	if keepContent {
		if len(data) <= maxContentBytes {
			s.Content = data
		} else {
			s.Truncated = true
		}
	}
	return s, nil
}

func classify(before, after Snapshot) ChangeKind {
	switch {
	case !before.Exists && after.Exists:
		return ChangeCreated
	case before.Exists && !after.Exists:
		return ChangeDeleted
	case !before.Exists && !after.Exists:
		return ChangeUnchanged
	case before.Hash != after.Hash:
		return ChangeModified
	default:
		return ChangeUnchanged
	}
}
