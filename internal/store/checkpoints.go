package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tracker"
)

// ErrNotFound is returned when a checkpoint does not exist.
var ErrNotFound = errors.New("store: not found")

// SaveCheckpoint persists cp and its changes in one transaction. It
// implements tracker.CheckpointStore.
func (d *DB) SaveCheckpoint(ctx context.Context, cp tracker.Checkpoint) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (checkpoint_id, conversation_id, label, created_at) VALUES (?, ?, ?, ?)`,
		cp.ID, cp.ConversationID, cp.Label, cp.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}

	query := `
		INSERT INTO checkpoint_changes (checkpoint_id, seq, path, kind, before_exists, before_hash, before_content, before_truncated, after_exists, after_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i, c := range cp.Changes {
		_, err = tx.ExecContext(ctx, query, cp.ID, i, c.Path, string(c.Kind),
			boolInt(c.Before.Exists), c.Before.Hash, c.Before.Content, boolInt(c.Before.Truncated),
			boolInt(c.After.Exists), c.After.Hash)
		if err != nil {
			return fmt.Errorf("failed to insert change %s: %w", c.Path, err)
		}
	}
	return tx.Commit()
}

// Checkpoint loads one checkpoint with its changes.
func (d *DB) Checkpoint(ctx context.Context, id string) (tracker.Checkpoint, error) {
	cp := tracker.Checkpoint{ID: id}
	var createdMS int64
	err := d.db.QueryRowContext(ctx,
		`SELECT conversation_id, label, created_at FROM checkpoints WHERE checkpoint_id = ?`, id,
	).Scan(&cp.ConversationID, &cp.Label, &createdMS)
	if errors.Is(err, sql.ErrNoRows) {
		return cp, fmt.Errorf("checkpoint %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return cp, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	cp.CreatedAt = time.UnixMilli(createdMS)

	rows, err := d.db.QueryContext(ctx, `
		SELECT path, kind, before_exists, before_hash, before_content, before_truncated, after_exists, after_hash
		FROM checkpoint_changes WHERE checkpoint_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return cp, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c tracker.Change
		var kind string
		var beforeExists, truncated, afterExists int
		var beforeHash, afterHash sql.NullString
		var content []byte
		if err := rows.Scan(&c.Path, &kind, &beforeExists, &beforeHash, &content, &truncated, &afterExists, &afterHash); err != nil {
			return cp, fmt.Errorf("failed to scan change: %w", err)
		}
		c.Kind = tracker.ChangeKind(kind)
		c.Before = tracker.Snapshot{Path: c.Path, Exists: beforeExists == 1, Hash: beforeHash.String, Content: content, Truncated: truncated == 1}
		c.After = tracker.Snapshot{Path: c.Path, Exists: afterExists == 1, Hash: afterHash.String}
		cp.Changes = append(cp.Changes, c)
	}
	return cp, rows.Err()
}

// CheckpointSummary is a checkpoint header for listings.
type CheckpointSummary struct {
	ID        string
	Label     string
	Files     int
	CreatedAt time.Time
}

// ListCheckpoints returns the checkpoints of a conversation, newest first.
func (d *DB) ListCheckpoints(ctx context.Context, conversationID string) ([]CheckpointSummary, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT c.checkpoint_id, c.label, c.created_at, COUNT(ch.seq)
		FROM checkpoints c LEFT JOIN checkpoint_changes ch ON ch.checkpoint_id = c.checkpoint_id
		WHERE c.conversation_id = ?
		GROUP BY c.checkpoint_id
		ORDER BY c.created_at DESC, c.rowid DESC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []CheckpointSummary
	for rows.Next() {
		var s CheckpointSummary
		var createdMS int64
		if err := rows.Scan(&s.ID, &s.Label, &createdMS, &s.Files); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		s.CreatedAt = time.UnixMilli(createdMS)
		out = append(out, s)
	}
	return out, rows.Err()
}
