package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/engine"
)

// WriteActivity inserts one activity row. It implements
// engine.ActivityWriter.
func (d *DB) WriteActivity(ctx context.Context, e engine.ActivityEntry) error {
	args, err := json.Marshal(e.Args)
	if err != nil {
		args = []byte("{}")
	}
	at := e.Time
	if at.IsZero() {
		at = time.Now()
	}
	query := `
		INSERT INTO activities (conversation_id, tool_name, args_json, result, status, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = d.db.ExecContext(ctx, query, e.ConversationID, e.ToolName, string(args), e.Result, e.Status, e.Duration.Milliseconds(), at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

// Activities returns the most recent activities of a conversation, oldest
// first. limit <= 0 means no limit.
func (d *DB) Activities(ctx context.Context, conversationID string, limit int) ([]engine.ActivityEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT conversation_id, tool_name, args_json, result, status, duration_ms, created_at FROM (
			SELECT * FROM activities WHERE conversation_id = ?
			ORDER BY created_at DESC, activity_id DESC LIMIT ?
		) ORDER BY created_at, activity_id
	`
	rows, err := d.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var out []engine.ActivityEntry
	for rows.Next() {
		var e engine.ActivityEntry
		var args string
		var durMS, atMS int64
		if err := rows.Scan(&e.ConversationID, &e.ToolName, &args, &e.Result, &e.Status, &durMS, &atMS); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		if err := json.Unmarshal([]byte(args), &e.Args); err != nil {
			e.Args = nil
		}
		e.Duration = time.Duration(durMS) * time.Millisecond
		e.Time = time.UnixMilli(atMS)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}
	return out, nil
}
