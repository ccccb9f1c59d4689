package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/selector"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tracker"
)

// toolsNode runs the approved batch concurrently and records what changed
// in the workspace. Results are appended in call order.
func (e *Engine) toolsNode(ctx context.Context, r *run) error {
	st, root := r.st, r.turn.WorkingDirectory
	calls := st.ToolCalls

	var before tracker.Workspace
	haveBefore := false
	if root != "" {
		ws, err := tracker.SnapshotWorkspace(root, e.cfg.Snapshot)
		if err != nil {
			e.logger.WarnContext(ctx, "workspace snapshot failed", "error", err)
		} else {
			before, haveBefore = ws, true
		}
	}

	tr := tracker.New(st.ConversationID, e.d.Checkpoints)
	results := make([]message.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call message.ToolCall) {
			defer wg.Done()
			results[i] = e.invokeTracked(ctx, r, tr, root, call)
		}(i, call)
	}
	wg.Wait()

	if err := e.checkAbort(ctx, r); err != nil {
		// keep the transcript paired even when the turn stops here
		for _, res := range results {
			st.Append(message.Tool(res))
		}
		return err
	}

	data := ToolsData{Results: results}
	if len(tr.Pending()) > 0 {
		cp, err := tr.CreateRollbackPoint(ctx, fmt.Sprintf("iteration %d", st.IterationCount))
		if err != nil {
			e.logger.WarnContext(ctx, "rollback point not saved", "error", err)
		}
		if len(cp.Changes) > 0 {
			data.CheckpointID = cp.ID
		}
		for _, c := range cp.Changes {
			rel := relPath(root, c.Path)
			if c.Kind == tracker.ChangeDeleted {
				data.DeletedFiles = appendUnique(data.DeletedFiles, rel)
			} else {
				data.ModifiedFiles = appendUnique(data.ModifiedFiles, rel)
			}
		}
	}
	if haveBefore {
		if after, err := tracker.SnapshotWorkspace(root, e.cfg.Snapshot); err != nil {
			e.logger.WarnContext(ctx, "workspace snapshot failed", "error", err)
		} else {
			modified, deleted := tracker.DiffWorkspaces(before, after)
			data.ModifiedFiles = appendUnique(data.ModifiedFiles, modified...)
			data.DeletedFiles = appendUnique(data.DeletedFiles, deleted...)
		}
	}
	sort.Strings(data.ModifiedFiles)
	sort.Strings(data.DeletedFiles)

	st.ModifiedFiles = appendUnique(removeAll(st.ModifiedFiles, data.DeletedFiles), data.ModifiedFiles...)
	st.DeletedFiles = appendUnique(removeAll(st.DeletedFiles, data.ModifiedFiles), data.DeletedFiles...)
	st.FileChangesCount += len(data.ModifiedFiles) + len(data.DeletedFiles)
	st.LastModified = data.ModifiedFiles

	for _, res := range results {
		st.Append(message.Tool(res))
	}
	st.ToolResults = results
	st.ToolsExecuted += len(results)
	st.LastToolCount = len(results)

	data.Redundant = selector.DetectRedundantCalls(calls)
	data.Suggestions = selector.SuggestOptimization(calls)
	r.emit(EventNode, NodeTools, data)
	return nil
}

// invokeTracked runs one call, bracketing workspace writes with tracker
// snapshots.
func (e *Engine) invokeTracked(ctx context.Context, r *run, tr *tracker.Tracker, root string, call message.ToolCall) message.ToolResult {
	e.d.Hooks.OnToolCall(ctx, r.st, call)

	var (
		tracked string
		snap    tracker.Snapshot
	)
	if t, ok := e.d.Catalog.Builtin[call.Name]; ok && t.Modifies && t.PathArg != "" && root != "" {
		if abs, err := tools.ResolvePath(root, call.StringArg(t.PathArg)); err == nil {
			if s, err := tr.TrackBeforeModify(abs); err == nil {
				tracked, snap = abs, s
			}
		}
	}

	out := e.invoker.Invoke(ctx, call)
	if tracked != "" {
		if _, err := tr.TrackAfterModify(tracked, snap); err != nil {
			e.logger.DebugContext(ctx, "change tracking failed", "path", tracked, "error", err)
		}
	}
	res := out.ToolResult()
	e.d.Selector.RecordResult(res)

	if e.d.Activity != nil {
		entry := ActivityEntry{
			ConversationID: r.st.ConversationID,
			ToolName:       call.Name,
			Args:           call.Args,
			Result:         res.Result,
			Status:         "success",
			Duration:       res.Duration,
			Time:           time.Now(),
		}
		if res.Failed() {
			entry.Status, entry.Result = "error", res.Error
		}
		e.d.Activity.Record(entry)
	}
	e.d.Hooks.OnToolResult(ctx, r.st, res)
	return res
}

func relPath(root, p string) string {
	if root == "" {
		return filepath.ToSlash(p)
	}
	if rel, err := filepath.Rel(root, p); err == nil {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(p)
}

func removeAll(list, drop []string) []string {
	if len(drop) == 0 {
		return list
	}
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}
	out := list[:0:0]
	for _, s := range list {
		if !skip[s] {
			out = append(out, s)
		}
	}
	return out
}
