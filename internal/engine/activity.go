package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ActivityEntry records one tool execution.
type ActivityEntry struct {
	ConversationID string         `json:"conversation_id"`
	ToolName       string         `json:"tool_name"`
	Args           map[string]any `json:"args,omitempty"`
	Result         string         `json:"result"`
	Status         string         `json:"status"` // "success" or "error"
	Duration       time.Duration  `json:"duration"`
	Time           time.Time      `json:"time"`
}

// ActivityLog is a best-effort sink. Record must return immediately and
// must never fail the turn; entries may be dropped under pressure.
type ActivityLog interface {
	Record(ActivityEntry)
}

// ActivityWriter persists entries synchronously.
type ActivityWriter interface {
	WriteActivity(ctx context.Context, e ActivityEntry) error
}

// AsyncActivityLog puts an ActivityWriter behind a buffered channel drained
// by one goroutine.
type AsyncActivityLog struct {
	w       ActivityWriter
	logger  *slog.Logger
	ch      chan ActivityEntry
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewAsyncActivityLog starts the drain goroutine. Call Close to flush.
func NewAsyncActivityLog(w ActivityWriter, buffer int, logger *slog.Logger) *AsyncActivityLog {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &AsyncActivityLog{w: w, logger: logger, ch: make(chan ActivityEntry, buffer), done: make(chan struct{})}
	go a.drain()
	return a
}

func (a *AsyncActivityLog) drain() {
	defer close(a.done)
	for e := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.w.WriteActivity(ctx, e); err != nil {
			a.logger.Warn("activity write failed", "tool", e.ToolName, "error", err)
		}
		cancel()
	}
}

// Record implements ActivityLog.
func (a *AsyncActivityLog) Record(e ActivityEntry) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.ch <- e:
	default:
		a.dropped.Add(1)
	}
}

// Dropped reports how many entries were discarded.
func (a *AsyncActivityLog) Dropped() int64 { return a.dropped.Load() }

// Close stops accepting entries and waits until the buffer is written or
// ctx is done.
func (a *AsyncActivityLog) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
