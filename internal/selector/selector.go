// Package selector keeps per-tool usage statistics across a session and
// inspects tool-call batches for redundant or batchable calls.
package selector

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
)

// Stats are the accumulated numbers for one tool.
type Stats struct {
	Calls         int
	Successes     int
	Failures      int
	TotalDuration time.Duration
	LastError     string
	LastUsed      time.Time
}

// SuccessRate returns successes / calls, or 0 when unused.
func (s Stats) SuccessRate() float64 {
	if s.Calls == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Calls)
}

// AvgDuration returns the mean call duration.
func (s Stats) AvgDuration() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Calls)
}

// Selector is shared across turns and conversations and is safe for
// concurrent use.
type Selector struct {
	mu    sync.Mutex
	stats map[string]*Stats
}

// New returns an empty selector.
func New() *Selector {
	return &Selector{stats: make(map[string]*Stats)}
}

// Record adds one call outcome. errMsg is ignored on success.
func (s *Selector) Record(tool string, success bool, d time.Duration, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[tool]
	if !ok {
		st = &Stats{}
		s.stats[tool] = st
	}
	st.Calls++
	st.TotalDuration += d
	st.LastUsed = time.Now()
	if success {
		st.Successes++
		return
	}
	st.Failures++
	st.LastError = errMsg
}

// RecordResult is Record for a resolved tool result.
func (s *Selector) RecordResult(r message.ToolResult) {
	s.Record(r.ToolName, !r.Failed(), r.Duration, r.Error)
}

// Stats returns a copy of the numbers for one tool.
func (s *Selector) Stats(tool string) (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[tool]
	if !ok {
		return Stats{}, false
	}
	return *st, true
}

// All returns a copy of every tool's numbers.
func (s *Selector) All() map[string]Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Stats, len(s.stats))
	for k, v := range s.stats {
		out[k] = *v
	}
	return out
}

// Summary renders the stats as one line per tool, sorted by name.
func (s *Selector) Summary() []string {
	all := s.All()
	names := make([]string, 0, len(all))
	for n := range all {
		names = append(names, n)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, n := range names {
		st := all[n]
		lines = append(lines, fmt.Sprintf("%s: %d calls, %.0f%% ok, avg %s", n, st.Calls, st.SuccessRate()*100, st.AvgDuration().Round(time.Millisecond)))
	}
	return lines
}
