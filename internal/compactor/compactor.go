// Package compactor selects the part of a conversation that fits a model's
// context budget.
package compactor

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
)

// Options tunes the selection. Zero fields take the defaults.
type Options struct {
	CharsPerToken     int     `yaml:"chars_per_token"`     // default 4
	BudgetRatio       float64 `yaml:"budget_ratio"`        // share of maxTokens the result may use, default 0.8
	EarliestUsers     int     `yaml:"earliest_users"`      // earliest user messages always kept, default 2
	RecentWindow      int     `yaml:"recent_window"`       // newest ordinary messages considered, default 50
	ImportantWindow   int     `yaml:"important_window"`    // newest important tool results considered, default 20
	ImportantMaxChars int     `yaml:"important_max_chars"` // tool results shorter than this are important, default 200
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		CharsPerToken:     4,
		BudgetRatio:       0.8,
		EarliestUsers:     2,
		RecentWindow:      50,
		ImportantWindow:   20,
		ImportantMaxChars: 200,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CharsPerToken <= 0 {
		o.CharsPerToken = d.CharsPerToken
	}
	if o.BudgetRatio <= 0 || o.BudgetRatio > 1 {
		o.BudgetRatio = d.BudgetRatio
	}
	if o.EarliestUsers <= 0 {
		o.EarliestUsers = d.EarliestUsers
	}
	if o.RecentWindow <= 0 {
		o.RecentWindow = d.RecentWindow
	}
	if o.ImportantWindow <= 0 {
		o.ImportantWindow = d.ImportantWindow
	}
	if o.ImportantMaxChars <= 0 {
		o.ImportantMaxChars = d.ImportantMaxChars
	}
	return o
}

// Compactor applies Options to message lists.
type Compactor struct {
	opts Options
}

// New returns a compactor with opts filled from the defaults.
func New(opts Options) *Compactor {
	return &Compactor{opts: opts.withDefaults()}
}

// Compact uses the default options.
func Compact(history, mandatory []message.Message, maxTokens int) []message.Message {
	return New(DefaultOptions()).Compact(history, mandatory, maxTokens)
}

// EstimateTokens estimates the token cost of msgs with the default ratio.
func EstimateTokens(msgs []message.Message) int {
	return New(DefaultOptions()).Estimate(msgs)
}

// Estimate returns total characters of content and serialized tool calls
// divided by CharsPerToken, rounded up.
func (c *Compactor) Estimate(msgs []message.Message) int {
	chars := 0
	for _, m := range msgs {
		chars += messageChars(m)
	}
	return c.tokens(chars)
}

// Limit returns the token ceiling a compacted result stays within.
func (c *Compactor) Limit(maxTokens int) int {
	return int(float64(maxTokens) * c.opts.BudgetRatio)
}

func (c *Compactor) tokens(chars int) int {
	return (chars + c.opts.CharsPerToken - 1) / c.opts.CharsPerToken
}

func messageChars(m message.Message) int {
	n := utf8.RuneCountInString(m.Content)
	for _, tc := range m.ToolCalls {
		n += utf8.RuneCountInString(tc.Name) + utf8.RuneCountInString(tc.ArgsJSON())
	}
	return n
}

// Compact returns mandatory followed by the history messages that fit
// within Limit(maxTokens), in timestamp order. System messages and the
// earliest user messages of history are always kept. Input already within
// the limit is returned unchanged. maxTokens <= 0 disables compaction.
func (c *Compactor) Compact(history, mandatory []message.Message, maxTokens int) []message.Message {
	inMandatory := make(map[string]bool, len(mandatory))
	for _, m := range mandatory {
		inMandatory[m.ID] = true
	}
	hist := make([]message.Message, 0, len(history))
	for _, m := range history {
		if m.ID != "" && inMandatory[m.ID] {
			continue
		}
		hist = append(hist, m)
	}

	all := append(append(make([]message.Message, 0, len(mandatory)+len(hist)), mandatory...), hist...)
	limit := c.Limit(maxTokens)
	if maxTokens <= 0 || c.Estimate(all) <= limit {
		return all
	}

	var (
		kept       []message.Message
		keep       = make(map[int]bool)
		usedChars  int
		recent     []int
		important  []int
		usersTaken int
	)
	for _, m := range mandatory {
		usedChars += messageChars(m)
	}
	for i, m := range hist {
		switch {
		case m.Role == message.RoleSystem:
			keep[i] = true
		case m.Role == message.RoleUser && usersTaken < c.opts.EarliestUsers:
			keep[i] = true
			usersTaken++
		case c.isImportant(m):
			important = append(important, i)
		default:
			recent = append(recent, i)
		}
		if keep[i] {
			usedChars += messageChars(m)
		}
	}

	candidates := tail(recent, c.opts.RecentWindow)
	candidates = append(candidates, tail(important, c.opts.ImportantWindow)...)
	sort.Ints(candidates)

	for k := len(candidates) - 1; k >= 0; k-- {
		i := candidates[k]
		cost := messageChars(hist[i])
		if c.tokens(usedChars+cost) > limit {
			break
		}
		keep[i] = true
		usedChars += cost
	}

	for i, m := range hist {
		if keep[i] {
			kept = append(kept, m)
		}
	}
	kept = pairToolMessages(kept)
	sort.SliceStable(kept, func(a, b int) bool { return kept[a].CreatedAt.Before(kept[b].CreatedAt) })

	return append(append(make([]message.Message, 0, len(mandatory)+len(kept)), mandatory...), kept...)
}

func (c *Compactor) isImportant(m message.Message) bool {
	if m.Role != message.RoleTool {
		return false
	}
	if strings.HasPrefix(m.Content, "ERROR:") {
		return true
	}
	return utf8.RuneCountInString(m.Content) < c.opts.ImportantMaxChars
}

func tail(idx []int, n int) []int {
	if len(idx) <= n {
		return append([]int(nil), idx...)
	}
	return append([]int(nil), idx[len(idx)-n:]...)
}

// pairToolMessages removes tool results whose requesting assistant message
// was dropped, and strips tool calls from assistant messages whose results
// were dropped.
func pairToolMessages(msgs []message.Message) []message.Message {
	results := make(map[string]bool)
	for _, m := range msgs {
		if m.Role == message.RoleTool {
			results[m.ToolCallID] = true
		}
	}
	requested := make(map[string]bool)
	out := make([]message.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == message.RoleAssistant && m.HasToolCalls() {
			complete := true
			for _, tc := range m.ToolCalls {
				if !results[tc.ID] {
					complete = false
					break
				}
			}
			if !complete {
				if strings.TrimSpace(m.Content) == "" {
					continue
				}
				m.ToolCalls = nil
			} else {
				for _, tc := range m.ToolCalls {
					requested[tc.ID] = true
				}
			}
		}
		out = append(out, m)
	}
	final := out[:0]
	for _, m := range out {
		if m.Role == message.RoleTool && !requested[m.ToolCallID] {
			continue
		}
		final = append(final, m)
	}
	return final
}
