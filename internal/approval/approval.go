// Package approval classifies proposed tool calls by risk and decides
// whether they may run, must wait for the user, or are refused outright.
package approval

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
)

// Status is the outcome of an approval decision.
type Status string

const (
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusPending  Status = "pending"
	StatusFeedback Status = "feedback"
)

// Risk grades a batch of calls.
type Risk string

const (
	RiskSafe      Risk = "safe"
	RiskSensitive Risk = "sensitive"
	RiskDangerous Risk = "dangerous"
)

// Sources of a decision.
const (
	SourceAuto        = "auto"
	SourcePolicy      = "policy"
	SourceUserMessage = "user_message"
	SourceAlways      = "always_approve"
	SourceUser        = "user"
)

// Decision is the gate's verdict for one batch of calls.
type Decision struct {
	Status        Status
	Risk          Risk
	Blocked       bool
	NeedsApproval bool
	// Always is set when the user asked to stop being prompted.
	Always  bool
	Source  string
	Reason  string
	Matches []Match
}

// Match is one argument that hit a pattern.
type Match struct {
	CallID  string
	Tool    string
	Arg     string
	Pattern string
	Text    string
}

// Record is one entry of the append-only approval history.
type Record struct {
	Decision  Status    `json:"decision"`
	Source    string    `json:"source"`
	RiskLevel Risk      `json:"risk_level,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	ToolNames []string  `json:"tool_names,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Record converts the decision into a history entry for calls.
func (d Decision) Record(calls []message.ToolCall) Record {
	return Record{
		Decision:  d.Status,
		Source:    d.Source,
		RiskLevel: d.Risk,
		Timestamp: time.Now(),
		ToolNames: toolNames(calls),
		Reason:    d.Reason,
	}
}

// Response is the user's answer to a pending request.
type Response struct {
	Decision Status `json:"decision"` // approved, denied or feedback
	Feedback string `json:"feedback,omitempty"`
	Always   bool   `json:"always,omitempty"`
}

// Validate checks that the response carries a usable decision.
func (r Response) Validate() error {
	switch r.Decision {
	case StatusApproved, StatusDenied:
		return nil
	case StatusFeedback:
		if strings.TrimSpace(r.Feedback) == "" {
			return fmt.Errorf("feedback response without feedback text")
		}
		return nil
	default:
		return fmt.Errorf("invalid approval decision %q", r.Decision)
	}
}

// Record converts the response into a history entry.
func (r Response) Record(calls []message.ToolCall) Record {
	return Record{
		Decision:  r.Decision,
		Source:    SourceUser,
		RiskLevel: RiskSensitive,
		Timestamp: time.Now(),
		ToolNames: toolNames(calls),
		Reason:    r.Feedback,
	}
}

// Policy is the configurable pattern data behind a Gate.
type Policy struct {
	Destructive   []string `yaml:"destructive"`
	Sensitive     []string `yaml:"sensitive"`
	// ReplyPhrases must match the whole message, so a bare "yes" only
	// counts when it is the entire reply.
	ReplyPhrases []string `yaml:"reply_phrases"`
	// OncePhrases and AlwaysPhrases must match a whole clause of the
	// message; clauses are split on line breaks and sentence punctuation.
	OncePhrases   []string `yaml:"once_phrases"`
	AlwaysPhrases []string `yaml:"always_phrases"`
	CommandArgs   []string `yaml:"command_args"`  // argument keys scanned on every tool
	CommandTools  []string `yaml:"command_tools"` // tool name substrings whose every argument is scanned
}

// DefaultPolicy returns the built-in patterns.
func DefaultPolicy() Policy {
	return Policy{
		Destructive: []string{
			`\brm\s+(-[a-zA-Z]+\s+)*-[a-zA-Z]*[rR][a-zA-Z]*\b`,
			`\brm\s+--recursive\b`,
			`\bmkfs(\.[a-z0-9]+)?\b`,
			`\bdd\s+if=`,
			`>\s*/dev/(sd|nvme|hd|disk)`,
			`\bformat\s+[a-zA-Z]:`,
			`(^|[;&|(` + "`" + `]\s*|\bsudo\s+|\b(sh|bash|zsh)\s+-c\s+["']|:\s*")(shutdown|reboot|halt|poweroff)\b`,
			`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`,
			`\bchmod\s+-R\s+777\s+/`,
			`\bRemove-Item\b.*-Recurse`,
			`\brmdir\s+/s\b`,
			`\bdel\s+/[sfq]\b`,
			`\bgit\s+clean\s+-[a-zA-Z]*f[a-zA-Z]*d`,
		},
		Sensitive: []string{
			`\b(npm|pnpm|yarn|bun)\s+(install|i|add)\b`,
			`\bpip3?\s+install\b`,
			`\bpoetry\s+add\b`,
			`\bgo\s+(get|install)\b`,
			`\bcargo\s+(install|add)\b`,
			`\b(apt|apt-get|yum|dnf|brew|apk|choco|winget)\s+(install|add)\b`,
			`\b(curl|wget)\b[^|]*\|\s*(sudo\s+)?(sh|bash|zsh)\b`,
			`\b(curl|wget|Invoke-WebRequest|iwr)\b`,
			`\bgit\s+(push|clone|fetch|pull)\b`,
			`\bsudo\b`,
			`\b(ssh|scp|rsync)\b`,
		},
		ReplyPhrases: []string{
			`(?i)^(yes|y|ok|okay|sure|approve|approved|i approve|go ahead|proceed)$`,
			`^(응|네|예|좋아|승인|허용)$`,
		},
		OncePhrases: []string{
			`(?i)^(yes |ok |okay )?(go ahead and|you (may|can)|feel free to) (install|run|download|execute)( [\w./@:+-]+){0,4}$`,
			`(?i)^(yes |ok |okay )?(install|run) (it|them|that)( now)?$`,
			`(?i)^i approve( (it|this|that|the \w+))?$`,
			`^(승인|허용)(합니다|할게요?|해요|해\s*줄게)$`,
			`^(설치|실행|진행)해도\s*(돼|됩니다|좋아|괜찮아)(요)?$`,
			`^진행해\s*(줘|주세요)$`,
		},
		AlwaysPhrases: []string{
			`(?i)^(always (approve|allow)|auto[- ]?approve)( (it|them|everything|installs|commands|tools|tool calls))?( from now on)?$`,
			`(?i)^don'?t ask (me )?again$`,
			`^(앞으로\s*)?(항상\s*(승인|허용)|자동\s*승인)(해\s*(줘|주세요)|할게요?|합니다)?$`,
			`^다시\s*묻지\s*마(세요)?$`,
		},
		CommandArgs:  []string{"command", "cmd", "script", "args", "shell"},
		CommandTools: []string{"command", "shell", "exec", "terminal", "bash"},
	}
}

// Gate evaluates batches of calls against a compiled Policy. It is
// immutable and safe for concurrent use.
type Gate struct {
	destructive []*regexp.Regexp
	sensitive   []*regexp.Regexp
	reply       []*regexp.Regexp
	once        []*regexp.Regexp
	always      []*regexp.Regexp
	commandArgs map[string]bool
	commandSubs []string
}

// NewGate compiles p.
func NewGate(p Policy) (*Gate, error) {
	g := &Gate{commandArgs: make(map[string]bool), commandSubs: p.CommandTools}
	var err error
	if g.destructive, err = compileAll("destructive", p.Destructive); err != nil {
		return nil, err
	}
	if g.sensitive, err = compileAll("sensitive", p.Sensitive); err != nil {
		return nil, err
	}
	if g.reply, err = compileAll("reply_phrases", p.ReplyPhrases); err != nil {
		return nil, err
	}
	if g.once, err = compileAll("once_phrases", p.OncePhrases); err != nil {
		return nil, err
	}
	if g.always, err = compileAll("always_phrases", p.AlwaysPhrases); err != nil {
		return nil, err
	}
	for _, a := range p.CommandArgs {
		g.commandArgs[a] = true
	}
	return g, nil
}

// MustDefaultGate compiles DefaultPolicy and panics on error.
func MustDefaultGate() *Gate {
	g, err := NewGate(DefaultPolicy())
	if err != nil {
		panic(err)
	}
	return g
}

func compileAll(group string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("approval %s pattern %q: %w", group, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Evaluate classifies calls. Destructive matches deny the whole batch.
// Sensitive matches need alwaysApprove, an always phrase or a one-time
// phrase in latestUserText; without one the batch is pending.
func (g *Gate) Evaluate(calls []message.ToolCall, latestUserText string, alwaysApprove bool) Decision {
	if m := g.scan(calls, g.destructive); len(m) > 0 {
		return Decision{
			Status:  StatusDenied,
			Risk:    RiskDangerous,
			Blocked: true,
			Source:  SourcePolicy,
			Reason:  fmt.Sprintf("blocked destructive command in %s: %s", m[0].Tool, m[0].Text),
			Matches: m,
		}
	}

	always := g.IsAlwaysApproval(latestUserText)
	m := g.scan(calls, g.sensitive)
	if len(m) == 0 {
		return Decision{Status: StatusApproved, Risk: RiskSafe, Source: SourceAuto, Always: always}
	}
	d := Decision{Risk: RiskSensitive, Always: always, Matches: m}
	switch {
	case alwaysApprove || always:
		d.Status, d.Source = StatusApproved, SourceAlways
		d.Reason = "always-approve is enabled"
	case g.IsOnceApproval(latestUserText):
		d.Status, d.Source = StatusApproved, SourceUserMessage
		d.Reason = "approved in the latest user message"
	default:
		d.Status, d.NeedsApproval, d.Source = StatusPending, true, SourcePolicy
		d.Reason = fmt.Sprintf("%s needs approval: %s", m[0].Tool, m[0].Text)
	}
	return d
}

// IsOnceApproval reports whether text grants approval for this turn.
// Consent has to be the whole reply or a whole clause of it; a task that
// merely mentions approval does not grant it.
func (g *Gate) IsOnceApproval(text string) bool {
	if matchAny(g.reply, []string{normalizeClause(text)}) {
		return true
	}
	cs := clauses(text)
	return matchAny(g.once, cs) || matchAny(g.always, cs)
}

// IsAlwaysApproval reports whether text asks to stop prompting.
func (g *Gate) IsAlwaysApproval(text string) bool {
	return matchAny(g.always, clauses(text))
}

var clauseSep = regexp.MustCompile(`[\n;,!?。！？]+|\.(\s+|$)`)

func clauses(text string) []string {
	var out []string
	for _, c := range clauseSep.Split(text, -1) {
		if c = normalizeClause(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// normalizeClause trims punctuation and politeness so anchored patterns
// see the bare phrase.
func normalizeClause(s string) string {
	s = strings.Trim(s, ".,!~ \t\r")
	lower := strings.ToLower(s)
	for _, p := range []string{"please ", "pls "} {
		if strings.HasPrefix(lower, p) {
			s = strings.TrimSpace(s[len(p):])
			lower = strings.ToLower(s)
		}
	}
	for _, suf := range []string{" please", " thanks", " thank you"} {
		if strings.HasSuffix(lower, suf) {
			s = strings.TrimSpace(s[:len(s)-len(suf)])
			lower = strings.ToLower(s)
		}
	}
	return strings.Join(strings.Fields(strings.Trim(s, ".,!~ \t")), " ")
}

func matchAny(res []*regexp.Regexp, texts []string) bool {
	for _, t := range texts {
		if t == "" {
			continue
		}
		for _, re := range res {
			if re.MatchString(t) {
				return true
			}
		}
	}
	return false
}

func (g *Gate) scan(calls []message.ToolCall, res []*regexp.Regexp) []Match {
	var out []Match
	for _, c := range calls {
		all := g.isCommandTool(c.Name)
		args := c.Args
		if args == nil && c.RawArgs != "" {
			args = map[string]any{"raw": c.RawArgs}
			all = true
		}
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !all && !g.commandArgs[k] {
				continue
			}
			for _, s := range stringsIn(args[k]) {
				for _, re := range res {
					if loc := re.FindString(s); loc != "" {
						out = append(out, Match{CallID: c.ID, Tool: c.Name, Arg: k, Pattern: re.String(), Text: loc})
					}
				}
			}
		}
	}
	return out
}

func (g *Gate) isCommandTool(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range g.commandSubs {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// stringsIn flattens string values, including those nested in slices and maps.
func stringsIn(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		var out []string
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				parts = append(parts, s)
			}
			out = append(out, stringsIn(e)...)
		}
		if len(parts) > 1 {
			// argv form: ["rm", "-rf", "/"]
			out = append(out, strings.Join(parts, " "))
		}
		return out
	case []string:
		return append(append([]string(nil), t...), strings.Join(t, " "))
	case map[string]any:
		var out []string
		for _, e := range t {
			out = append(out, stringsIn(e)...)
		}
		return out
	default:
		return nil
	}
}

func toolNames(calls []message.ToolCall) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Name)
	}
	return out
}
