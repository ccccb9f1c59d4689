// Package project loads per-workspace agent rules and skills from the
// .sepilot directory and injects them into the agent's context.
package project

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
)

const (
	// Dir is the directory name for per-workspace agent files.
	Dir = ".sepilot"
	// RulesFile holds instructions that apply to every request.
	RulesFile = "rules.md"
	// SkillsDir holds one markdown file per skill.
	SkillsDir = "skills"

	maxRulesBytes = 16 << 10
)

// Skill is a block of guidance injected when the request mentions one of
// its keywords. A skill file may start with a YAML front matter block:
//
//	---
//	name: migrations
//	keywords: [migration, schema]
//	---
type Skill struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Always   bool     `yaml:"always"`
	Body     string   `yaml:"-"`
}

// Matches reports whether the skill applies to text.
func (s Skill) Matches(text string) bool {
	if s.Always {
		return true
	}
	text = strings.ToLower(text)
	for _, kw := range s.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func rulesPath(root string) string {
	return filepath.Join(root, Dir, RulesFile)
}

// LoadRules reads the workspace rules file. A missing file yields "".
func LoadRules(root string) (string, error) {
	data, err := os.ReadFile(rulesPath(root))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read rules file: %w", err)
	}
	if len(data) > maxRulesBytes {
		data = data[:maxRulesBytes]
	}
	return strings.TrimSpace(string(data)), nil
}

// LoadSkills reads every *.md file under .sepilot/skills, sorted by name.
// A missing directory yields no skills.
func LoadSkills(root string) ([]Skill, error) {
	paths, err := filepath.Glob(filepath.Join(root, Dir, SkillsDir, "*.md"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	skills := make([]Skill, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read skill %s: %w", filepath.Base(p), err)
		}
		s, err := parseSkill(data)
		if err != nil {
			return nil, fmt.Errorf("skill %s: %w", filepath.Base(p), err)
		}
		if s.Name == "" {
			s.Name = strings.TrimSuffix(filepath.Base(p), ".md")
		}
		skills = append(skills, s)
	}
	return skills, nil
}

func parseSkill(data []byte) (Skill, error) {
	var s Skill
	body := data
	if rest, ok := bytes.CutPrefix(data, []byte("---\n")); ok {
		front, after, found := bytes.Cut(rest, []byte("\n---"))
		if !found {
			return Skill{}, errors.New("unterminated front matter")
		}
		if err := yaml.Unmarshal(front, &s); err != nil {
			return Skill{}, fmt.Errorf("bad front matter: %w", err)
		}
		body = after
	}
	s.Body = strings.TrimSpace(string(body))
	return s, nil
}

// Injector serves rules and skills to the engine. Files are re-read on
// every request so edits apply to the next turn.
type Injector struct {
	root   string
	logger *slog.Logger
}

// NewInjector returns an injector for the workspace at root.
func NewInjector(root string, logger *slog.Logger) *Injector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{root: root, logger: logger}
}

// InjectSkills returns the rules block followed by one block per matching
// skill. Unreadable skills are logged and skipped; the rules still apply.
func (i *Injector) InjectSkills(ctx context.Context, userText, conversationID string) ([]message.Message, error) {
	var out []message.Message

	rules, err := LoadRules(i.root)
	if err != nil {
		return nil, err
	}
	if rules != "" {
		out = append(out, message.System("[PROJECT RULES]\n"+rules))
	}

	skills, err := LoadSkills(i.root)
	if err != nil {
		i.logger.WarnContext(ctx, "skipping workspace skills", "error", err, "conversation", conversationID)
		return out, nil
	}
	for _, s := range skills {
		if s.Body == "" || !s.Matches(userText) {
			continue
		}
		out = append(out, message.System(fmt.Sprintf("[SKILL: %s]\n%s", s.Name, s.Body)))
	}
	return out, nil
}
