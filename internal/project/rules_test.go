package project

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLoadRules_NotExists(t *testing.T) {
	rules, err := LoadRules(t.TempDir())
	if err != nil {
		t.Errorf("LoadRules should not error when file doesn't exist: %v", err)
	}
	if rules != "" {
		t.Errorf("expected no rules, got %q", rules)
	}
}

func TestLoadRules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, Dir, RulesFile), "\nAlways run gofmt.\n\n")

	rules, err := LoadRules(root)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if rules != "Always run gofmt." {
		t.Errorf("rules = %q", rules)
	}
}

func TestLoadSkills(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, Dir, SkillsDir)
	writeFile(t, filepath.Join(dir, "b-plain.md"), "Plain skill body")
	writeFile(t, filepath.Join(dir, "a-db.md"), "---\nname: migrations\nkeywords: [migration, Schema]\n---\nUse goose for migrations.\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	skills, err := LoadSkills(root)
	if err != nil {
		t.Fatalf("LoadSkills: %v", err)
	}
	if len(skills) != 2 {
		t.Fatalf("expected 2 skills, got %d", len(skills))
	}
	if skills[0].Name != "migrations" || skills[0].Body != "Use goose for migrations." {
		t.Errorf("unexpected first skill: %+v", skills[0])
	}
	if skills[1].Name != "b-plain" {
		t.Errorf("name should default to the file name, got %q", skills[1].Name)
	}
}

func TestParseSkillErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"unterminated", "---\nname: x\n"},
		{"bad yaml", "---\nkeywords: [a\n---\nbody"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseSkill([]byte(tt.in)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestSkillMatches(t *testing.T) {
	s := Skill{Keywords: []string{"Schema", " "}}
	tests := []struct {
		text string
		want bool
	}{
		{"update the schema for users", true},
		{"fix the login bug", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := s.Matches(tt.text); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
	if !(Skill{Always: true}).Matches("anything") {
		t.Error("always skills should match every request")
	}
}

func TestInjectSkills(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, Dir, RulesFile), "Prefer table-driven tests.")
	dir := filepath.Join(root, Dir, SkillsDir)
	writeFile(t, filepath.Join(dir, "db.md"), "---\nkeywords: [migration]\n---\nUse goose.")
	writeFile(t, filepath.Join(dir, "style.md"), "---\nalways: true\n---\nKeep functions short.")

	inj := NewInjector(root, nil)

	msgs, err := inj.InjectSkills(context.Background(), "add a migration", "c1")
	if err != nil {
		t.Fatalf("InjectSkills: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected rules plus two skills, got %d", len(msgs))
	}
	if !strings.HasPrefix(msgs[0].Content, "[PROJECT RULES]") {
		t.Errorf("rules should come first: %q", msgs[0].Content)
	}
	if msgs[1].Content != "[SKILL: db]\nUse goose." {
		t.Errorf("unexpected skill block: %q", msgs[1].Content)
	}

	msgs, err = inj.InjectSkills(context.Background(), "rename a variable", "c1")
	if err != nil {
		t.Fatalf("InjectSkills: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("expected rules plus the always skill, got %d", len(msgs))
	}
}

func TestInjectSkillsEmptyWorkspace(t *testing.T) {
	msgs, err := NewInjector(t.TempDir(), nil).InjectSkills(context.Background(), "hello", "c1")
	if err != nil {
		t.Fatalf("InjectSkills: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
}
