package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDetectProjectType(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  ProjectType
	}{
		{"go manifest", []string{"go.mod"}, ProjectTypeGo},
		{"node manifest", []string{"package.json", "main.go"}, ProjectTypeNode},
		{"tsconfig only", []string{"tsconfig.json"}, ProjectTypeNode},
		{"python", []string{"pyproject.toml"}, ProjectTypePython},
		{"rust", []string{"Cargo.toml"}, ProjectTypeRust},
		{"extension majority", []string{"a.py", "b.py", "c.py", "d.go"}, ProjectTypePython},
		{"too few files", []string{"a.ts", "b.ts"}, ProjectTypeUnknown},
		{"empty", nil, ProjectTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				if err := os.WriteFile(filepath.Join(dir, f), nil, 0o644); err != nil {
					t.Fatal(err)
				}
			}
			if got := DetectProjectType(dir); got != tt.want {
				t.Errorf("DetectProjectType() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsStaticallyTyped(t *testing.T) {
	for path, want := range map[string]bool{
		"src/app.ts":  true,
		"src/App.TSX": true,
		"main.go":     true,
		"lib.rs":      true,
		"script.py":   false,
		"index.js":    false,
		"README.md":   false,
		"Makefile":    false,
	} {
		if got := IsStaticallyTyped(path); got != want {
			t.Errorf("IsStaticallyTyped(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestCommands(t *testing.T) {
	lint := LintCommand(ProjectTypeGo, []string{"a.go", "b.go"})
	if lint.String() != "gofmt -l a.go b.go" {
		t.Errorf("go lint = %q", lint.String())
	}
	if got := LintCommand(ProjectTypePython, nil).String(); got != "ruff check ." {
		t.Errorf("python lint = %q", got)
	}
	if got := TypeCheckCommand(ProjectTypeNode).String(); got != "npx --no-install tsc --noEmit" {
		t.Errorf("node typecheck = %q", got)
	}
	if !BuildCommand(ProjectTypePython).IsZero() {
		t.Error("python should have no build command")
	}
	if !TestCommand(ProjectTypeUnknown).IsZero() {
		t.Error("unknown project should have no test command")
	}
}
