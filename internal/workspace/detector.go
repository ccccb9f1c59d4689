// Package workspace identifies what kind of project lives in a directory
// and which commands type-check, lint, build and test it.
package workspace

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectType represents the type of project.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeRust    ProjectType = "rust"
	ProjectTypeUnknown ProjectType = "unknown"
)

var manifests = []struct {
	file string
	typ  ProjectType
}{
	{"go.mod", ProjectTypeGo},
	{"package.json", ProjectTypeNode},
	{"tsconfig.json", ProjectTypeNode},
	{"pyproject.toml", ProjectTypePython},
	{"requirements.txt", ProjectTypePython},
	{"setup.py", ProjectTypePython},
	{"Cargo.toml", ProjectTypeRust},
}

// DetectProjectType checks well-known manifests first and falls back to
// counting source extensions in the root directory.
func DetectProjectType(root string) ProjectType {
	for _, m := range manifests {
		if _, err := os.Stat(filepath.Join(root, m.file)); err == nil {
			return m.typ
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return ProjectTypeUnknown
	}
	counts := make(map[ProjectType]int)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if t := TypeForExt(filepath.Ext(entry.Name())); t != ProjectTypeUnknown {
			counts[t]++
		}
	}

	best, bestCount := ProjectTypeUnknown, 0
	for _, t := range []ProjectType{ProjectTypeGo, ProjectTypeNode, ProjectTypePython, ProjectTypeRust} {
		if counts[t] > bestCount {
			best, bestCount = t, counts[t]
		}
	}
	// a couple of stray scripts do not make a project
	if bestCount >= 3 {
		return best
	}
	return ProjectTypeUnknown
}

// TypeForExt maps a file extension to the project type that owns it.
func TypeForExt(ext string) ProjectType {
	switch strings.ToLower(ext) {
	case ".go":
		return ProjectTypeGo
	case ".ts", ".tsx", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs":
		return ProjectTypeNode
	case ".py", ".pyi":
		return ProjectTypePython
	case ".rs":
		return ProjectTypeRust
	default:
		return ProjectTypeUnknown
	}
}

// StaticallyTyped are extensions whose modification triggers a type check.
var StaticallyTyped = map[string]bool{
	".ts":   true,
	".tsx":  true,
	".mts":  true,
	".cts":  true,
	".go":   true,
	".rs":   true,
	".java": true,
	".kt":   true,
	".cs":   true,
}

// IsStaticallyTyped reports whether path has a statically typed extension.
func IsStaticallyTyped(path string) bool {
	return StaticallyTyped[strings.ToLower(filepath.Ext(path))]
}

// Command is a program and its arguments.
type Command struct {
	Name string
	Args []string
}

// IsZero reports whether no command is configured.
func (c Command) IsZero() bool { return c.Name == "" }

// String renders the command line.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// TypeCheckCommand returns the whole-project type check.
func TypeCheckCommand(pt ProjectType) Command {
	switch pt {
	case ProjectTypeGo:
		return Command{"go", []string{"vet", "./..."}}
	case ProjectTypeNode:
		return Command{"npx", []string{"--no-install", "tsc", "--noEmit"}}
	case ProjectTypePython:
		return Command{"mypy", []string{"."}}
	case ProjectTypeRust:
		return Command{"cargo", []string{"check", "--quiet"}}
	default:
		return Command{}
	}
}

// LintCommand returns a lint command scoped to files, or to the whole
// project when files is empty.
func LintCommand(pt ProjectType, files []string) Command {
	switch pt {
	case ProjectTypeGo:
		if len(files) == 0 {
			files = []string{"."}
		}
		return Command{"gofmt", append([]string{"-l"}, files...)}
	case ProjectTypeNode:
		if len(files) == 0 {
			files = []string{"."}
		}
		return Command{"npx", append([]string{"--no-install", "eslint"}, files...)}
	case ProjectTypePython:
		if len(files) == 0 {
			files = []string{"."}
		}
		return Command{"ruff", append([]string{"check"}, files...)}
	case ProjectTypeRust:
		return Command{"cargo", []string{"clippy", "--quiet", "--", "-D", "warnings"}}
	default:
		return Command{}
	}
}

// BuildCommand returns the build command for a project type.
func BuildCommand(pt ProjectType) Command {
	switch pt {
	case ProjectTypeGo:
		return Command{"go", []string{"build", "./..."}}
	case ProjectTypeNode:
		return Command{"npm", []string{"run", "build"}}
	case ProjectTypeRust:
		return Command{"cargo", []string{"build"}}
	default:
		// python has no build step
		return Command{}
	}
}

// TestCommand returns the test command for a project type.
func TestCommand(pt ProjectType) Command {
	switch pt {
	case ProjectTypeGo:
		return Command{"go", []string{"test", "./..."}}
	case ProjectTypeNode:
		return Command{"npm", []string{"test"}}
	case ProjectTypePython:
		return Command{"pytest", []string{"-q"}}
	case ProjectTypeRust:
		return Command{"cargo", []string{"test"}}
	default:
		return Command{}
	}
}
