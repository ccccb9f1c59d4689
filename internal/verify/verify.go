// Package verify runs type-check, lint and optional build and test
// commands against the files an agent modified.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/sandbox"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/workspace"
)

const (
	CheckTypeCheck = "typecheck"
	CheckLint      = "lint"
	CheckBuild     = "build"
	CheckTest      = "test"
)

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Skipped  bool          `json:"skipped,omitempty"`
	Message  string        `json:"message"`
	Details  string        `json:"details,omitempty"`
	Command  string        `json:"command,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Report is the outcome of one verification pass.
type Report struct {
	Checks      []CheckResult `json:"checks"`
	AllPassed   bool          `json:"all_passed"`
	Suggestions []string      `json:"suggestions,omitempty"`
}

// Failed returns the checks that did not pass.
func (r Report) Failed() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// Summary renders failed checks and suggestions as a message for the model.
func (r Report) Summary() string {
	if r.AllPassed {
		return "All verification checks passed."
	}
	var b strings.Builder
	b.WriteString("Verification failed:\n")
	for _, c := range r.Failed() {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Message)
		if c.Details != "" {
			b.WriteString("```\n" + c.Details + "\n```\n")
		}
	}
	if len(r.Suggestions) > 0 {
		b.WriteString("Suggestions:\n")
		for _, s := range r.Suggestions {
			b.WriteString("- " + s + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Check is one planned command.
type Check struct {
	Name    string
	Command workspace.Command
	// Markers are output substrings that mean failure. When empty, a non-zero
	// exit means failure.
	Markers []string
	// FailOnOutput treats any stdout as failure (gofmt -l lists bad files).
	FailOnOutput bool
	Suggestion   string
}

// Options tunes a Pipeline.
type Options struct {
	EnableBuild  bool          `yaml:"enable_build"`
	EnableTest   bool          `yaml:"enable_test"`
	MaxLintFiles int           `yaml:"max_lint_files"`
	DetailsLimit int           `yaml:"details_limit"`
	Timeout      time.Duration `yaml:"timeout"`
	// Commands overrides the command for a check name. Lint overrides get
	// the modified files appended.
	Commands map[string]workspace.Command `yaml:"-"`
}

// DefaultOptions returns the standard limits.
func DefaultOptions() Options {
	return Options{MaxLintFiles: 10, DetailsLimit: 500, Timeout: 2 * time.Minute}
}

// Pipeline runs checks through a sandbox runner.
type Pipeline struct {
	runner sandbox.Runner
	opts   Options
	logger *slog.Logger
}

// New returns a pipeline. Zero option fields take the defaults.
func New(runner sandbox.Runner, opts Options, logger *slog.Logger) *Pipeline {
	d := DefaultOptions()
	if opts.MaxLintFiles <= 0 {
		opts.MaxLintFiles = d.MaxLintFiles
	}
	if opts.DetailsLimit <= 0 {
		opts.DetailsLimit = d.DetailsLimit
	}
	if opts.Timeout <= 0 {
		opts.Timeout = d.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{runner: runner, opts: opts, logger: logger}
}

// Verify checks the modified files under root. With nothing modified it
// returns an empty, passing report without running anything.
func (p *Pipeline) Verify(ctx context.Context, root string, modified []string) (Report, error) {
	if len(modified) == 0 {
		return Report{Checks: []CheckResult{}, AllPassed: true}, nil
	}
	checks := p.Plan(root, modified)
	results := make([]CheckResult, len(checks))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range checks {
		g.Go(func() error {
			results[i] = p.run(gctx, root, c)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	rep := Report{Checks: results, AllPassed: true}
	for i, r := range results {
		if r.Passed {
			continue
		}
		rep.AllPassed = false
		if s := checks[i].Suggestion; s != "" {
			rep.Suggestions = append(rep.Suggestions, s)
		}
	}
	return rep, nil
}

// Plan chooses the checks for a set of modified files.
func (p *Pipeline) Plan(root string, modified []string) []Check {
	rel := relativePaths(root, modified)
	pt := workspace.DetectProjectType(root)
	if pt == workspace.ProjectTypeUnknown {
		pt = dominantType(rel)
	}

	var checks []Check
	if anyStaticallyTyped(rel) {
		if cmd := p.command(CheckTypeCheck, workspace.TypeCheckCommand(pt)); !cmd.IsZero() {
			checks = append(checks, Check{
				Name:       CheckTypeCheck,
				Command:    cmd,
				Markers:    typeCheckMarkers(pt),
				Suggestion: "Fix the reported type errors in the files you changed before continuing.",
			})
		}
	}

	// Lint is scoped to the modified files of the project's language, so a
	// turn that only touched docs or config runs no lint. Rust lints the
	// whole crate and always runs.
	lintFiles := filesOfType(rel, pt, p.opts.MaxLintFiles)
	if pt == workspace.ProjectTypeRust || len(lintFiles) > 0 {
		base := workspace.LintCommand(pt, lintFiles)
		if o, ok := p.opts.Commands[CheckLint]; ok {
			base = workspace.Command{Name: o.Name, Args: append(append([]string(nil), o.Args...), lintFiles...)}
		}
		if !base.IsZero() {
			checks = append(checks, Check{
				Name:         CheckLint,
				Command:      base,
				Markers:      lintMarkers(pt),
				FailOnOutput: pt == workspace.ProjectTypeGo,
				Suggestion:   lintSuggestion(pt),
			})
		}
	}

	if p.opts.EnableBuild {
		if cmd := p.command(CheckBuild, workspace.BuildCommand(pt)); !cmd.IsZero() {
			checks = append(checks, Check{Name: CheckBuild, Command: cmd, Suggestion: "Fix the compilation errors reported by the build."})
		}
	}
	if p.opts.EnableTest {
		if cmd := p.command(CheckTest, workspace.TestCommand(pt)); !cmd.IsZero() {
			checks = append(checks, Check{Name: CheckTest, Command: cmd, Suggestion: "Make the failing tests pass or explain why the expectation changed."})
		}
	}
	return checks
}

func (p *Pipeline) command(name string, def workspace.Command) workspace.Command {
	if o, ok := p.opts.Commands[name]; ok {
		return o
	}
	return def
}

func (p *Pipeline) run(ctx context.Context, root string, c Check) CheckResult {
	start := time.Now()
	res, err := p.runner.RunCmd(ctx, root, c.Command.Name, c.Command.Args, p.opts.Timeout)
	out := CheckResult{Name: c.Name, Command: c.Command.String(), Duration: time.Since(start)}
	output := res.Combined()

	switch {
	case sandbox.IsCommandNotFound(err) || notInstalled(output):
		out.Passed, out.Skipped = true, true
		out.Message = fmt.Sprintf("skipped: %s is not installed", c.Command.Name)
	case res.TimedOut:
		out.Message = fmt.Sprintf("timed out after %s", p.opts.Timeout)
		out.Details = truncate(output, p.opts.DetailsLimit)
	case failed(c, res, err, output):
		out.Message = "failed: " + firstLine(output, err)
		out.Details = truncate(output, p.opts.DetailsLimit)
	default:
		out.Passed = true
		out.Message = "passed"
	}
	p.logger.Debug("verification check", "check", c.Name, "command", out.Command, "passed", out.Passed, "skipped", out.Skipped, "duration", out.Duration)
	return out
}

func failed(c Check, res sandbox.Result, err error, output string) bool {
	if c.FailOnOutput && strings.TrimSpace(res.Stdout) != "" {
		return true
	}
	if len(c.Markers) > 0 {
		text := output
		if err != nil {
			text += "\n" + err.Error()
		}
		for _, m := range c.Markers {
			if strings.Contains(text, m) {
				return true
			}
		}
		return false
	}
	return err != nil || res.Code != 0
}

var notInstalledMarkers = []string{
	"command not found",
	"could not determine executable to run",
	"executable file not found",
	"No module named mypy",
	"No module named ruff",
}

func notInstalled(output string) bool {
	for _, m := range notInstalledMarkers {
		if strings.Contains(output, m) {
			return true
		}
	}
	return false
}

func typeCheckMarkers(pt workspace.ProjectType) []string {
	switch pt {
	case workspace.ProjectTypeNode:
		return []string{"error TS"}
	case workspace.ProjectTypePython:
		return []string{": error:"}
	case workspace.ProjectTypeRust:
		return []string{"error[", "error:"}
	default:
		// go vet: exit status decides
		return nil
	}
}

func lintMarkers(pt workspace.ProjectType) []string {
	switch pt {
	case workspace.ProjectTypeNode:
		return []string{" error ", "✖"}
	case workspace.ProjectTypePython:
		return []string{"Found ", "error:"}
	case workspace.ProjectTypeRust:
		return []string{"error:", "warning:"}
	default:
		return nil
	}
}

func lintSuggestion(pt workspace.ProjectType) string {
	switch pt {
	case workspace.ProjectTypeGo:
		return "Run gofmt -w on the listed files."
	case workspace.ProjectTypeNode:
		return "Run the auto-fixer (eslint --fix) and address the remaining lint errors."
	case workspace.ProjectTypePython:
		return "Run the auto-fixer (ruff check --fix) and address the remaining lint errors."
	case workspace.ProjectTypeRust:
		return "Address the clippy findings (cargo clippy --fix can apply simple ones)."
	default:
		return "Run the project's lint auto-fixer."
	}
}

func relativePaths(root string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if filepath.IsAbs(p) {
			if r, err := filepath.Rel(root, p); err == nil {
				p = r
			}
		}
		out = append(out, filepath.ToSlash(p))
	}
	return out
}

func anyStaticallyTyped(paths []string) bool {
	for _, p := range paths {
		if workspace.IsStaticallyTyped(p) {
			return true
		}
	}
	return false
}

func dominantType(paths []string) workspace.ProjectType {
	counts := make(map[workspace.ProjectType]int)
	best, n := workspace.ProjectTypeUnknown, 0
	for _, p := range paths {
		t := workspace.TypeForExt(filepath.Ext(p))
		if t == workspace.ProjectTypeUnknown {
			continue
		}
		counts[t]++
		if counts[t] > n {
			best, n = t, counts[t]
		}
	}
	return best
}

func filesOfType(paths []string, pt workspace.ProjectType, limit int) []string {
	var out []string
	for _, p := range paths {
		if workspace.TypeForExt(filepath.Ext(p)) != pt {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func firstLine(output string, err error) string {
	for _, line := range strings.Split(output, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			return l
		}
	}
	if err != nil {
		return err.Error()
	}
	return "check reported failures"
}
