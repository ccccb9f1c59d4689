// Package execution implements tools that run programs in the sandbox.
package execution

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/sandbox"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools"
)

const (
	defaultCmdTimeout = 60 * time.Second
	minCmdTimeout     = 5 * time.Second
	maxCmdTimeout     = 5 * time.Minute
	defaultCmdLines   = 40
	minCmdLines       = 5
	maxCmdLines       = 200
	maxCmdChars       = 4000
)

// AllowedCommands are the programs run_command may start.
var AllowedCommands = []string{
	// build
	"go", "gofmt", "goimports",
	"npm", "npx", "yarn", "pnpm", "bun", "node", "tsc",
	"python", "python3", "pip", "pip3", "pytest", "uv",
	"cargo", "rustc", "rustfmt",
	"make", "cmake", "gradle", "mvn",

	// lint
	"eslint", "prettier", "biome",
	"ruff", "black", "isort", "mypy", "flake8",
	"golangci-lint", "shellcheck",

	// files
	"mkdir", "touch", "rm", "cp", "mv",
	"cat", "head", "tail", "ls", "find", "tree",
	"wc", "grep", "rg", "awk", "sed", "sort", "uniq", "diff",

	"git",
	"curl", "wget",
	"sh", "bash", "zsh",
	"echo", "printf", "date", "which", "env",
	"tar", "zip", "unzip", "gzip", "gunzip",
	"jq", "yq",
}

// ExecResult is the JSON returned by run_command.
type ExecResult struct {
	Command         string `json:"command"`
	ExitCode        int    `json:"exit_code"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	StdoutTruncated bool   `json:"stdout_truncated,omitempty"`
	StderrTruncated bool   `json:"stderr_truncated,omitempty"`
	TimedOut        bool   `json:"timed_out,omitempty"`
	Status          string `json:"status"` // ok or failed
}

func runCommandImpl(ctx context.Context, runner sandbox.Runner, root, command string, timeout time.Duration, maxLines int) (string, error) {
	name, args := splitCommand(command)
	if name == "" {
		return "", errors.New("command cannot be empty")
	}
	if !slices.Contains(AllowedCommands, name) {
		return "", fmt.Errorf("command %q is not allowed; allowed programs: %s", name, strings.Join(AllowedCommands, ", "))
	}
	if hasShellSyntax(command) {
		name, args = "sh", []string{"-c", command}
	}

	res, err := runner.RunCmd(ctx, root, name, args, timeout)
	if err != nil && sandbox.IsCommandNotFound(err) {
		return "", fmt.Errorf("%s is not installed: %w", name, err)
	}
	if err != nil && res.Code == 0 && !res.TimedOut {
		return "", err
	}

	out := ExecResult{Command: command, ExitCode: res.Code, TimedOut: res.TimedOut, Status: "ok"}
	out.Stdout, out.StdoutTruncated = truncateOutput(res.Stdout, maxLines)
	out.Stderr, out.StderrTruncated = truncateOutput(res.Stderr, maxLines)
	if res.Code != 0 || res.TimedOut {
		out.Status = "failed"
	}
	return tools.ToJSON(out)
}

// splitCommand splits on unquoted spaces. Quotes group but are dropped.
func splitCommand(s string) (string, []string) {
	var (
		fields  []string
		current strings.Builder
		quote   byte
	)
	flush := func() {
		if current.Len() > 0 {
			fields = append(fields, current.String())
			current.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0 && c == quote:
			quote = 0
		case quote == 0 && (c == '"' || c == '\''):
			quote = c
		case quote == 0 && (c == ' ' || c == '\t'):
			flush()
		default:
			current.WriteByte(c)
		}
	}
	flush()
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

func hasShellSyntax(s string) bool {
	return strings.ContainsAny(s, "|;<>$`") || strings.Contains(s, "&&")
}

func clampTimeout(v any) time.Duration {
	var seconds float64
	switch n := v.(type) {
	case float64:
		seconds = n
	case int:
		seconds = float64(n)
	}
	if seconds <= 0 {
		return defaultCmdTimeout
	}
	return min(max(time.Duration(seconds)*time.Second, minCmdTimeout), maxCmdTimeout)
}

func clampLines(v any) int {
	var lines int
	switch n := v.(type) {
	case float64:
		lines = int(n)
	case int:
		lines = n
	}
	if lines <= 0 {
		return defaultCmdLines
	}
	return min(max(lines, minCmdLines), maxCmdLines)
}

func truncateOutput(output string, maxLines int) (string, bool) {
	if output == "" {
		return "", false
	}
	truncated := false
	lines := strings.Split(output, "\n")
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		truncated = true
	}
	joined := strings.Join(lines, "\n")
	if len(joined) > maxCmdChars {
		joined = joined[:maxCmdChars]
		truncated = true
	}
	return joined, truncated
}

// NewRunCommandTool returns run_command. The approval gate screens the
// command text before it gets here.
func NewRunCommandTool(root string, runner sandbox.Runner) tools.Tool {
	return tools.Tool{
		Name:        "run_command",
		Description: "Runs a command in the workspace sandbox and returns exit code, stdout and stderr. Only allowlisted programs (build tools, linters, file utilities, git, shells) may be started. Pipes and && run through sh.",
		SchemaJSON: `{"type":"object","properties":{
			"command":{"type":"string","description":"Full command line, e.g. \"go test ./...\""},
			"timeout_seconds":{"type":"integer","minimum":5,"maximum":300},
			"max_output_lines":{"type":"integer","minimum":5,"maximum":200}
		},"required":["command"]}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			command, _ := args["command"].(string)
			return runCommandImpl(ctx, runner, root, command, clampTimeout(args["timeout_seconds"]), clampLines(args["max_output_lines"]))
		},
	}
}
