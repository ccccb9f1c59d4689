package execution

import (
	"context"
	"fmt"
	"strings"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/sandbox"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/workspace"
)

// projectCommandImpl runs the detected project's build or test command.
func projectCommandImpl(ctx context.Context, runner sandbox.Runner, root string, pick func(workspace.ProjectType) workspace.Command, what string) (string, error) {
	pt := workspace.DetectProjectType(root)
	if pt == workspace.ProjectTypeUnknown {
		return "", fmt.Errorf("could not detect the project type in %s", root)
	}
	cmd := pick(pt)
	if cmd.IsZero() {
		return "", fmt.Errorf("%s projects have no %s command", pt, what)
	}
	res, err := runner.RunCmd(ctx, root, cmd.Name, cmd.Args, 0)
	if err != nil && sandbox.IsCommandNotFound(err) {
		return "", fmt.Errorf("%s is not installed: %w", cmd.Name, err)
	}
	if err != nil && res.Code == 0 && !res.TimedOut {
		return "", err
	}
	out := ExecResult{Command: cmd.String(), ExitCode: res.Code, TimedOut: res.TimedOut, Status: "ok"}
	out.Stdout, out.StdoutTruncated = truncateOutput(strings.TrimSpace(res.Stdout), maxCmdLines)
	out.Stderr, out.StderrTruncated = truncateOutput(strings.TrimSpace(res.Stderr), maxCmdLines)
	if res.Code != 0 || res.TimedOut {
		out.Status = "failed"
	}
	return tools.ToJSON(out)
}

// NewRunBuildTool returns run_build.
func NewRunBuildTool(root string, runner sandbox.Runner) tools.Tool {
	return tools.Tool{
		Name:        "run_build",
		Description: "Builds the project with the command for its detected type (go build, npm run build, cargo build).",
		SchemaJSON:  `{"type":"object","properties":{}}`,
		Fn: func(ctx context.Context, _ map[string]any) (string, error) {
			return projectCommandImpl(ctx, runner, root, workspace.BuildCommand, "build")
		},
		Retryable: true,
	}
}

// NewRunTestsTool returns run_tests.
func NewRunTestsTool(root string, runner sandbox.Runner) tools.Tool {
	return tools.Tool{
		Name:        "run_tests",
		Description: "Runs the project's test suite with the command for its detected type (go test, npm test, pytest, cargo test).",
		SchemaJSON:  `{"type":"object","properties":{}}`,
		Fn: func(ctx context.Context, _ map[string]any) (string, error) {
			return projectCommandImpl(ctx, runner, root, workspace.TestCommand, "test")
		},
		Retryable: true,
	}
}
