// Package sandbox runs shell commands for tools and verification checks,
// either inside a locked-down Docker container or directly on the host.
package sandbox

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// Result captures output of a command.
type Result struct {
	Stdout   string
	Stderr   string
	Code     int
	TimedOut bool
}

// Combined returns stdout followed by stderr.
func (r Result) Combined() string {
	switch {
	case r.Stdout == "":
		return r.Stderr
	case r.Stderr == "":
		return r.Stdout
	default:
		return strings.TrimRight(r.Stdout, "\n") + "\n" + r.Stderr
	}
}

// Runner runs a command in a working directory with a timeout.
// A non-zero exit is reported through Result.Code together with a non-nil
// error; a zero timeout means the runner's default.
type Runner interface {
	RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error)
}

// IsCommandNotFound reports whether err means the program is not installed.
func IsCommandNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	var pe *exec.Error
	if errors.As(err, &pe) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "executable file not found") || strings.Contains(msg, "command not found")
}
