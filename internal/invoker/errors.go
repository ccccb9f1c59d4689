package invoker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools"
)

// RetryClass indicates whether an error should be retried.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"     // transport or availability failure
	RetryClassMaybe        RetryClass = "maybe"         // retry at most twice
	RetryClassNonRetryable RetryClass = "non_retryable" // deterministic failure
)

// ErrToolNotFound is matched by errors.Is for unknown tool names.
var ErrToolNotFound = errors.New("tool not found")

// NotFoundError is returned when a name resolves to neither a built-in nor an external tool.
type NotFoundError struct {
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %s (available tools: %s)", e.Name, strings.Join(e.Available, ", "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrToolNotFound }

// TimeoutError is returned when a single attempt exceeds the hard timeout.
type TimeoutError struct {
	Tool    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tool %s timeout after %s", e.Tool, e.Timeout)
}

// ToolError wraps a tool failure with its classification.
type ToolError struct {
	Err   error
	Class RetryClass
}

func (e *ToolError) Error() string { return e.Err.Error() }

func (e *ToolError) Unwrap() error { return e.Err }

// RetryExhaustedError indicates that all retry attempts failed.
type RetryExhaustedError struct {
	Err       error
	Attempts  int
	IsGuarded bool // true when a "maybe" error hit its reduced limit
}

func (e *RetryExhaustedError) Error() string {
	if e.IsGuarded {
		return fmt.Sprintf("guarded retries exhausted after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// IsRetryExhausted reports whether err is a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var re *RetryExhaustedError
	return errors.As(err, &re)
}

// ClassifyToolError decides whether a tool failure is worth another attempt.
// Only transport and availability failures are retried.
func ClassifyToolError(err error) RetryClass {
	if err == nil {
		return RetryClassNonRetryable
	}

	var te *ToolError
	if errors.As(err, &te) {
		return te.Class
	}
	if errors.Is(err, ErrToolNotFound) || errors.Is(err, context.Canceled) {
		return RetryClassNonRetryable
	}
	var ve *tools.ValidationError
	if errors.As(err, &ve) {
		return RetryClassNonRetryable
	}
	var to *TimeoutError
	if errors.As(err, &to) {
		return RetryClassRetryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return RetryClassMaybe
	}

	s := strings.ToLower(err.Error())

	// Deterministic failures first so "not found" text never retries.
	for _, marker := range []string{"not found", "no such file", "permission denied", "invalid input", "outside the workspace"} {
		if strings.Contains(s, marker) {
			return RetryClassNonRetryable
		}
	}
	for _, marker := range []string{
		"timeout", "timed out", "connection reset", "connection refused", "broken pipe",
		"network", "temporary failure", "temporarily unavailable", "service unavailable",
		"bad gateway", "gateway timeout", "502", "503", "504", "unexpected eof",
	} {
		if strings.Contains(s, marker) {
			return RetryClassRetryable
		}
	}
	return RetryClassNonRetryable
}
