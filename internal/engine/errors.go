package engine

import (
	"context"
	"errors"
	"fmt"
)

// ErrAborted is returned when the conversation was aborted by the host or
// the run context was cancelled. It is never retried.
var ErrAborted = errors.New("engine: aborted")

// ErrNotSuspended is returned by Resume when no approval is pending.
var ErrNotSuspended = errors.New("engine: no pending approval")

// NodeError wraps an unexpected failure inside a node.
type NodeError struct {
	Node      string
	Iteration int
	Err       error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (iteration %d): %v", e.Node, e.Iteration, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

func aborted(cause error) error {
	if cause == nil || errors.Is(cause, ErrAborted) {
		return ErrAborted
	}
	return fmt.Errorf("%w: %w", ErrAborted, cause)
}

func isAbort(ctx context.Context, err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled) || ctx.Err() != nil
}
