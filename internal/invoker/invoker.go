// Package invoker executes single tool calls under a hard timeout and a
// bounded retry policy. Failures are returned as values so that one bad call
// never aborts its siblings.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools"
)

// Policy bundles the timeout and retry settings.
type Policy struct {
	Timeout time.Duration `yaml:"timeout"`
	Retry   RetryPolicy   `yaml:"retry"`
}

// DefaultPolicy is a 6 minute hard timeout with 2 retries backing off from 2s.
func DefaultPolicy() Policy {
	return Policy{
		Timeout: 6 * time.Minute,
		Retry: RetryPolicy{
			MaxRetries:   2,
			InitialDelay: 2 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Outcome is the classified result of one call.
type Outcome struct {
	Call     message.ToolCall
	Result   string
	Err      error
	Duration time.Duration
	Attempts int
	Source   string // "builtin" or the external server name
}

// OK reports success.
func (o Outcome) OK() bool { return o.Err == nil }

// ToolResult converts the outcome into a transcript result.
func (o Outcome) ToolResult() message.ToolResult {
	r := message.ToolResult{
		ToolCallID: o.Call.ID,
		ToolName:   o.Call.Name,
		Result:     o.Result,
		Duration:   o.Duration,
		Attempts:   o.Attempts,
	}
	if o.Err != nil {
		r.Result = ""
		r.Error = o.Err.Error()
	}
	return r
}

// RetryFunc observes retries.
type RetryFunc func(call message.ToolCall, attempt int, delay time.Duration, err error)

// Invoker resolves and runs tool calls.
type Invoker struct {
	catalog *tools.Catalog
	policy  Policy
	onRetry RetryFunc
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithRetryObserver registers a retry callback.
func WithRetryObserver(fn RetryFunc) Option {
	return func(iv *Invoker) { iv.onRetry = fn }
}

// New creates an Invoker over catalog.
func New(catalog *tools.Catalog, policy Policy, opts ...Option) *Invoker {
	if catalog == nil {
		catalog = &tools.Catalog{}
	}
	if policy.Timeout <= 0 {
		policy.Timeout = DefaultPolicy().Timeout
	}
	iv := &Invoker{catalog: catalog, policy: policy}
	for _, o := range opts {
		o(iv)
	}
	return iv
}

// Invoke runs one call. Built-in tools are resolved first, then external
// tools by name. The returned Outcome always refers to call.
func (iv *Invoker) Invoke(ctx context.Context, call message.ToolCall) Outcome {
	start := time.Now()
	out := Outcome{Call: call}

	fn, retryable, source, err := iv.resolve(ctx, call)
	if err != nil {
		out.Err = err
		out.Duration = time.Since(start)
		return out
	}
	out.Source = source

	policy := iv.policy.Retry
	if !retryable {
		policy.MaxRetries = 0
	}

	var onRetry func(int, time.Duration, error)
	if iv.onRetry != nil {
		onRetry = func(attempt int, delay time.Duration, err error) {
			iv.onRetry(call, attempt, delay, err)
		}
	}

	res, attempts, err := RetryWithPolicy(ctx, policy, func(ctx context.Context) (string, error) {
		return iv.attempt(ctx, call, fn)
	}, ClassifyToolError, onRetry)

	out.Result = res
	out.Err = err
	out.Attempts = attempts
	out.Duration = time.Since(start)
	return out
}

func (iv *Invoker) resolve(ctx context.Context, call message.ToolCall) (tools.Func, bool, string, error) {
	if t, ok := iv.catalog.Builtin[call.Name]; ok {
		if call.Args == nil && call.RawArgs != "" {
			return nil, false, "", &tools.ValidationError{ToolName: call.Name, Errors: []string{"arguments are not valid JSON: " + call.RawArgs}}
		}
		if err := t.ValidateArgs(call.Args); err != nil {
			return nil, false, "", err
		}
		return t.Fn, t.Retryable, "builtin", nil
	}

	ext, ok, err := iv.catalog.FindExternal(ctx, call.Name)
	if err != nil {
		return nil, false, "", &ToolError{Err: err, Class: RetryClassNonRetryable}
	}
	if !ok {
		return nil, false, "", &NotFoundError{Name: call.Name, Available: iv.catalog.Builtin.Names()}
	}
	external := iv.catalog.External
	fn := func(ctx context.Context, args map[string]any) (string, error) {
		return external.InvokeExternal(ctx, ext.SourceServer, ext.Name, args)
	}
	return fn, true, ext.SourceServer, nil
}

// attempt runs fn once under the hard timeout. A tool that ignores its
// context is abandoned when the timeout fires.
func (iv *Invoker) attempt(ctx context.Context, call message.ToolCall, fn tools.Func) (string, error) {
	name := call.Name
	actx, cancel := context.WithTimeout(ctx, iv.policy.Timeout)
	defer cancel()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("tool %s panicked: %v", name, r)}
			}
		}()
		out, err := fn(actx, call.Args)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", &TimeoutError{Tool: name, Timeout: iv.policy.Timeout}
		}
		return r.out, r.err
	case <-actx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &TimeoutError{Tool: name, Timeout: iv.policy.Timeout}
	}
}
