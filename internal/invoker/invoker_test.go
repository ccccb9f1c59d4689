package invoker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools"
)

func fastPolicy() Policy {
	return Policy{
		Timeout: 200 * time.Millisecond,
		Retry: RetryPolicy{
			MaxRetries:   2,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		},
	}
}

type mockExternal struct {
	ListFunc   func(ctx context.Context) ([]tools.ExternalTool, error)
	InvokeFunc func(ctx context.Context, server, name string, args map[string]any) (string, error)
}

func (m *mockExternal) ListExternalTools(ctx context.Context) ([]tools.ExternalTool, error) {
	return m.ListFunc(ctx)
}

func (m *mockExternal) InvokeExternal(ctx context.Context, server, name string, args map[string]any) (string, error) {
	return m.InvokeFunc(ctx, server, name, args)
}

func TestInvokeUnknownToolIsNotRetried(t *testing.T) {
	iv := New(&tools.Catalog{Builtin: tools.Registry{}}, fastPolicy())
	out := iv.Invoke(context.Background(), message.ToolCall{ID: "c1", Name: "nope"})
	if out.OK() {
		t.Fatal("expected failure")
	}
	if !errors.Is(out.Err, ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", out.Err)
	}
	if out.Attempts != 0 {
		t.Errorf("expected no attempts, got %d", out.Attempts)
	}
	if res := out.ToolResult(); res.ToolCallID != "c1" || res.Error == "" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestInvokeRetriesTransportFailures(t *testing.T) {
	var calls int32
	reg := tools.Registry{}
	reg.Register(tools.Tool{
		Name:      "flaky",
		Retryable: true,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return "", errors.New("connection reset by peer")
			}
			return "ok", nil
		},
	})
	iv := New(&tools.Catalog{Builtin: reg}, fastPolicy())

	var retries int
	iv.onRetry = func(message.ToolCall, int, time.Duration, error) { retries++ }

	out := iv.Invoke(context.Background(), message.ToolCall{ID: "c1", Name: "flaky"})
	if !out.OK() {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Result != "ok" || out.Attempts != 3 || retries != 2 {
		t.Errorf("result=%q attempts=%d retries=%d", out.Result, out.Attempts, retries)
	}
}

func TestInvokeExhaustsRetries(t *testing.T) {
	reg := tools.Registry{}
	reg.Register(tools.Tool{
		Name:      "down",
		Retryable: true,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("503 service unavailable")
		},
	})
	iv := New(&tools.Catalog{Builtin: reg}, fastPolicy())
	out := iv.Invoke(context.Background(), message.ToolCall{ID: "c1", Name: "down"})
	if !IsRetryExhausted(out.Err) {
		t.Fatalf("expected RetryExhaustedError, got %v", out.Err)
	}
	if out.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", out.Attempts)
	}
}

func TestInvokeDeterministicFailureNotRetried(t *testing.T) {
	var calls int32
	reg := tools.Registry{}
	reg.Register(tools.Tool{
		Name:      "read",
		Retryable: true,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			atomic.AddInt32(&calls, 1)
			return "", errors.New("open x.go: no such file or directory")
		},
	})
	iv := New(&tools.Catalog{Builtin: reg}, fastPolicy())
	out := iv.Invoke(context.Background(), message.ToolCall{ID: "c1", Name: "read"})
	if out.OK() || calls != 1 {
		t.Errorf("calls = %d, err = %v", calls, out.Err)
	}
}

func TestInvokeTimeout(t *testing.T) {
	reg := tools.Registry{}
	reg.Register(tools.Tool{
		Name: "slow",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			time.Sleep(time.Second)
			return "late", nil
		},
	})
	p := fastPolicy()
	p.Timeout = 20 * time.Millisecond
	iv := New(&tools.Catalog{Builtin: reg}, p)

	start := time.Now()
	out := iv.Invoke(context.Background(), message.ToolCall{ID: "c1", Name: "slow"})
	var te *TimeoutError
	if !errors.As(out.Err, &te) {
		t.Fatalf("expected TimeoutError, got %v", out.Err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("timeout not enforced: %s", time.Since(start))
	}
}

func TestInvokeValidatesArgs(t *testing.T) {
	reg := tools.Registry{}
	reg.Register(tools.Tool{
		Name:       "read_file",
		SchemaJSON: `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			return "content", nil
		},
	})
	iv := New(&tools.Catalog{Builtin: reg}, fastPolicy())

	tests := []struct {
		name    string
		call    message.ToolCall
		wantErr bool
	}{
		{"valid", message.ToolCall{ID: "1", Name: "read_file", Args: map[string]any{"path": "a.go"}}, false},
		{"missing path", message.ToolCall{ID: "2", Name: "read_file", Args: map[string]any{}}, true},
		{"raw args", message.ToolCall{ID: "3", Name: "read_file", RawArgs: `{"path":`}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := iv.Invoke(context.Background(), tt.call)
			if (out.Err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", out.Err, tt.wantErr)
			}
			var ve *tools.ValidationError
			if tt.wantErr && !errors.As(out.Err, &ve) {
				t.Errorf("expected ValidationError, got %T", out.Err)
			}
		})
	}
}

func TestInvokeFallsBackToExternal(t *testing.T) {
	ext := &mockExternal{
		ListFunc: func(ctx context.Context) ([]tools.ExternalTool, error) {
			return []tools.ExternalTool{{Name: "web_search", SourceServer: "search-server"}}, nil
		},
		InvokeFunc: func(ctx context.Context, server, name string, args map[string]any) (string, error) {
			return server + ":" + name, nil
		},
	}
	iv := New(&tools.Catalog{Builtin: tools.Registry{}, External: ext}, fastPolicy())
	out := iv.Invoke(context.Background(), message.ToolCall{ID: "c1", Name: "web_search"})
	if !out.OK() {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Result != "search-server:web_search" || out.Source != "search-server" {
		t.Errorf("result=%q source=%q", out.Result, out.Source)
	}
}

func TestInvokeRecoversPanics(t *testing.T) {
	reg := tools.Registry{}
	reg.Register(tools.Tool{
		Name: "boom",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			panic("bad")
		},
	})
	iv := New(&tools.Catalog{Builtin: reg}, fastPolicy())
	out := iv.Invoke(context.Background(), message.ToolCall{ID: "c1", Name: "boom"})
	if out.OK() {
		t.Fatal("expected panic to surface as error")
	}
}

func TestClassifyToolError(t *testing.T) {
	tests := []struct {
		err  error
		want RetryClass
	}{
		{errors.New("dial tcp: connection refused"), RetryClassRetryable},
		{errors.New("file not found"), RetryClassNonRetryable},
		{&TimeoutError{Tool: "x", Timeout: time.Second}, RetryClassRetryable},
		{context.Canceled, RetryClassNonRetryable},
		{&NotFoundError{Name: "x"}, RetryClassNonRetryable},
		{&ToolError{Err: errors.New("x"), Class: RetryClassMaybe}, RetryClassMaybe},
		{errors.New("something odd"), RetryClassNonRetryable},
	}
	for _, tt := range tests {
		if got := ClassifyToolError(tt.err); got != tt.want {
			t.Errorf("ClassifyToolError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestCalculateDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: 2 * time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	if d := calculateDelay(p, 0); d != 2*time.Second {
		t.Errorf("attempt 0 delay = %s", d)
	}
	if d := calculateDelay(p, 1); d != 4*time.Second {
		t.Errorf("attempt 1 delay = %s", d)
	}
	if d := calculateDelay(p, 2); d != 5*time.Second {
		t.Errorf("attempt 2 delay = %s (want cap)", d)
	}
}
