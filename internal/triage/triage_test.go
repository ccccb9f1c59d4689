package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/llm"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
)

type fakeClient struct {
	calls    int
	lastOpts llm.ChatOptions
	ChatFunc func(msgs []message.Message) (llm.Response, error)
}

func (f *fakeClient) Chat(ctx context.Context, model string, msgs []message.Message, tools []llm.ToolSchema, opts llm.ChatOptions) (llm.Response, error) {
	f.calls++
	f.lastOpts = opts
	return f.ChatFunc(msgs)
}

func (f *fakeClient) Stream(ctx context.Context, model string, msgs []message.Message, tools []llm.ToolSchema, opts llm.ChatOptions) (<-chan llm.StreamEvent, <-chan error) {
	events := make(chan llm.StreamEvent)
	errs := make(chan error, 1)
	close(events)
	errs <- errors.New("not implemented")
	close(errs)
	return events, errs
}

func reply(s string) func([]message.Message) (llm.Response, error) {
	return func([]message.Message) (llm.Response, error) { return llm.Response{Content: s}, nil }
}

func TestKeywordClassifier(t *testing.T) {
	k, err := NewKeyword(DefaultKeywords())
	require.NoError(t, err)

	tests := []struct {
		text    string
		decided bool
		reason  string
	}{
		{"fix the bug in src/app.ts", true, "file name src/app.ts"},
		{"please look at @main.go", true, "file reference @main.go"},
		{"Refactor the parser", true, "keyword refactor"},
		{"이 함수를 수정해줘", true, "keyword 함수"},
		{"안녕하세요", false, ""},
		{"what is the capital of France?", false, ""},
		{"e.g. tell me a joke", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res, err := k.Classify(context.Background(), tt.text)
			if !tt.decided {
				assert.ErrorIs(t, err, ErrUndecided)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Graph, res.Decision)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestModelClassifier(t *testing.T) {
	tests := []struct {
		name string
		fn   func([]message.Message) (llm.Response, error)
		want Decision
	}{
		{"simple", reply("SIMPLE"), DirectResponse},
		{"simple lowercase with noise", reply(" simple."), DirectResponse},
		{"complex", reply("COMPLEX"), Graph},
		{"ambiguous", reply("I am not sure"), Graph},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeClient{ChatFunc: tt.fn}
			res, err := (&Model{Client: fc, Model: "m"}).Classify(context.Background(), "hi")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Decision)
			assert.Equal(t, 10, fc.lastOpts.MaxOutputTokens)
			assert.Zero(t, fc.lastOpts.Temperature)
		})
	}
}

func TestChain(t *testing.T) {
	t.Run("greeting goes direct through the model", func(t *testing.T) {
		fc := &fakeClient{ChatFunc: reply("SIMPLE")}
		chain, err := NewDefault(DefaultKeywords(), fc, "m")
		require.NoError(t, err)
		res, err := chain.Classify(context.Background(), "안녕하세요")
		require.NoError(t, err)
		assert.Equal(t, DirectResponse, res.Decision)
		assert.Equal(t, 1, fc.calls)
	})

	t.Run("keyword hit skips the model", func(t *testing.T) {
		fc := &fakeClient{ChatFunc: reply("SIMPLE")}
		chain, err := NewDefault(DefaultKeywords(), fc, "m")
		require.NoError(t, err)
		res, err := chain.Classify(context.Background(), "fix the bug in src/app.ts")
		require.NoError(t, err)
		assert.Equal(t, Graph, res.Decision)
		assert.Zero(t, fc.calls)
	})

	t.Run("model failure fails safe", func(t *testing.T) {
		fc := &fakeClient{ChatFunc: func([]message.Message) (llm.Response, error) {
			return llm.Response{}, errors.New("503 unavailable")
		}}
		chain, err := NewDefault(DefaultKeywords(), fc, "m")
		require.NoError(t, err)
		res, err := chain.Classify(context.Background(), "hello there")
		require.NoError(t, err)
		assert.Equal(t, Graph, res.Decision)
	})

	t.Run("nobody decides", func(t *testing.T) {
		k, err := NewKeyword(Keywords{})
		require.NoError(t, err)
		res, err := Chain{k}.Classify(context.Background(), "anything")
		require.NoError(t, err)
		assert.Equal(t, Graph, res.Decision)
	})
}
