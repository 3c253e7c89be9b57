package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/raphaelgruber/threadsync/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestIsFatalAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil error", nil, false},
		{"generic error", errors.New("connection reset"), false},
		{"credit balance", errors.New("insufficient credit balance"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"quota exceeded", errors.New("quota exceeded for model"), true},
		{"billing issue", errors.New("billing account inactive"), true},
		{"invalid api key", errors.New("invalid api key"), true},
		{"authentication failed", errors.New("authentication failed"), true},
		{"unauthorized", errors.New("unauthorized request"), true},
		{"401 status", errors.New("HTTP 401: not allowed"), true},
		{"403 status", errors.New("HTTP 403: forbidden"), true},
		{"wrapped error", fmt.Errorf("embed: %w", errors.New("credit balance too low")), true},
		{"404 not fatal", errors.New("HTTP 404: not found"), false},
		{"timeout not fatal", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isFatalAPIError(tt.err)
			if got != tt.fatal {
				t.Errorf("isFatalAPIError(%v) = %v, want %v", tt.err, got, tt.fatal)
			}
		})
	}
}

func TestWrapFatalError(t *testing.T) {
	t.Run("wraps fatal error", func(t *testing.T) {
		err := errors.New("invalid api key provided")
		wrapped := wrapFatalError(err)
		if !errors.Is(wrapped, ErrFatalAPI) {
			t.Errorf("expected wrapped error to match ErrFatalAPI")
		}
	})

	t.Run("passes through non-fatal error", func(t *testing.T) {
		err := errors.New("network timeout")
		result := wrapFatalError(err)
		if errors.Is(result, ErrFatalAPI) {
			t.Errorf("non-fatal error should not be wrapped with ErrFatalAPI")
		}
		if result != err {
			t.Errorf("expected original error returned, got %v", result)
		}
	})

	t.Run("nil error", func(t *testing.T) {
		result := wrapFatalError(nil)
		if result != nil {
			t.Errorf("expected nil, got %v", result)
		}
	})
}

// stubLLM records the last request and replies with a canned response.
type stubLLM struct {
	response *llms.ContentResponse
	err      error

	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (s *stubLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	s.messages = messages
	for _, opt := range options {
		opt(&s.opts)
	}
	return s.response, s.err
}

func (s *stubLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, s, prompt, options...)
}

func TestModelComplete(t *testing.T) {
	t.Run("maps roles and temperature", func(t *testing.T) {
		stub := &stubLLM{response: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
			Content:        "summary",
			GenerationInfo: map[string]any{"PromptTokens": 12, "CompletionTokens": 3},
		}}}}
		collector := metrics.NewCollector()
		m := newModel(stub, "test-model", collector, nil)

		out, err := m.Complete(context.Background(), []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "hello"},
			{Role: RoleAssistant, Content: "hi"},
		}, 0.1)
		require.NoError(t, err)
		assert.Equal(t, "summary", out)

		require.Len(t, stub.messages, 3)
		assert.Equal(t, llms.ChatMessageTypeSystem, stub.messages[0].Role)
		assert.Equal(t, llms.ChatMessageTypeHuman, stub.messages[1].Role)
		assert.Equal(t, llms.ChatMessageTypeAI, stub.messages[2].Role)
		assert.InDelta(t, 0.1, stub.opts.Temperature, 1e-9)

		op, ok := collector.Snapshot().Op(metrics.OpCompletion)
		require.True(t, ok)
		assert.Equal(t, int64(1), op.Count)
		require.NotNil(t, op.InTokens)
		assert.Equal(t, int64(12), op.InTokens.Total)
	})

	t.Run("transport error is completion unavailable", func(t *testing.T) {
		stub := &stubLLM{err: errors.New("connection refused")}
		m := newModel(stub, "test-model", nil, nil)

		_, err := m.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, 0.7)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCompletionUnavailable)
		assert.NotErrorIs(t, err, ErrFatalAPI)
	})

	t.Run("auth error is fatal", func(t *testing.T) {
		stub := &stubLLM{err: errors.New("HTTP 401: invalid api key")}
		m := newModel(stub, "test-model", nil, nil)

		_, err := m.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, 0.7)
		assert.ErrorIs(t, err, ErrCompletionUnavailable)
		assert.ErrorIs(t, err, ErrFatalAPI)
	})

	t.Run("empty choices", func(t *testing.T) {
		stub := &stubLLM{response: &llms.ContentResponse{}}
		m := newModel(stub, "test-model", nil, nil)

		_, err := m.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, 0.7)
		assert.ErrorIs(t, err, ErrCompletionUnavailable)
	})
}
