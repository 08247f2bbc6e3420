package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanschultz/pmforge/internal/llm"
	"github.com/evanschultz/pmforge/internal/llm/llmtest"
)

func fastRetry(attempts int) llm.RetryConfig {
	return llm.RetryConfig{MaxAttempts: attempts, BackoffBase: time.Millisecond, BackoffMultiplier: 2, MaxBackoff: 5 * time.Millisecond}
}

func TestTextNormalizesReplyShapes(t *testing.T) {
	tests := []struct {
		name  string
		reply any
		want  string
	}{
		{"string", "hello", "hello"},
		{"nil", nil, ""},
		{"response", &llm.Response{Content: "from response"}, "from response"},
		{"content object", map[string]any{"content": "obj"}, "obj"},
		{"content parts", map[string]any{"content": []any{map[string]any{"type": "text", "text": "a"}, "b"}}, "ab"},
		{"choices message", map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": "chosen"}}}}, "chosen"},
		{"choices text", map[string]any{"choices": []any{map[string]any{"text": "legacy"}}}, "legacy"},
		{"ollama message", map[string]any{"message": map[string]any{"role": "assistant", "content": "local"}}, "local"},
		{"raw json", json.RawMessage(`{"choices":[{"message":{"content":"raw"}}]}`), "raw"},
		{"raw response", &llm.Response{Raw: map[string]any{"content": "nested"}}, "nested"},
		{"unknown", 42, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, llm.Text(tt.reply))
		})
	}
}

func TestExtractJSON(t *testing.T) {
	t.Run("fenced block", func(t *testing.T) {
		got := llm.ExtractJSON("Here you go:\n```json\n{\"a\": 1}\n```\nthanks")
		assert.JSONEq(t, `{"a":1}`, got)
	})
	t.Run("first object wins", func(t *testing.T) {
		got := llm.ExtractJSON(`prefix {"a": {"b": "}"}} then {"c": 2}`)
		assert.JSONEq(t, `{"a":{"b":"}"}}`, got)
	})
	t.Run("comments and trailing commas", func(t *testing.T) {
		got := llm.ExtractJSON("{\n  \"url\": \"http://x.io\", // link\n  \"list\": [1, 2,],\n}")
		assert.JSONEq(t, `{"url":"http://x.io","list":[1,2]}`, got)
	})
	t.Run("skips invalid candidates", func(t *testing.T) {
		got := llm.ExtractJSON(`{not json} and {"ok": true}`)
		assert.JSONEq(t, `{"ok":true}`, got)
	})
	t.Run("none", func(t *testing.T) {
		assert.Empty(t, llm.ExtractJSON("The system shall do things."))
	})
	t.Run("array", func(t *testing.T) {
		got := llm.ExtractJSONArray("```\n[{\"id\": \"1\"},]\n```")
		assert.JSONEq(t, `[{"id":"1"}]`, got)
	})
}

func TestDecodeObjectAndArray(t *testing.T) {
	type item struct {
		ID string `json:"id"`
	}
	obj, err := llm.DecodeObject[item](`noise {"id": "x"}`)
	require.NoError(t, err)
	assert.Equal(t, "x", obj.ID)

	_, err = llm.DecodeObject[item]("prose only")
	assert.ErrorIs(t, err, llm.ErrNoJSON)

	arr, err := llm.DecodeArray[item](`[{"id":"a"},{"id":"b"}]`)
	require.NoError(t, err)
	assert.Len(t, arr, 2)
}

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")
	assert.True(t, llm.IsTransient(llm.NewTransientError(base)))
	assert.False(t, llm.IsFatal(llm.NewTransientError(base)))
	assert.True(t, llm.IsFatal(llm.NewFatalError(base)))
	assert.ErrorIs(t, llm.NewFatalError(base), base)
	assert.NoError(t, llm.NewTransientError(nil))
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	var notified []int
	err := llm.Retry(context.Background(), fastRetry(3), func(_ context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("transient")
		}
		return nil
	}, func(attempt int, _ error, _ time.Duration) {
		notified = append(notified, attempt)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int{1}, notified)
}

func TestRetryExhaustsAndReturnsLastError(t *testing.T) {
	calls := 0
	err := llm.Retry(context.Background(), fastRetry(3), func(_ context.Context, attempt int) error {
		calls++
		return errors.New("attempt failed")
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnFatal(t *testing.T) {
	calls := 0
	fatal := errors.New("bad key")
	err := llm.Retry(context.Background(), fastRetry(5), func(_ context.Context, _ int) error {
		calls++
		return llm.NewFatalError(fatal)
	}, nil)
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestCallerTimeoutReturnsEmptyTransient(t *testing.T) {
	client := &llmtest.Client{Replies: []llmtest.Reply{{Block: true}}}
	caller := llm.NewCaller(client, llm.WithTimeout(20*time.Millisecond))
	text, err := caller.Text(context.Background(), []llm.Message{llm.User("hi")})
	assert.Empty(t, text)
	assert.ErrorIs(t, err, llm.ErrTimeout)
	assert.True(t, llm.IsTransient(err))
}

func TestCallerTimeoutWhenClientIgnoresContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	client := llm.ClientFunc(func(context.Context, []llm.Message) (*llm.Response, error) {
		<-release
		return &llm.Response{Content: "late"}, nil
	})
	caller := llm.NewCaller(client, llm.WithTimeout(20*time.Millisecond))
	_, err := caller.Text(context.Background(), []llm.Message{llm.User("hi")})
	assert.ErrorIs(t, err, llm.ErrTimeout)
}

func TestCallerRetriesEmptyReplies(t *testing.T) {
	client := llmtest.New("", "  ", "final answer")
	var outcomes []llm.CallOutcome
	caller := llm.NewCaller(client,
		llm.WithRetry(fastRetry(3)),
		llm.WithObserver(func(o llm.CallOutcome, _ time.Duration) { outcomes = append(outcomes, o) }),
	)
	text, attempt, err := caller.TextWithRetry(context.Background(), []llm.Message{llm.User("hi")})
	require.NoError(t, err)
	assert.Equal(t, "final answer", text)
	assert.Equal(t, 3, attempt)
	assert.Equal(t, []llm.CallOutcome{llm.OutcomeEmpty, llm.OutcomeEmpty, llm.OutcomeOK}, outcomes)
}

func TestCallerUnavailable(t *testing.T) {
	caller := llm.NewCaller(nil)
	assert.False(t, caller.Available())
	_, _, err := caller.TextWithRetry(context.Background(), nil)
	assert.ErrorIs(t, err, llm.ErrUnavailable)
}

func TestNewProviderNoneIsUnavailable(t *testing.T) {
	_, err := llm.New(llm.ProviderConfig{Provider: "none"})
	assert.ErrorIs(t, err, llm.ErrUnavailable)
	_, err = llm.New(llm.ProviderConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestRecorderDump(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	rec := llm.NewRecorder(dir, func() time.Time { return now })
	path, err := rec.Dump("proj-1", 2, "raw reply")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "proj-1"), filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "llm_raw_attempt2_"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "raw reply", string(data))

	_, err = rec.Dump("../escape", 1, "x")
	assert.Error(t, err)

	disabled := llm.NewRecorder("", nil)
	path, err = disabled.Dump("proj-1", 1, "x")
	require.NoError(t, err)
	assert.Empty(t, path)
}
