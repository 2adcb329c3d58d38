package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	boom := errors.New("connection reset")
	tests := []struct {
		name      string
		n, limit  int
		o         outcome
		wantKind  stepKind
		wantDelay time.Duration
		wantErr   string
	}{
		{"success", 1, 3, outcome{content: "x", hasContent: true}, stepSuccess, 0, ""},
		{"429 first attempt", 1, 3, outcome{status: 429}, stepRetry, 2 * time.Second, ""},
		{"429 second attempt", 2, 3, outcome{status: 429}, stepRetry, 4 * time.Second, ""},
		{"429 last attempt", 3, 3, outcome{status: 429}, stepTerminal, 0, "Rate limited after 3 retries"},
		{"429 single attempt", 1, 1, outcome{status: 429, retryAfter: "1"}, stepTerminal, 0, "Rate limited after 1 retries"},
		{"429 with hint", 1, 3, outcome{status: 429, retryAfter: "5"}, stepRetry, 5 * time.Second, ""},
		{"500 never retried", 1, 3, outcome{status: 500, body: "oops"}, stepTerminal, 0, "completion API returned status 500: oops"},
		{"transport retried", 1, 3, outcome{err: boom}, stepRetry, 2 * time.Second, ""},
		{"transport last attempt", 3, 3, outcome{err: boom}, stepTerminal, 0, "connection reset"},
		{"missing content", 1, 3, outcome{}, stepTerminal, 0, "invalid completion API response format"},
		{"malformed", 1, 3, outcome{malformed: true}, stepTerminal, 0, "invalid completion API response format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := next(tt.n, tt.limit, tt.o)
			assert.Equal(t, tt.wantKind, st.kind, st.kind.String())
			assert.Equal(t, tt.wantDelay, st.delay)
			assert.Equal(t, tt.wantErr, st.err)
		})
	}
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 4*time.Second, backoff(2))
	assert.Equal(t, 16*time.Second, backoff(4))
	assert.Equal(t, MaxBackoff, backoff(5))
	assert.Equal(t, MaxBackoff, backoff(64))
}

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"json fence", "```json\n{\"k\": \"v\"}\n```", `{"k": "v"}`},
		{"bare fence", "```\n{\"k\": \"v\"}\n```", `{"k": "v"}`},
		{"fence without newline", "```{\"k\": \"v\"}```", `{"k": "v"}`},
		{"plain", `  {"k": "v"}  `, `{"k": "v"}`},
		{"prose untouched", "Looks good.", "Looks good."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONBlock(tt.in))
		})
	}
}

func TestTaskStructured(t *testing.T) {
	assert.True(t, TaskTodoAnalysis.Structured())
	assert.True(t, TaskCompanyExtraction.Structured())
	assert.True(t, TaskGoalsExtraction.Structured())
	assert.False(t, TaskChat.Structured())
	assert.False(t, Task("other").Structured())
}

func anthropicMessage(text string) []byte {
	b, _ := json.Marshal(map[string]any{
		"id":          "msg_1",
		"type":        "message",
		"role":        "assistant",
		"content":     []map[string]any{{"type": "text", "text": text}},
		"model":       "claude-sonnet-4-5-20250929",
		"stop_reason": "end_turn",
		"usage":       map[string]any{"input_tokens": 12, "output_tokens": 8},
	})
	return b
}

func TestComplete_AnthropicProvider(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		w.Write(anthropicMessage("```json\n{\"facts\": {\"name\": \"Acme\"}}\n```")) //nolint:errcheck
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c, err := New(Config{Provider: ProviderAnthropic, APIKey: "k", BaseURL: srv.URL, Model: "claude-sonnet-4-5-20250929"}, WithSleep(rec.sleep))
	require.NoError(t, err)

	res := c.Complete(context.Background(), Request{Task: TaskCompanyExtraction, SystemMessage: "Extract facts."})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, map[string]any{"facts": map[string]any{"name": "Acme"}}, res.Data)
	assert.Equal(t, 20, res.TokensUsed)

	system := got["system"].([]any)
	require.Len(t, system, 1)
	assert.Equal(t, "Extract facts.\n\n"+jsonInstruction, system[0].(map[string]any)["text"])
}

func TestComplete_AnthropicRateLimited(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c, err := New(Config{Provider: ProviderAnthropic, APIKey: "k", BaseURL: srv.URL, Model: "m"}, WithSleep(rec.sleep))
	require.NoError(t, err)

	res := c.Complete(context.Background(), Request{Task: TaskChat})
	assert.False(t, res.Success)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, "Rate limited after 3 retries", res.Error)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, rec.delays)
}
