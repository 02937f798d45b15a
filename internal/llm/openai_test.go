package llm

import (
	"context"
	"encoding/json"
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

func TestOpenAIClientComplete(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatResponseBody(`{"ok":true}`)))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(testConfig(server.URL))
	require.NoError(t, err)

	got, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}},
		NewChatCompletionOptions().WithSystemPrompt("sys").WithJSONMode(true))
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, got)

	assert.Equal(t, "test-model", body["model"])
	messages, _ := body["messages"].([]any)
	require.Len(t, messages, 2)
	format, _ := body["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
}

func TestOpenAIClientRetriesRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		_, _ = w.Write([]byte(chatResponseBody("done")))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(testConfig(server.URL))
	require.NoError(t, err)
	client.backoff = func(int) time.Duration { return time.Millisecond }

	got, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIClientFailsFastOnOtherErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
