package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChat struct {
	reply    string
	err      error
	messages []Message
	opts     *ChatCompletionOptions
}

func (s *stubChat) Complete(_ context.Context, messages []Message, opts *ChatCompletionOptions) (string, error) {
	s.messages = messages
	s.opts = opts
	return s.reply, s.err
}

func TestServiceGenerateJSON(t *testing.T) {
	chat := &stubChat{reply: "```json\n{\"layout\":[{\"blockType\":\"hero\"}]}\n```"}
	svc := NewService(chat)

	res := svc.Generate(context.Background(), Request{Prompt: "build", System: "sys", Mode: ModeJSON})
	require.True(t, res.Success)
	assert.True(t, chat.opts.JSONMode)
	assert.Equal(t, "sys", chat.opts.SystemPrompt)
	require.Len(t, chat.messages, 1)
	assert.Equal(t, "build", chat.messages[0].Content)

	var out struct {
		Layout []map[string]any `json:"layout"`
	}
	require.NoError(t, res.Decode(&out))
	require.Len(t, out.Layout, 1)
	assert.Equal(t, "hero", out.Layout[0]["blockType"])
}

func TestServiceGenerateParseFailure(t *testing.T) {
	svc := NewService(&stubChat{reply: "I cannot do that"})

	res := svc.Generate(context.Background(), Request{Prompt: "build", Mode: ModeJSON})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "invalid JSON")
	assert.Equal(t, "I cannot do that", res.Text)
	assert.Error(t, res.Decode(&map[string]any{}))
}

func TestServiceGenerateTransportFailure(t *testing.T) {
	svc := NewService(&stubChat{err: errors.New("connection refused")})

	res := svc.Generate(context.Background(), Request{Prompt: "hi"})
	assert.False(t, res.Success)
	assert.EqualError(t, res.Err(), "connection refused")
}

func TestServiceGenerateTextUsesMessages(t *testing.T) {
	chat := &stubChat{reply: "plain text"}
	svc := NewService(chat)
	temp := 0.2

	res := svc.Generate(context.Background(), Request{
		Prompt:      "ignored",
		Messages:    []Message{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}},
		Temperature: &temp,
	})
	require.True(t, res.Success)
	assert.Equal(t, "plain text", res.Text)
	assert.Len(t, chat.messages, 2)
	assert.False(t, chat.opts.JSONMode)
	assert.InDelta(t, 0.2, chat.opts.Temperature, 1e-9)
}
