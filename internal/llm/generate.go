package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MimeLyc/content-orchestrator/internal/config"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

type Mode string

const (
	ModeText Mode = "text"
	ModeJSON Mode = "json"
)

// Request is one generation call. Messages take precedence over Prompt.
type Request struct {
	Prompt      string
	Messages    []Message
	System      string
	Mode        Mode
	MaxTokens   int
	Temperature *float64
}

// Result is the outcome of a generation. Success is false on transport failure or when a
// JSON response could not be parsed; Error then carries the reason.
type Result struct {
	Success bool            `json:"success"`
	Text    string          `json:"text,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Err returns the failure as an error, or nil on success.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	if r.Error == "" {
		return errors.New("generation failed")
	}
	return errors.New(r.Error)
}

// Decode unmarshals the JSON payload into v.
func (r Result) Decode(v any) error {
	if !r.Success {
		return r.Err()
	}
	if len(r.Data) == 0 {
		return fmt.Errorf("generation returned no JSON data")
	}
	return json.Unmarshal(r.Data, v)
}

// Generator is the prompt-in, structured-data-or-text-out capability used by the pipeline.
type Generator interface {
	Generate(ctx context.Context, req Request) Result
}

// ChatCompleter is implemented by Client and OpenAIClient.
type ChatCompleter interface {
	Complete(ctx context.Context, messages []Message, opts *ChatCompletionOptions) (string, error)
}

// Service adapts a ChatCompleter to the Generator contract.
type Service struct {
	chat ChatCompleter
}

func NewService(chat ChatCompleter) *Service {
	return &Service{chat: chat}
}

// NewGenerator builds the provider selected by LLM_PROVIDER.
func NewGenerator(c config.LLMConfig) (*Service, error) {
	cfg := ConfigFrom(c)
	switch c.Provider {
	case "openai":
		client, err := NewOpenAIClient(cfg)
		if err != nil {
			return nil, err
		}
		return NewService(client), nil
	default:
		client, err := NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return NewService(client), nil
	}
}

func (s *Service) Generate(ctx context.Context, req Request) Result {
	messages := req.Messages
	if len(messages) == 0 {
		messages = []Message{{Role: "user", Content: req.Prompt}}
	}

	opts := NewChatCompletionOptions().
		WithSystemPrompt(req.System).
		WithMaxTokens(req.MaxTokens).
		WithJSONMode(req.Mode == ModeJSON)
	if req.Temperature != nil {
		opts = opts.WithTemperature(*req.Temperature)
	}

	text, err := s.chat.Complete(ctx, messages, opts)
	if err != nil {
		log.Warn("[Generator] completion failed: %v", err)
		return Result{Success: false, Error: err.Error()}
	}

	if req.Mode != ModeJSON {
		return Result{Success: true, Text: text}
	}

	data, err := ExtractJSON(text)
	if err != nil {
		log.Warn("[Generator] could not parse JSON response (%d chars): %v", len(text), err)
		return Result{Success: false, Text: text, Error: fmt.Sprintf("invalid JSON response: %v", err)}
	}
	return Result{Success: true, Text: text, Data: data}
}
