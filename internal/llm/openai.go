package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	openAIMaxRetries  = 3
	openAIBaseBackoff = 2 * time.Second
	openAIMaxBackoff  = 32 * time.Second
)

// OpenAIClient completes chats through the official OpenAI SDK. Rate-limited calls are retried
// with exponential backoff.
type OpenAIClient struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	backoff     func(attempt int) time.Duration
}

func NewOpenAIClient(config *Config) (*OpenAIClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client := openai.NewClient(
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(config.APIURL),
		option.WithMaxRetries(0),
	)

	return &OpenAIClient{
		client:      client,
		model:       config.Model,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		timeout:     time.Duration(config.Timeout) * time.Second,
		backoff: func(attempt int) time.Duration {
			d := openAIBaseBackoff << (attempt - 1)
			if d > openAIMaxBackoff {
				return openAIMaxBackoff
			}
			return d
		},
	}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, opts *ChatCompletionOptions) (string, error) {
	if opts == nil {
		opts = NewChatCompletionOptions()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    toOpenAIMessages(opts.SystemPrompt, messages),
		Temperature: openai.Float(c.temperatureFor(opts)),
	}
	if maxTokens := c.maxTokensFor(opts); maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	if opts.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		}
	}

	var lastErr error
	for attempt := 0; attempt <= openAIMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.backoff(attempt)):
			}
		}

		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return "", fmt.Errorf("OpenAI API call failed: %w", err)
		}
		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("no completion choices returned")
		}
		return completion.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("OpenAI API rate limited after %d retries: %w", openAIMaxRetries, lastErr)
}

func (c *OpenAIClient) maxTokensFor(opts *ChatCompletionOptions) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return c.maxTokens
}

func (c *OpenAIClient) temperatureFor(opts *ChatCompletionOptions) float64 {
	if opts.Temperature >= 0 && opts.Temperature <= 2 {
		return opts.Temperature
	}
	return c.temperature
}

func toOpenAIMessages(systemPrompt string, messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openai.SystemMessage(systemPrompt))
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
