package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAI talks to any OpenAI compatible chat completions endpoint.
type OpenAI struct {
	client *openai.Client
	opts   Options
	logger zerolog.Logger
}

func NewOpenAI(baseURL, apiKey string, opts Options, timeout time.Duration, logger zerolog.Logger) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), opts: opts, logger: logger}
}

func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(o.opts.Temperature),
		MaxTokens:   o.opts.MaxTokens,
	}
	if o.opts.JSONFormat {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", &APIError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", &APIError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		o.logger.Warn().Str("model", resp.Model).Msg("chat completion returned no choices")
		return "", nil
	}
	o.logger.Debug().
		Str("model", resp.Model).
		Dur("took", time.Since(start)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("chat completion")
	return resp.Choices[0].Message.Content, nil
}
