package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const DefaultOllamaURL = "http://localhost:11434"

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

type ollamaResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Ollama calls POST {baseURL}/api/generate with streaming disabled.
type Ollama struct {
	baseURL    string
	opts       Options
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewOllama(baseURL string, opts Options, timeout time.Duration, logger zerolog.Logger) *Ollama {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/api/generate")
	return &Ollama{
		baseURL:    baseURL,
		opts:       opts,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	payload := ollamaRequest{
		Model:  o.opts.Model,
		Prompt: prompt,
		Stream: false,
		Options: &ollamaOptions{
			NumPredict:  o.opts.MaxTokens,
			Temperature: o.opts.Temperature,
		},
	}
	if o.opts.JSONFormat {
		payload.Format = "json"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.httpClient.Do(req)
	if err != nil {
		o.logger.Error().Err(err).Str("model", o.opts.Model).Msg("ollama connection error")
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	o.logger.Debug().
		Str("model", out.Model).
		Dur("took", time.Since(start)).
		Int("response_len", len(out.Response)).
		Msg("ollama response")
	// An empty answer is still an answer; the caller's parser rejects it as
	// malformed rather than treating the backend as unavailable.
	if out.Response == "" {
		o.logger.Warn().Str("model", out.Model).Bool("done", out.Done).Msg("ollama returned empty response")
	}
	return out.Response, nil
}
