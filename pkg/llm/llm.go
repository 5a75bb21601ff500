// Package llm holds the text generation backends used for classification.
package llm

import (
	"context"
	"fmt"
)

// Generator sends a prompt to a generative model and returns its raw text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// APIError is returned when the backend answers with a non-200 status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm API error: %d - %s", e.StatusCode, e.Body)
}

// Options shared by the backends.
type Options struct {
	Model       string
	Temperature float64
	// JSONFormat asks the backend to constrain output to JSON when it can.
	JSONFormat bool
	MaxTokens  int
}
