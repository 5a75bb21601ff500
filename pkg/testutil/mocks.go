// Package testutil holds test doubles shared by package tests.
package testutil

import (
	"context"
	"sync"
	"time"
)

// FixtureResponse is a well-formed model answer whose health score matches
// score.Score of its percentages (8.7).
const FixtureResponse = `{
  "ingredients": [
    {"name": "whole wheat flour", "category": "Natural", "processing_score": 2, "health_impact_score": 1, "nutrient_density_score": 4},
    {"name": "sugar", "category": "Highly Processed", "processing_score": 4, "health_impact_score": 4, "nutrient_density_score": 1},
    {"name": "soy lecithin", "category": "Additives", "processing_score": 3, "health_impact_score": 2, "nutrient_density_score": 1},
    {"name": "sodium benzoate", "category": "Preservatives", "processing_score": 4, "health_impact_score": 3, "nutrient_density_score": 1},
    {"name": "red 40", "category": "Artificial Colors", "processing_score": 5, "health_impact_score": 4, "nutrient_density_score": 1}
  ],
  "classification_summary": {
    "Natural": ["whole wheat flour"],
    "Additives": ["soy lecithin"],
    "Preservatives": ["sodium benzoate"],
    "Artificial Colors": ["red 40"],
    "Highly Processed": ["sugar"]
  },
  "ingredient_percentages": {
    "Natural": 80,
    "Additives": 10,
    "Preservatives": 5,
    "Artificial Colors": 3,
    "Highly Processed": 2
  },
  "health_score": 8.7
}`

// MockGenerator is a mock implementation of llm.Generator for testing.
type MockGenerator struct {
	GenerateFunc func(ctx context.Context, prompt string) (string, error)
	// Response and Err are returned when GenerateFunc is nil.
	Response string
	Err      error
	// Delay holds each call before it answers, honoring ctx.
	Delay time.Duration

	mu         sync.Mutex
	CallCount  int
	LastPrompt string
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.CallCount++
	m.LastPrompt = prompt
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt)
	}
	if m.Err != nil {
		return "", m.Err
	}
	if m.Response == "" {
		return FixtureResponse, nil
	}
	return m.Response, nil
}

// Calls returns CallCount under the lock.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}
