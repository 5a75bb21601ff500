package ocr

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Recognizer runs every candidate through every profile and keeps the best text.
type Recognizer struct {
	engine   Engine
	profiles []Profile
	logger   zerolog.Logger
}

func NewRecognizer(engine Engine, profiles []Profile, logger zerolog.Logger) *Recognizer {
	if len(profiles) == 0 {
		profiles = DefaultProfiles(false)
	}
	return &Recognizer{engine: engine, profiles: profiles, logger: logger}
}

// Text is the cleaned winning text plus the raw results it was chosen from.
type Text struct {
	Text    string   `json:"text"`
	Best    Result   `json:"best"`
	Results []Result `json:"results"`
}

// Recognize returns ErrNoTextExtracted when no pass produced text and
// ErrTimeout when ctx expires. A failing pass is logged and skipped.
func (r *Recognizer) Recognize(ctx context.Context, candidates []Candidate) (*Text, error) {
	results := make([]Result, 0, len(candidates)*len(r.profiles))
	for _, c := range candidates {
		for _, p := range r.profiles {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
			}
			res, err := r.engine.Recognize(ctx, c.Image, p)
			if err != nil {
				if errors.Is(err, ErrTimeout) {
					return nil, err
				}
				r.logger.Warn().Err(err).Str("candidate", c.Method).Str("profile", p.Name).Msg("ocr pass failed")
				continue
			}
			res.Profile = p.Name
			res.Candidate = c.Method
			results = append(results, res)
			r.logger.Debug().
				Str("candidate", c.Method).
				Str("profile", p.Name).
				Float64("confidence", res.Confidence).
				Str("snippet", snippet(normalizeOCRText(res.Text), 120)).
				Msg("ocr pass")
		}
	}

	best, ok := Best(results)
	if !ok {
		return nil, ErrNoTextExtracted
	}
	text := CleanText(best.Text)
	if text == "" {
		return nil, ErrNoTextExtracted
	}
	r.logger.Info().
		Str("candidate", best.Candidate).
		Str("profile", best.Profile).
		Float64("confidence", best.Confidence).
		Int("passes", len(results)).
		Str("snippet", snippet(text, 160)).
		Msg("ocr selected")
	return &Text{Text: text, Best: best, Results: results}, nil
}
