// Package reclassify runs stored analyses through the classifier again, for
// example after a model or prompt change, or to repair rows that scored 0.
package reclassify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"labelscan/models"
	"labelscan/pkg/analyzer"
	"labelscan/pkg/store"
)

// Source is satisfied by *store.Store.
type Source interface {
	ListAnalyses(ctx context.Context, f store.Filter) ([]models.Analysis, error)
	UpdateClassification(ctx context.Context, publicID string, res *analyzer.Result) error
}

// TextAnalyzer is satisfied by *analyzer.Service.
type TextAnalyzer interface {
	AnalyzeText(ctx context.Context, text, productName string) (*analyzer.Result, error)
}

// Change is one analysis whose score moved.
type Change struct {
	ID       string
	Product  string
	OldScore float64
	NewScore float64
}

type Report struct {
	Checked int
	Updated int
	Failed  int
	Changes []Change
}

// Run reclassifies every analysis matched by f. With dry set nothing is
// written; the report still lists the scores that would change.
func Run(ctx context.Context, src Source, an TextAnalyzer, f store.Filter, dry bool, logger zerolog.Logger) (Report, error) {
	rows, err := src.ListAnalyses(ctx, f)
	if err != nil {
		return Report{}, fmt.Errorf("list analyses: %w", err)
	}
	var rep Report
	for _, a := range rows {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Checked++
		log := logger.With().Str("id", a.PublicID).Str("product", a.ProductName).Logger()
		if a.ExtractedText == "" {
			log.Debug().Msg("skip: no text stored")
			continue
		}
		res, err := an.AnalyzeText(ctx, a.ExtractedText, a.ProductName)
		if err != nil {
			rep.Failed++
			log.Warn().Err(err).Str("kind", analyzer.Classify(err).Kind).Msg("reclassify failed")
			continue
		}
		if res.HealthScore != a.HealthScore {
			rep.Changes = append(rep.Changes, Change{ID: a.PublicID, Product: a.ProductName, OldScore: a.HealthScore, NewScore: res.HealthScore})
		}
		if dry {
			continue
		}
		if err := src.UpdateClassification(ctx, a.PublicID, res); err != nil {
			rep.Failed++
			log.Error().Err(err).Msg("update failed")
			continue
		}
		rep.Updated++
		log.Info().Float64("old", a.HealthScore).Float64("new", res.HealthScore).Msg("reclassified")
	}
	return rep, nil
}
