package reclassify

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelscan/models"
	"labelscan/pkg/analyzer"
	"labelscan/pkg/classify"
	"labelscan/pkg/store"
)

type fakeSource struct {
	rows    []models.Analysis
	filter  store.Filter
	updated map[string]float64
}

func (f *fakeSource) ListAnalyses(ctx context.Context, flt store.Filter) ([]models.Analysis, error) {
	f.filter = flt
	return f.rows, nil
}

func (f *fakeSource) UpdateClassification(ctx context.Context, publicID string, res *analyzer.Result) error {
	if f.updated == nil {
		f.updated = map[string]float64{}
	}
	f.updated[publicID] = res.HealthScore
	return nil
}

type scriptedAnalyzer map[string]float64

func (s scriptedAnalyzer) AnalyzeText(ctx context.Context, text, productName string) (*analyzer.Result, error) {
	score, ok := s[text]
	if !ok {
		return nil, &classify.ServiceUnavailableError{Err: errors.New("connection refused")}
	}
	return &analyzer.Result{Record: classify.Record{HealthScore: score}, ProductName: productName}, nil
}

func sampleRows() []models.Analysis {
	return []models.Analysis{
		{PublicID: "a", ProductName: "Oats", ExtractedText: "oats", HealthScore: 0},
		{PublicID: "b", ProductName: "Cola", ExtractedText: "sugar, red 40", HealthScore: 3},
		{PublicID: "c", ProductName: "Mystery", ExtractedText: "unknown", HealthScore: 0},
		{PublicID: "d", ProductName: "Empty"},
	}
}

func TestRunUpdatesAndReportsChanges(t *testing.T) {
	src := &fakeSource{rows: sampleRows()}
	an := scriptedAnalyzer{"oats": 9.2, "sugar, red 40": 3}
	f := store.Filter{UserID: 7, BelowScore: 5}

	rep, err := Run(context.Background(), src, an, f, false, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, f, src.filter)
	assert.Equal(t, 4, rep.Checked)
	assert.Equal(t, 2, rep.Updated)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, []Change{{ID: "a", Product: "Oats", OldScore: 0, NewScore: 9.2}}, rep.Changes)
	assert.Equal(t, map[string]float64{"a": 9.2, "b": 3}, src.updated)
}

func TestRunDryWritesNothing(t *testing.T) {
	src := &fakeSource{rows: sampleRows()}
	rep, err := Run(context.Background(), src, scriptedAnalyzer{"oats": 9.2}, store.Filter{}, true, zerolog.Nop())
	require.NoError(t, err)
	assert.Zero(t, rep.Updated)
	assert.Nil(t, src.updated)
	assert.Len(t, rep.Changes, 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := Run(ctx, &fakeSource{rows: sampleRows()}, scriptedAnalyzer{}, store.Filter{}, false, zerolog.Nop())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, rep.Checked)
}
