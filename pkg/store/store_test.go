package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelscan/models"
	"labelscan/pkg/analyzer"
	"labelscan/pkg/category"
	"labelscan/pkg/classify"
	"labelscan/pkg/ocr"
)

func sampleResult() *analyzer.Result {
	return &analyzer.Result{
		Record: classify.Record{
			Ingredients: []classify.Ingredient{{Name: "oats", Category: category.Natural}},
			ClassificationSummary: map[category.Category][]string{
				category.Natural: {"oats"},
			},
			IngredientPercentages: map[category.Category]float64{
				category.Natural:          80,
				category.Additives:        10,
				category.Preservatives:    5,
				category.ArtificialColors: 3,
				category.HighlyProcessed:  2,
			},
			HealthScore: 8.5,
		},
		ProductName:   "Granola",
		Source:        analyzer.SourceImage,
		ExtractedText: "oats",
		Tokens:        []string{"oats"},
		OCR:           &ocr.Result{Confidence: 87.5},
		WeightedScore: 8.7,
	}
}

func TestNewAnalysis(t *testing.T) {
	a := NewAnalysis(3, "INGREDIENTS: oats", sampleResult())
	_, err := uuid.Parse(a.PublicID)
	require.NoError(t, err)
	assert.Equal(t, uint(3), a.UserID)
	assert.Equal(t, "Granola", a.ProductName)
	assert.Equal(t, "INGREDIENTS: oats", a.InputText)
	assert.Equal(t, 80.0, a.IngredientPercentages[category.Natural])
	require.NotNil(t, a.OCRConfidence)
	assert.Equal(t, 87.5, *a.OCRConfidence)
	assert.Nil(t, a.SourceFile)

	b := NewAnalysis(3, "x", sampleResult())
	assert.NotEqual(t, a.PublicID, b.PublicID)
}

func TestComputeStats(t *testing.T) {
	empty := ComputeStats(nil)
	assert.Equal(t, 0, empty.TotalAnalyses)
	assert.Len(t, empty.CategoryAverages, len(category.All))

	rows := []models.Analysis{
		{HealthScore: 8, IngredientPercentages: map[category.Category]float64{category.Natural: 100}},
		{HealthScore: 5, IngredientPercentages: map[category.Category]float64{category.Natural: 50, category.Additives: 50}},
		{HealthScore: 2, IngredientPercentages: map[category.Category]float64{category.HighlyProcessed: 100}},
	}
	st := ComputeStats(rows)
	assert.Equal(t, 3, st.TotalAnalyses)
	assert.Equal(t, 5.0, st.AverageHealthScore)
	assert.Equal(t, 50.0, st.CategoryAverages[category.Natural])
	assert.Equal(t, 16.7, st.CategoryAverages[category.Additives])
	assert.Equal(t, 33.3, st.CategoryAverages[category.HighlyProcessed])
	assert.Equal(t, 0.0, st.CategoryAverages[category.Preservatives])
}

// DB-backed tests are opt-in: set DB_DSN_TEST=1 and DB_DSN.
func openTestStore(t *testing.T) *Store {
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	gdb, err := Open(os.Getenv("DB_DSN"))
	require.NoError(t, err)
	s := New(gdb, zerolog.Nop())
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	user := models.User{Username: "store-test-" + uuid.NewString()[:8], HashedPassword: []byte("x")}
	require.NoError(t, s.DB().Create(&user).Error)
	t.Cleanup(func() { s.DB().Where("user_id = ?", user.ID).Delete(&models.Analysis{}); s.DB().Delete(&user) })

	id, err := s.SaveAnalysis(ctx, user.ID, "oats", sampleResult())
	require.NoError(t, err)
	fileID, err := s.SaveFileAnalysis(ctx, user.ID, "label_01.jpg", sampleResult())
	require.NoError(t, err)

	got, err := s.GetAnalysis(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Granola", got.ProductName)
	assert.Equal(t, []string{"oats"}, got.ClassificationSummary[category.Natural])

	byFile, err := s.GetAnalysis(ctx, fileID)
	require.NoError(t, err)
	require.NotNil(t, byFile.SourceFile)
	assert.Equal(t, "label_01.jpg", *byFile.SourceFile)

	files, err := s.AnalyzedFiles(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"label_01.jpg"}, files)

	_, err = s.SaveFileAnalysis(ctx, user.ID, "label_01.jpg", sampleResult())
	assert.Error(t, err, "same file twice for one user")

	list, err := s.ListAnalyses(ctx, Filter{UserID: user.ID})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	st, err := s.Stats(ctx, Filter{UserID: user.ID, Since: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalAnalyses)
	assert.Equal(t, 8.5, st.AverageHealthScore)

	low := sampleResult()
	low.HealthScore = 2.5
	low.IngredientPercentages[category.HighlyProcessed] = 60
	require.NoError(t, s.UpdateClassification(ctx, fileID, low))
	updated, err := s.GetAnalysis(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, 2.5, updated.HealthScore)
	assert.Equal(t, 60.0, updated.IngredientPercentages[category.HighlyProcessed])
	assert.Equal(t, "label_01.jpg", *updated.SourceFile)

	below, err := s.ListAnalyses(ctx, Filter{UserID: user.ID, BelowScore: 5})
	require.NoError(t, err)
	require.Len(t, below, 1)
	assert.Equal(t, fileID, below[0].PublicID)
	assert.ErrorIs(t, s.UpdateClassification(ctx, uuid.NewString(), low), ErrNotFound)

	require.NoError(t, s.DeleteAnalysis(ctx, id))
	_, err = s.GetAnalysis(ctx, id)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.ErrorIs(t, s.DeleteAnalysis(ctx, id), ErrNotFound)
}
