package classify

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelscan/pkg/category"
	"labelscan/pkg/score"
	"labelscan/pkg/testutil"
)

func TestParseResponseFixture(t *testing.T) {
	rec, err := ParseResponse(testutil.FixtureResponse)
	require.NoError(t, err)

	require.Len(t, rec.Ingredients, 5)
	assert.Equal(t, "whole wheat flour", rec.Ingredients[0].Name)
	assert.Equal(t, category.Natural, rec.Ingredients[0].Category)
	require.NotNil(t, rec.Ingredients[0].ProcessingScore)
	assert.Equal(t, 2.0, *rec.Ingredients[0].ProcessingScore)

	assert.Equal(t, []string{"red 40"}, rec.ClassificationSummary[category.ArtificialColors])
	assert.Equal(t, 80.0, rec.IngredientPercentages[category.Natural])
	assert.Equal(t, 8.7, rec.HealthScore)
	assert.Equal(t, rec.HealthScore, score.Score(rec.IngredientPercentages))
}

func TestParseResponseFencedWithTrailingComma(t *testing.T) {
	raw := "```json\n" + strings.Replace(testutil.FixtureResponse, `"health_score": 8.7`, `"health_score": 8.7,`, 1) + "\n```"
	rec, err := ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, 8.7, rec.HealthScore)
}

func TestParseResponseMissingFields(t *testing.T) {
	raw := `{"ingredients": [], "health_score": 5}`
	_, err := ParseResponse(raw)
	var sErr *SchemaValidationError
	require.True(t, errors.As(err, &sErr), "got %v", err)
	assert.Equal(t, []string{"classification_summary", "ingredient_percentages"}, sErr.Missing)
	assert.Equal(t, raw, sErr.Raw)
}

func TestParseResponseInvalidCategory(t *testing.T) {
	raw := strings.Replace(testutil.FixtureResponse, `"category": "Additives"`, `"category": "Mystery"`, 1)
	_, err := ParseResponse(raw)
	var sErr *SchemaValidationError
	require.True(t, errors.As(err, &sErr), "got %v", err)
	assert.Contains(t, sErr.Invalid, "ingredients[2].category")
}

func TestParseResponseWrongShapes(t *testing.T) {
	raw := `{"ingredients": {}, "classification_summary": [], "ingredient_percentages": {"Natural": "lots"}, "health_score": null}`
	_, err := ParseResponse(raw)
	var sErr *SchemaValidationError
	require.True(t, errors.As(err, &sErr), "got %v", err)
	assert.ElementsMatch(t, []string{
		"ingredients",
		"classification_summary",
		"ingredient_percentages.Natural",
		"health_score",
	}, sErr.Invalid)
}

func TestParseResponseNotJSON(t *testing.T) {
	raw := `{"ingredients": [oops]}`
	_, err := ParseResponse(raw)
	var mErr *MalformedResponseError
	require.True(t, errors.As(err, &mErr), "got %v", err)
	assert.Equal(t, raw, mErr.Raw)
}

func TestParseResponseLenientValues(t *testing.T) {
	raw := `{
  "ingredients": [{"name": " salt ", "category": "natural", "processing_score": 9}],
  "classification_summary": {"Natural": ["salt"], "Vitamins": ["b12"]},
  "ingredient_percentages": {"Natural": "60%", "Additives": 20, "Other": 20},
  "health_score": 72
}`
	rec, err := ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "salt", rec.Ingredients[0].Name)
	assert.Equal(t, category.Natural, rec.Ingredients[0].Category)
	assert.Equal(t, 5.0, *rec.Ingredients[0].ProcessingScore)
	assert.Nil(t, rec.Ingredients[0].HealthImpactScore)
	assert.Equal(t, []string{}, rec.ClassificationSummary[category.Preservatives])
	assert.Equal(t, 75.0, rec.IngredientPercentages[category.Natural])
	assert.Equal(t, 25.0, rec.IngredientPercentages[category.Additives])
	assert.Equal(t, 7.2, rec.HealthScore)
}

func TestNormalizePercentagesAllZero(t *testing.T) {
	got := NormalizePercentages(map[category.Category]float64{})
	require.Len(t, got, len(category.All))
	for _, c := range category.All {
		assert.Equal(t, 20.0, got[c])
	}
}

func TestNormalizePercentagesSumsTo100(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		in := make(map[category.Category]float64)
		for _, c := range category.All {
			if rng.Intn(4) == 0 {
				continue
			}
			in[c] = rng.Float64()*200 - 20
		}
		got := NormalizePercentages(in)
		sum := 0.0
		for _, c := range category.All {
			assert.GreaterOrEqual(t, got[c], 0.0)
			sum += got[c]
		}
		assert.InDelta(t, 100.0, sum, 0.1, "input %v", in)
	}
}

func TestNormalizePercentagesRemainderGoesToLargest(t *testing.T) {
	got := NormalizePercentages(map[category.Category]float64{
		category.Natural:         1,
		category.Additives:       1,
		category.HighlyProcessed: 1,
	})
	assert.Equal(t, 33.4, got[category.Natural])
	assert.Equal(t, 33.3, got[category.Additives])
	assert.Equal(t, 33.3, got[category.HighlyProcessed])
	assert.Equal(t, 0.0, got[category.Preservatives])
}

func TestNormalizeHealthScore(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{8.8, 8.8},
		{10, 10},
		{88, 8.8},
		{150, 10},
		{-2, 0},
		{6.66, 6.7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeHealthScore(tt.in), "input %v", tt.in)
	}
}
