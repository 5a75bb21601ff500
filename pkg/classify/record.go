// Package classify turns ingredient text into a validated classification
// record by prompting a generative model and checking its JSON answer.
package classify

import "labelscan/pkg/category"

// Ingredient is one classified ingredient. Scores are on a 1-5 scale and may
// be absent.
type Ingredient struct {
	Name                 string            `json:"name"`
	Category             category.Category `json:"category"`
	ProcessingScore      *float64          `json:"processing_score,omitempty"`
	HealthImpactScore    *float64          `json:"health_impact_score,omitempty"`
	NutrientDensityScore *float64          `json:"nutrient_density_score,omitempty"`
}

// Record is the normalized classification of one ingredient text.
// IngredientPercentages always holds all five categories and sums to 100;
// HealthScore lies in [0,10].
type Record struct {
	Ingredients           []Ingredient                   `json:"ingredients"`
	ClassificationSummary map[category.Category][]string `json:"classification_summary"`
	IngredientPercentages map[category.Category]float64  `json:"ingredient_percentages"`
	HealthScore           float64                        `json:"health_score"`
}

// Clone returns a deep copy so cached records are never shared with callers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{
		Ingredients:           make([]Ingredient, len(r.Ingredients)),
		ClassificationSummary: make(map[category.Category][]string, len(r.ClassificationSummary)),
		IngredientPercentages: make(map[category.Category]float64, len(r.IngredientPercentages)),
		HealthScore:           r.HealthScore,
	}
	for i, ing := range r.Ingredients {
		ing.ProcessingScore = cloneFloat(ing.ProcessingScore)
		ing.HealthImpactScore = cloneFloat(ing.HealthImpactScore)
		ing.NutrientDensityScore = cloneFloat(ing.NutrientDensityScore)
		out.Ingredients[i] = ing
	}
	for k, v := range r.ClassificationSummary {
		out.ClassificationSummary[k] = append([]string(nil), v...)
	}
	for k, v := range r.IngredientPercentages {
		out.IngredientPercentages[k] = v
	}
	return out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
