package store

import (
	"labelscan/models"
	"labelscan/pkg/category"
	"labelscan/pkg/score"
)

// Comparison contrasts two analyses. Differences are second minus first.
type Comparison struct {
	HealthScoreDiff float64                       `json:"health_score_difference"`
	CategoryDiff    map[category.Category]float64 `json:"category_difference"`
	// Healthier is the public id of the higher health score, empty on a tie.
	Healthier string `json:"healthier,omitempty"`
}

func Compare(a, b models.Analysis) Comparison {
	cmp := Comparison{
		HealthScoreDiff: score.Round1(b.HealthScore - a.HealthScore),
		CategoryDiff:    make(map[category.Category]float64, len(category.All)),
	}
	for _, c := range category.All {
		cmp.CategoryDiff[c] = score.Round1(b.IngredientPercentages[c] - a.IngredientPercentages[c])
	}
	switch {
	case a.HealthScore > b.HealthScore:
		cmp.Healthier = a.PublicID
	case b.HealthScore > a.HealthScore:
		cmp.Healthier = b.PublicID
	}
	return cmp
}
