// Package score turns category percentages into a bounded health score.
package score

import (
	"math"

	"labelscan/pkg/category"
)

// Weights applied to each category percentage.
var Weights = map[category.Category]float64{
	category.Natural:          1.0,
	category.Additives:        -0.3,
	category.Preservatives:    -0.3,
	category.ArtificialColors: -0.2,
	category.HighlyProcessed:  -0.4,
}

const (
	offset  = 5.0
	divisor = 20.0
	Min     = 0.0
	Max     = 10.0
)

// Score computes clamp(5 + Σ p[c]·w[c] / 20, 0, 10) rounded to one decimal.
// Missing categories count as zero.
func Score(percentages map[category.Category]float64) float64 {
	raw := 0.0
	for _, c := range category.All {
		raw += percentages[c] * Weights[c]
	}
	return Round1(Clamp(offset+raw/divisor, Min, Max))
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round1 rounds half away from zero to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
