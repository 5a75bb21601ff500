package classify

import (
	"fmt"
	"strings"

	"labelscan/pkg/category"
)

var categoryHints = map[category.Category]string{
	category.Natural:          "whole foods and minimally processed ingredients",
	category.Additives:        "flavor, texture, emulsifiers, thickeners, sweeteners",
	category.Preservatives:    "ingredients added to extend shelf life",
	category.ArtificialColors: "synthetic dyes and color additives",
	category.HighlyProcessed:  "refined or industrially transformed ingredients",
}

// BuildPrompt renders the classification instructions for text.
func BuildPrompt(text string) string {
	names := make([]string, len(category.All))
	hints := make([]string, len(category.All))
	summary := make([]string, len(category.All))
	pct := make([]string, len(category.All))
	for i, c := range category.All {
		names[i] = string(c)
		hints[i] = fmt.Sprintf("- %s: %s", c, categoryHints[c])
		summary[i] = fmt.Sprintf("%q: [string]", c)
		pct[i] = fmt.Sprintf("%q: 0-100", c)
	}

	return fmt.Sprintf(`Return a JSON object analyzing the ingredients. Return ONLY valid JSON. No markdown. No comments.

CRITICAL RULES:
- Every ingredient category MUST be exactly one of: %s. Never invent new categories.
%s
- ingredient_percentages is the share of the ingredient list in each category.
- Scores: processing_score (1 = least processed), health_impact_score (1 = best), nutrient_density_score (1 = least dense), health_score (0-10, higher = better).

OUTPUT JSON SCHEMA:
{
  "ingredients": [{"name": string, "category": string, "processing_score": 1-5, "health_impact_score": 1-5, "nutrient_density_score": 1-5}],
  "classification_summary": {%s},
  "ingredient_percentages": {%s},
  "health_score": 0-10
}

Ingredients to analyze:
%s

Response (JSON only):`,
		strings.Join(names, ", "),
		strings.Join(hints, "\n"),
		strings.Join(summary, ", "),
		strings.Join(pct, ", "),
		text,
	)
}
