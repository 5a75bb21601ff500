package classify

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"labelscan/pkg/category"
	"labelscan/pkg/score"
)

// RequiredFields are the top-level keys every model answer must carry.
var RequiredFields = []string{"ingredients", "classification_summary", "ingredient_percentages", "health_score"}

// ParseResponse repairs, parses, validates and normalizes a raw model answer.
// Failures are *MalformedResponseError or *SchemaValidationError and carry
// the raw text.
func ParseResponse(raw string) (*Record, error) {
	clean, err := Sanitize(raw)
	if err != nil {
		return nil, err
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(clean), &top); err != nil {
		return nil, &MalformedResponseError{Raw: raw, Err: err}
	}
	var missing []string
	for _, f := range RequiredFields {
		if _, ok := top[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaValidationError{Missing: missing, Raw: raw}
	}

	rec, invalid := buildRecord(gjson.Parse(clean))
	if len(invalid) > 0 {
		return nil, &SchemaValidationError{Invalid: invalid, Raw: raw}
	}
	rec.IngredientPercentages = NormalizePercentages(rec.IngredientPercentages)
	rec.HealthScore = NormalizeHealthScore(rec.HealthScore)
	return rec, nil
}

// buildRecord reads the document into a Record and lists the fields that have
// the wrong shape. Unknown category keys in the summary and percentage maps
// are ignored; an ingredient with an unknown category is invalid.
func buildRecord(doc gjson.Result) (*Record, []string) {
	var invalid []string
	rec := &Record{
		Ingredients:           []Ingredient{},
		ClassificationSummary: make(map[category.Category][]string, len(category.All)),
		IngredientPercentages: make(map[category.Category]float64, len(category.All)),
	}

	if ings := doc.Get("ingredients"); !ings.IsArray() {
		invalid = append(invalid, "ingredients")
	} else {
		for i, it := range ings.Array() {
			ing, problems := parseIngredient(it, i)
			if len(problems) > 0 {
				invalid = append(invalid, problems...)
				continue
			}
			rec.Ingredients = append(rec.Ingredients, ing)
		}
	}

	if summary := doc.Get("classification_summary"); !summary.IsObject() {
		invalid = append(invalid, "classification_summary")
	} else {
		summary.ForEach(func(k, v gjson.Result) bool {
			c, ok := category.Parse(k.String())
			if !ok {
				return true
			}
			if !v.IsArray() {
				invalid = append(invalid, "classification_summary."+k.String())
				return true
			}
			for _, n := range v.Array() {
				if name := strings.TrimSpace(n.String()); n.Type == gjson.String && name != "" {
					rec.ClassificationSummary[c] = append(rec.ClassificationSummary[c], name)
				}
			}
			return true
		})
	}
	for _, c := range category.All {
		if rec.ClassificationSummary[c] == nil {
			rec.ClassificationSummary[c] = []string{}
		}
	}

	if pct := doc.Get("ingredient_percentages"); !pct.IsObject() {
		invalid = append(invalid, "ingredient_percentages")
	} else {
		pct.ForEach(func(k, v gjson.Result) bool {
			c, ok := category.Parse(k.String())
			if !ok {
				return true
			}
			f, ok := numberOf(v)
			if !ok {
				invalid = append(invalid, "ingredient_percentages."+k.String())
				return true
			}
			rec.IngredientPercentages[c] = f
			return true
		})
	}

	if hs, ok := numberOf(doc.Get("health_score")); ok {
		rec.HealthScore = hs
	} else {
		invalid = append(invalid, "health_score")
	}
	return rec, invalid
}

func parseIngredient(it gjson.Result, i int) (Ingredient, []string) {
	field := func(name string) string { return fmt.Sprintf("ingredients[%d].%s", i, name) }
	if !it.IsObject() {
		return Ingredient{}, []string{fmt.Sprintf("ingredients[%d]", i)}
	}
	var problems []string
	ing := Ingredient{Name: strings.TrimSpace(it.Get("name").String())}
	if it.Get("name").Type != gjson.String || ing.Name == "" {
		problems = append(problems, field("name"))
	}
	c, ok := category.Parse(it.Get("category").String())
	if !ok {
		problems = append(problems, field("category"))
	}
	ing.Category = c

	scores := []struct {
		key string
		dst **float64
	}{
		{"processing_score", &ing.ProcessingScore},
		{"health_impact_score", &ing.HealthImpactScore},
		{"nutrient_density_score", &ing.NutrientDensityScore},
	}
	for _, s := range scores {
		v := it.Get(s.key)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		f, ok := numberOf(v)
		if !ok {
			problems = append(problems, field(s.key))
			continue
		}
		f = score.Clamp(f, 1, 5)
		*s.dst = &f
	}
	return ing, problems
}

// numberOf accepts JSON numbers and numeric strings such as "45" or "45%".
func numberOf(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Float(), true
	case gjson.String:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v.Str), "%"))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// NormalizePercentages returns all five categories summing to 100. All-zero
// input becomes 20 each; otherwise values are rescaled to 100 and rounded to
// one decimal, with the rounding remainder added to the largest category.
// Negative values count as zero.
func NormalizePercentages(in map[category.Category]float64) map[category.Category]float64 {
	out := make(map[category.Category]float64, len(category.All))
	total := 0.0
	for _, c := range category.All {
		v := in[c]
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		out[c] = v
		total += v
	}
	if total == 0 {
		even := 100.0 / float64(len(category.All))
		for _, c := range category.All {
			out[c] = even
		}
		return out
	}

	sum := 0.0
	largest := category.All[0]
	for _, c := range category.All {
		out[c] = score.Round1(out[c] / total * 100)
		sum += out[c]
		if out[c] > out[largest] {
			largest = c
		}
	}
	if diff := score.Round1(100 - sum); diff != 0 {
		out[largest] = score.Round1(out[largest] + diff)
	}
	return out
}

// NormalizeHealthScore maps the model's score into [0,10]. Values above 10 are
// taken to be on a 0-100 scale and divided by 10. A model that correctly
// answers exactly 10 is left alone, but one that answers 10.5 on the 0-10
// scale is read as 1.05; this heuristic is kept as is.
func NormalizeHealthScore(v float64) float64 {
	if v > score.Max {
		v /= 10
	}
	return score.Round1(score.Clamp(v, score.Min, score.Max))
}
