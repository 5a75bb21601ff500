// Package category holds the closed set of ingredient categories used by the
// classifier and the health scorer.
package category

import "strings"

type Category string

const (
	Natural          Category = "Natural"
	Additives        Category = "Additives"
	Preservatives    Category = "Preservatives"
	ArtificialColors Category = "Artificial Colors"
	HighlyProcessed  Category = "Highly Processed"
)

// All lists the categories in their canonical order.
var All = []Category{Natural, Additives, Preservatives, ArtificialColors, HighlyProcessed}

var colors = map[Category]string{
	Natural:          "#4CAF50",
	Additives:        "#FFC107",
	Preservatives:    "#FF9800",
	ArtificialColors: "#F44336",
	HighlyProcessed:  "#9C27B0",
}

func (c Category) String() string { return string(c) }

// Valid reports whether c is one of the five known categories.
func (c Category) Valid() bool {
	_, ok := colors[c]
	return ok
}

// Color returns the display color clients use for c, or "" when c is unknown.
func (c Category) Color() string { return colors[c] }

// Colors returns a copy of the category to color table.
func Colors() map[Category]string {
	out := make(map[Category]string, len(colors))
	for k, v := range colors {
		out[k] = v
	}
	return out
}

// Parse maps a model-provided name onto a known category. Matching ignores case
// and surrounding whitespace; "Artificial Color" and "artificial_colors" style
// variants are accepted as well.
func Parse(name string) (Category, bool) {
	key := normalizeKey(name)
	for _, c := range All {
		if normalizeKey(string(c)) == key {
			return c, true
		}
	}
	// singular forms
	if key+"s" == normalizeKey(string(ArtificialColors)) || key+"s" == normalizeKey(string(Additives)) || key+"s" == normalizeKey(string(Preservatives)) {
		return Parse(name + "s")
	}
	return "", false
}

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
