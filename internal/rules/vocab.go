package rules

import "strings"

// Ingredient vocabularies backing the aggregate predicates. Matching is
// case-insensitive substring containment, so "acesulfame potassium" and
// "E950" both count as intense sweeteners.
var (
	intenseSweetenerTerms = []string{
		"aspartame",
		"sucralose",
		"saccharin",
		"acesulfame",
		"cyclamate",
		"neotame",
		"advantame",
		"steviol",
		"stevia",
		"e950",
		"e951",
		"e952",
		"e954",
		"e955",
		"e960",
		"e961",
		"e962",
		"e969",
	}

	sugarTerms = []string{
		"sugar",
		"sucrose",
		"glucose",
		"fructose",
		"dextrose",
		"maltose",
		"syrup",
		"honey",
		"molasses",
	}

	fatTerms = []string{
		"fat",
		"butter",
		"oil",
		"cream",
		"lard",
		"margarine",
		"shortening",
		"ghee",
		"tallow",
	}
)

// aggregateExpressions maps the named aggregate tokens stored on rule
// conditions to their predicate expressions over the item-derived counts.
var aggregateExpressions = map[string]string{
	// Two or more distinct intense sweeteners in one product.
	"group:intense_sweeteners": "sweetener_count >= 2",

	// At least one sugar-like and one fat-like ingredient together.
	"group:sugar_fat": "sugar_count >= 1 && fat_count >= 1",
}

// itemCounts holds the per-request aggregate inputs, computed once from the
// deduplicated item list.
type itemCounts struct {
	Sweeteners int
	Sugars     int
	Fats       int
	Items      int
}

func countItems(items []string) itemCounts {
	c := itemCounts{Items: len(items)}
	for _, item := range items {
		lower := strings.ToLower(item)
		if containsAny(lower, intenseSweetenerTerms) {
			c.Sweeteners++
		}
		if containsAny(lower, sugarTerms) {
			c.Sugars++
		}
		if containsAny(lower, fatTerms) {
			c.Fats++
		}
	}
	return c
}

func (c itemCounts) activation() map[string]any {
	return map[string]any{
		"sweetener_count": int64(c.Sweeteners),
		"sugar_count":     int64(c.Sugars),
		"fat_count":       int64(c.Fats),
		"item_count":      int64(c.Items),
	}
}

func containsAny(lower string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
