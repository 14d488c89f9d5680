package rules

import "github.com/foodscan/foodscan/internal/domain"

// DefaultRules returns the built-in starter catalog, used when the
// database holds no imported rule set. Imported catalogs replace these
// entirely; they are never merged.
func DefaultRules() []*domain.InteractionRule {
	return []*domain.InteractionRule{
		{
			ID:       "builtin-sweetener-stacking",
			Title:    "Multiple intense sweeteners",
			Severity: domain.SeverityMedium,
			Weight:   2,
			Rationale: "Products combining several intense sweeteners make cumulative " +
				"intake hard to track against per-sweetener acceptable daily intakes.",
			Guidance: "Prefer products with a single sweetener, or unsweetened alternatives.",
			Conditions: []domain.RuleCondition{
				{Kind: domain.ConditionAggregate, Pattern: "group:intense_sweeteners"},
			},
			Enabled: true,
		},
		{
			ID:       "builtin-sugar-fat",
			Title:    "Sugar and fat combination",
			Severity: domain.SeverityLow,
			Weight:   1,
			Rationale: "Combined sugar and fat content is associated with overconsumption " +
				"beyond what either nutrient drives alone.",
			Guidance: "Treat as an occasional food rather than a staple.",
			Conditions: []domain.RuleCondition{
				{Kind: domain.ConditionAggregate, Pattern: "group:sugar_fat"},
			},
			Enabled: true,
		},
		{
			ID:       "builtin-nitrite-cured-meat",
			Title:    "Nitrites with cured or processed meat",
			Severity: domain.SeverityHigh,
			Weight:   3,
			Rationale: "Nitrite curing agents can form nitrosamines in protein-rich " +
				"foods, a pathway classified as carcinogenic to humans.",
			Guidance: "Limit cured meat intake; look for nitrite-free alternatives.",
			Conditions: []domain.RuleCondition{
				{Kind: domain.ConditionPattern, Pattern: "E249|E250|nitrite"},
				{Kind: domain.ConditionPattern, Pattern: "bacon|ham|salami|sausage|cured"},
			},
			Enabled: true,
		},
	}
}
