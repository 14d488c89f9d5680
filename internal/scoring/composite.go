package scoring

import (
	"math"
	"strings"
)

// Composite weights: 60% nutrition, 30% additives, 10% eco.
const (
	WeightNutrition = 0.6
	WeightAdditive  = 0.3
	WeightEco       = 0.1
)

// nutriScoreToScore maps a Nutri-Score grade to a 0-100 nutrition proxy.
var nutriScoreToScore = map[string]int{
	"a": 100,
	"b": 85,
	"c": 70,
	"d": 50,
	"e": 25,
}

// ecoGradeToScore approximates a 0-100 eco proxy from an Eco-Score grade
// when the numeric score is absent.
var ecoGradeToScore = map[string]int{
	"a": 90,
	"b": 75,
	"c": 60,
	"d": 45,
	"e": 30,
}

// CombineScores computes the weighted composite of the available component
// scores. Missing components are excluded and the remaining weights
// renormalized; when every component is missing the result is nil
// (unavailable), not zero.
func CombineScores(nutrition, additive, eco *int) *int {
	type part struct {
		weight float64
		score  *int
	}

	parts := []part{
		{WeightNutrition, nutrition},
		{WeightAdditive, additive},
		{WeightEco, eco},
	}

	totalWeight := 0.0
	weighted := 0.0
	for _, p := range parts {
		if p.score == nil {
			continue
		}
		totalWeight += p.weight
		weighted += p.weight * float64(clamp(*p.score))
	}

	if totalWeight <= 0 {
		return nil
	}

	v := clamp(int(math.Round(weighted / totalWeight)))
	return &v
}

// NutritionScore derives the nutrition component from a Nutri-Score grade.
// Returns nil when the grade is absent or unrecognized.
func NutritionScore(nutriScoreGrade string) *int {
	g := strings.ToLower(strings.TrimSpace(nutriScoreGrade))
	if g == "" {
		return nil
	}
	s, ok := nutriScoreToScore[g]
	if !ok {
		return nil
	}
	return &s
}

// EcoScore derives the eco component, preferring the numeric score over the
// grade approximation. Returns nil when neither is usable.
func EcoScore(ecoScoreScore *float64, ecoScoreGrade string) *int {
	if ecoScoreScore != nil && !math.IsNaN(*ecoScoreScore) {
		v := clamp(int(math.Round(*ecoScoreScore)))
		return &v
	}

	g := strings.ToLower(strings.TrimSpace(ecoScoreGrade))
	if g == "" || g == "not-applicable" || g == "unknown" {
		return nil
	}
	s, ok := ecoGradeToScore[g]
	if !ok {
		return nil
	}
	return &s
}
