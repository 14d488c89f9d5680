// Package scoring converts resolved risk findings into deterministic scores
// and letter grades. All scoring paths route through this package so the
// penalty and grade tables live in exactly one place.
package scoring

import (
	"github.com/foodscan/foodscan/internal/domain"
)

// MethodAdditivePenalty names the additive scoring variant: 100 minus the
// sum of fixed per-bucket penalties.
const MethodAdditivePenalty = "v1_penalty_100_minus_sum"

// MethodInteractionWeight names the interaction scoring variant: 100 minus
// 15 per unit of fired rule weight.
const MethodInteractionWeight = "v1_100_minus_15_sum_weight"

// PenaltyTable is the canonical per-bucket penalty applied to each distinct
// additive finding.
var PenaltyTable = map[domain.RiskLevel]int{
	domain.RiskHigh:    35,
	domain.RiskMedium:  15,
	domain.RiskLow:     0,
	domain.RiskUnknown: 5,
}

// Additive score grade thresholds (A >= 90, B >= 75, C >= 60, D >= 40, else E).
const (
	AdditiveGradeA = 90
	AdditiveGradeB = 75
	AdditiveGradeC = 60
	AdditiveGradeD = 40
)

// Interaction score grade thresholds (A >= 85, B >= 70, C >= 55, D >= 40, else E).
const (
	InteractionGradeA = 85
	InteractionGradeB = 70
	InteractionGradeC = 55
	InteractionGradeD = 40
)

// InteractionWeightPenalty is the score deduction per unit of rule weight.
const InteractionWeightPenalty = 15

// Finding is one resolved additive with its risk classification.
type Finding struct {
	ENumber   string
	RiskLevel domain.RiskLevel
}

// ScoreAdditives scores a set of resolved findings. Findings are
// deduplicated by canonical identifier first: the same additive appearing
// twice in a product is penalized once. An empty set scores 100/A.
func ScoreAdditives(findings []Finding) domain.ScoreBreakdown {
	var counts domain.RiskCounts
	penalty := 0

	seen := make(map[string]struct{}, len(findings))
	for _, f := range findings {
		if f.ENumber != "" {
			if _, dup := seen[f.ENumber]; dup {
				continue
			}
			seen[f.ENumber] = struct{}{}
		}

		level := canonicalLevel(f.RiskLevel)
		switch level {
		case domain.RiskHigh:
			counts.High++
		case domain.RiskMedium:
			counts.Medium++
		case domain.RiskLow:
			counts.Low++
		default:
			counts.Unknown++
		}
		penalty += PenaltyTable[level]
	}

	score := clamp(100 - penalty)

	return domain.ScoreBreakdown{
		Score:     score,
		Grade:     AdditiveGrade(score),
		Counts:    counts,
		Penalties: penaltyTableCopy(),
		Method:    MethodAdditivePenalty,
	}
}

// ScoreInteractions computes the aggregate interaction score from the
// weights of fired rules.
func ScoreInteractions(weights []int) domain.InteractionSummary {
	sum := 0
	for _, w := range weights {
		if w < 0 {
			w = 0
		}
		sum += w
	}

	score := clamp(100 - InteractionWeightPenalty*sum)

	return domain.InteractionSummary{
		Score:   score,
		Grade:   InteractionGrade(score),
		Matches: len(weights),
		Method:  MethodInteractionWeight,
	}
}

// AdditiveGrade maps an additive score to its letter grade.
func AdditiveGrade(score int) string {
	switch {
	case score >= AdditiveGradeA:
		return "A"
	case score >= AdditiveGradeB:
		return "B"
	case score >= AdditiveGradeC:
		return "C"
	case score >= AdditiveGradeD:
		return "D"
	default:
		return "E"
	}
}

// InteractionGrade maps an interaction score to its letter grade.
func InteractionGrade(score int) string {
	switch {
	case score >= InteractionGradeA:
		return "A"
	case score >= InteractionGradeB:
		return "B"
	case score >= InteractionGradeC:
		return "C"
	case score >= InteractionGradeD:
		return "D"
	default:
		return "E"
	}
}

func canonicalLevel(level domain.RiskLevel) domain.RiskLevel {
	switch level {
	case domain.RiskHigh, domain.RiskMedium, domain.RiskLow:
		return level
	default:
		return domain.RiskUnknown
	}
}

func penaltyTableCopy() map[domain.RiskLevel]int {
	out := make(map[domain.RiskLevel]int, len(PenaltyTable))
	for k, v := range PenaltyTable {
		out[k] = v
	}
	return out
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
