package domain

// RiskCounts tallies findings per risk bucket.
type RiskCounts struct {
	High    int `json:"high"`
	Medium  int `json:"medium"`
	Low     int `json:"low"`
	Unknown int `json:"unknown"`
}

// Total returns the number of counted findings.
func (c RiskCounts) Total() int {
	return c.High + c.Medium + c.Low + c.Unknown
}

// ScoreBreakdown is the auditable result of scoring a set of resolved
// additive findings. Produced fresh per request; a persisted copy is a cache
// only, never the source of truth.
type ScoreBreakdown struct {
	Score  int        `json:"score"`
	Grade  string     `json:"grade"`
	Counts RiskCounts `json:"counts"`

	// Penalties is the literal penalty table applied, keyed by bucket.
	Penalties map[RiskLevel]int `json:"penalties"`

	// Method names the scoring variant for auditability.
	Method string `json:"method"`
}
