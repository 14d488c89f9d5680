package scoring

import (
	"testing"

	"github.com/foodscan/foodscan/internal/domain"
)

func TestScoreAdditivesEmpty(t *testing.T) {
	b := ScoreAdditives(nil)

	if b.Score != 100 {
		t.Errorf("empty set score = %d, want 100", b.Score)
	}
	if b.Grade != "A" {
		t.Errorf("empty set grade = %q, want A", b.Grade)
	}
	if b.Counts.Total() != 0 {
		t.Errorf("empty set counts = %+v, want zeros", b.Counts)
	}
	if b.Method != MethodAdditivePenalty {
		t.Errorf("method = %q, want %q", b.Method, MethodAdditivePenalty)
	}
}

func TestScoreAdditivesPenalties(t *testing.T) {
	tests := []struct {
		name      string
		findings  []Finding
		wantScore int
		wantGrade string
	}{
		{
			name:      "single high",
			findings:  []Finding{{"E102", domain.RiskHigh}},
			wantScore: 65,
			wantGrade: "C",
		},
		{
			name: "high plus medium",
			findings: []Finding{
				{"E102", domain.RiskHigh},
				{"E211", domain.RiskMedium},
			},
			wantScore: 50,
			wantGrade: "D",
		},
		{
			name:      "low is free",
			findings:  []Finding{{"E300", domain.RiskLow}},
			wantScore: 100,
			wantGrade: "A",
		},
		{
			name:      "unknown costs a little",
			findings:  []Finding{{"E999", domain.RiskUnknown}},
			wantScore: 95,
			wantGrade: "A",
		},
		{
			name: "floor at zero",
			findings: []Finding{
				{"E102", domain.RiskHigh},
				{"E104", domain.RiskHigh},
				{"E110", domain.RiskHigh},
			},
			wantScore: 0,
			wantGrade: "E",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ScoreAdditives(tt.findings)
			if b.Score != tt.wantScore {
				t.Errorf("score = %d, want %d", b.Score, tt.wantScore)
			}
			if b.Grade != tt.wantGrade {
				t.Errorf("grade = %q, want %q", b.Grade, tt.wantGrade)
			}
		})
	}
}

func TestScoreAdditivesNoDoublePenalty(t *testing.T) {
	once := ScoreAdditives([]Finding{{"E322", domain.RiskMedium}})
	thrice := ScoreAdditives([]Finding{
		{"E322", domain.RiskMedium},
		{"E322", domain.RiskMedium},
		{"E322", domain.RiskMedium},
	})

	if once.Score != thrice.Score {
		t.Errorf("duplicate findings changed score: %d vs %d", once.Score, thrice.Score)
	}
	if thrice.Counts.Medium != 1 {
		t.Errorf("duplicate findings counted %d times, want 1", thrice.Counts.Medium)
	}
}

func TestScoreAdditivesUnrecognizedLevel(t *testing.T) {
	b := ScoreAdditives([]Finding{{"E100", domain.RiskLevel("bogus")}})
	if b.Counts.Unknown != 1 {
		t.Errorf("unrecognized level counted as %+v, want unknown", b.Counts)
	}
}

func TestScoreAdditivesBreakdownIncludesPenaltyTable(t *testing.T) {
	b := ScoreAdditives(nil)
	if b.Penalties[domain.RiskHigh] != 35 || b.Penalties[domain.RiskUnknown] != 5 {
		t.Errorf("penalty table not embedded in breakdown: %v", b.Penalties)
	}
}

func TestAdditiveGradeMonotonic(t *testing.T) {
	prev := "A"
	rank := map[string]int{"A": 5, "B": 4, "C": 3, "D": 2, "E": 1}
	for score := 100; score >= 0; score-- {
		g := AdditiveGrade(score)
		if rank[g] > rank[prev] {
			t.Fatalf("grade not monotonic at score %d: %s after %s", score, g, prev)
		}
		prev = g
	}
}

func TestScoreInteractions(t *testing.T) {
	tests := []struct {
		weights   []int
		wantScore int
		wantGrade string
	}{
		{nil, 100, "A"},
		{[]int{1}, 85, "A"},
		{[]int{2}, 70, "B"},
		{[]int{3}, 55, "C"},
		{[]int{3, 2}, 25, "E"},
		{[]int{3, 3, 3}, 0, "E"},
		{[]int{-1}, 100, "A"}, // corrupt weights clamp, never propagate
	}

	for _, tt := range tests {
		s := ScoreInteractions(tt.weights)
		if s.Score != tt.wantScore {
			t.Errorf("ScoreInteractions(%v).Score = %d, want %d", tt.weights, s.Score, tt.wantScore)
		}
		if s.Grade != tt.wantGrade {
			t.Errorf("ScoreInteractions(%v).Grade = %q, want %q", tt.weights, s.Grade, tt.wantGrade)
		}
	}
}
