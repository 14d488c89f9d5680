package assess

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/foodscan/foodscan/internal/domain"
	"github.com/foodscan/foodscan/internal/scoring"
)

type stubResolver struct {
	records map[string]*domain.AdditiveRecord
	calls   [][]string
}

func (s *stubResolver) ResolveAll(_ context.Context, ids []string) (map[string]*domain.AdditiveRecord, error) {
	s.calls = append(s.calls, ids)
	out := make(map[string]*domain.AdditiveRecord)
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

type stubEngine struct {
	matches []domain.Match
	items   []string
	rules   int
}

func (s *stubEngine) Evaluate(_ context.Context, items []string) []domain.Match {
	s.items = items
	return s.matches
}

func (s *stubEngine) RulesCount() int { return s.rules }

func newTestProcessor(resolver *stubResolver, engine *stubEngine) *Processor {
	return NewProcessor(resolver, engine, nil, slog.Default())
}

func TestProcessFullPipeline(t *testing.T) {
	resolver := &stubResolver{records: map[string]*domain.AdditiveRecord{
		"E250": {ENumber: "E250", Name: "Sodium nitrite", RiskLevel: domain.RiskHigh},
		"E330": {ENumber: "E330", Name: "Citric acid", RiskLevel: domain.RiskLow},
	}}
	engine := &stubEngine{
		matches: []domain.Match{
			{RuleID: "nitrite-cured", Severity: "high", Weight: 3, MatchedItems: []string{"E250", "bacon"}},
		},
		rules: 5,
	}
	p := newTestProcessor(resolver, engine)

	ecoScore := 60.0
	got, err := p.Process(context.Background(), &Input{
		Barcode:   "4001234567890",
		TraceID:   "trace-1",
		Additives: []string{"en:e250", "E330", "e999"},
		Items:     []string{"E250", "E330", "bacon"},
		Product: &domain.Product{
			Barcode:         "4001234567890",
			NutriScoreGrade: "c",
			EcoScoreScore:   &ecoScore,
		},
		FetchMs:   12,
		StartTime: time.Now(),
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if got.ID == "" {
		t.Error("expected non-empty assessment ID")
	}
	if got.Barcode != "4001234567890" {
		t.Errorf("barcode = %q", got.Barcode)
	}

	wantInputs := []string{"E250", "E330", "E999"}
	if len(got.Inputs) != len(wantInputs) {
		t.Fatalf("inputs = %v, want %v", got.Inputs, wantInputs)
	}
	for i, id := range wantInputs {
		if got.Inputs[i] != id {
			t.Errorf("inputs[%d] = %q, want %q", i, got.Inputs[i], id)
		}
	}

	if len(got.Additives) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got.Additives))
	}
	if got.Additives[0].Name != "Sodium nitrite" {
		t.Errorf("records[0].Name = %q", got.Additives[0].Name)
	}
	if got.Additives[2].ENumber != "E999" || got.Additives[2].RiskLevel != domain.RiskUnknown {
		t.Errorf("unresolved record = %+v, want unknown E999", got.Additives[2])
	}

	// One high (35), one low (0), one unknown (5): 100-40 = 60.
	if got.AdditiveScore.Score != 60 {
		t.Errorf("additive score = %d, want 60", got.AdditiveScore.Score)
	}
	if got.AdditiveScore.Grade != "C" {
		t.Errorf("additive grade = %q, want C", got.AdditiveScore.Grade)
	}

	// Weight 3 match: 100 - 45 = 55.
	if got.InteractionSummary.Score != 55 || got.InteractionSummary.Matches != 1 {
		t.Errorf("interaction summary = %+v", got.InteractionSummary)
	}
	if len(got.Interactions) != 1 || got.Interactions[0].RuleID != "nitrite-cured" {
		t.Errorf("interactions = %+v", got.Interactions)
	}

	if got.NutritionScore == nil || *got.NutritionScore != 70 {
		t.Errorf("nutrition score = %v, want 70", got.NutritionScore)
	}
	if got.EcoScore == nil || *got.EcoScore != 60 {
		t.Errorf("eco score = %v, want 60", got.EcoScore)
	}
	// 0.6*70 + 0.3*60 + 0.1*60 = 66.
	if got.HealthScore == nil || *got.HealthScore != 66 {
		t.Errorf("health score = %v, want 66", got.HealthScore)
	}

	md := got.Metadata
	if md.TraceID != "trace-1" {
		t.Errorf("trace id = %q", md.TraceID)
	}
	if md.FetchMs != 12 {
		t.Errorf("fetch ms = %d, want 12", md.FetchMs)
	}
	if md.AdditivesResolved != 2 {
		t.Errorf("additives resolved = %d, want 2", md.AdditivesResolved)
	}
	if md.RulesEvaluated != 5 {
		t.Errorf("rules evaluated = %d, want 5", md.RulesEvaluated)
	}
	if md.EngineVersion != EngineVersion {
		t.Errorf("engine version = %q", md.EngineVersion)
	}

	if len(engine.items) != 3 || engine.items[2] != "bacon" {
		t.Errorf("engine saw items %v", engine.items)
	}
}

func TestProcessDuplicateSpellingsPenalizedOnce(t *testing.T) {
	resolver := &stubResolver{records: map[string]*domain.AdditiveRecord{
		"E250": {ENumber: "E250", Name: "Sodium nitrite", RiskLevel: domain.RiskHigh},
	}}
	p := newTestProcessor(resolver, &stubEngine{})

	got, err := p.Process(context.Background(), &Input{
		Additives: []string{"e250", "en:e250", "E 250"},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Normalization dedupes the spellings before resolution.
	if len(got.Inputs) != 1 {
		t.Fatalf("inputs = %v, want single E250", got.Inputs)
	}
	if got.AdditiveScore.Score != 65 {
		t.Errorf("score = %d, want 65 (one high penalty)", got.AdditiveScore.Score)
	}
	if got.AdditiveScore.Counts.High != 1 {
		t.Errorf("high count = %d, want 1", got.AdditiveScore.Counts.High)
	}
}

func TestProcessUnresolvedSuffixCollapsesToBase(t *testing.T) {
	p := newTestProcessor(&stubResolver{}, &stubEngine{})

	got, err := p.Process(context.Background(), &Input{
		Additives: []string{"e322i"},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(got.Additives) != 1 {
		t.Fatalf("records = %+v", got.Additives)
	}
	rec := got.Additives[0]
	if rec.ENumber != "E322" || rec.MatchedFrom != "E322I" {
		t.Errorf("record = %+v, want E322 matched from E322I", rec)
	}
	if rec.RiskLevel != domain.RiskUnknown {
		t.Errorf("risk = %q, want unknown", rec.RiskLevel)
	}
}

func TestProcessEmptyInput(t *testing.T) {
	p := newTestProcessor(&stubResolver{}, &stubEngine{})

	got, err := p.Process(context.Background(), &Input{Barcode: "123"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got.AdditiveScore.Score != 100 || got.AdditiveScore.Grade != "A" {
		t.Errorf("empty product score = %d/%s, want 100/A", got.AdditiveScore.Score, got.AdditiveScore.Grade)
	}
	if got.InteractionSummary.Score != 100 {
		t.Errorf("interaction score = %d, want 100", got.InteractionSummary.Score)
	}
	if got.NutritionScore != nil || got.EcoScore != nil {
		t.Error("expected nil nutrition and eco scores without a product")
	}
	// Additive component alone carries the composite.
	if got.HealthScore == nil || *got.HealthScore != 100 {
		t.Errorf("health score = %v, want 100", got.HealthScore)
	}
}

func TestProcessItemsDefaultToInputs(t *testing.T) {
	engine := &stubEngine{}
	p := newTestProcessor(&stubResolver{}, engine)

	_, err := p.Process(context.Background(), &Input{
		Additives: []string{"e950", "e951"},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(engine.items) != 2 || engine.items[0] != "E950" || engine.items[1] != "E951" {
		t.Errorf("engine saw items %v, want normalized additives", engine.items)
	}
}

func TestScoreRow(t *testing.T) {
	health := 72
	eco := 45
	a := &domain.Assessment{
		Barcode:     "123",
		HealthScore: &health,
		EcoScore:    &eco,
		AdditiveScore: domain.ScoreBreakdown{
			Score:  80,
			Grade:  "B",
			Method: scoring.MethodAdditivePenalty,
		},
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Metadata:  domain.AssessmentMetadata{EngineVersion: EngineVersion},
	}

	row := Score(a)
	if row.Barcode != "123" {
		t.Errorf("barcode = %q", row.Barcode)
	}
	if row.HealthScore == nil || *row.HealthScore != 72 {
		t.Errorf("health = %v", row.HealthScore)
	}
	if row.AdditiveScore == nil || *row.AdditiveScore != 80 {
		t.Errorf("additive = %v", row.AdditiveScore)
	}
	if row.EngineVersion != EngineVersion {
		t.Errorf("engine version = %q", row.EngineVersion)
	}
	if !row.ComputedAt.Equal(a.Timestamp) {
		t.Errorf("computed at = %v", row.ComputedAt)
	}
}
