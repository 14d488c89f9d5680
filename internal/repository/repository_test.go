package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/foodscan/foodscan/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "foodscan-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetAdditives", func(t *testing.T) {
		adi := 40.0
		expMean := false
		rec := &domain.AdditiveRecord{
			ENumber:           "E951",
			Name:              "Aspartame",
			RiskLevel:         domain.RiskMedium,
			Description:       "Intense sweetener with contested long-term evidence.",
			FunctionalClass:   "sweetener",
			SourceTitle:       "EFSA re-evaluation",
			SourceURL:         "https://example.org/efsa/e951",
			SourceDate:        "2013-12-10",
			ADI:               &adi,
			ExposureMeanGtADI: &expMean,
			Organs:            []string{"brain"},
			HealthTopics:      []string{"hyperactivity"},
		}

		if err := repo.SaveAdditive(ctx, rec); err != nil {
			t.Fatalf("SaveAdditive failed: %v", err)
		}
		if err := repo.SaveAdditive(ctx, &domain.AdditiveRecord{
			ENumber: "E322", Name: "Lecithins", RiskLevel: domain.RiskLow,
		}); err != nil {
			t.Fatalf("SaveAdditive failed: %v", err)
		}

		got, err := repo.GetAdditivesByKeys(ctx, []string{"E951", "E322", "E999"})
		if err != nil {
			t.Fatalf("GetAdditivesByKeys failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d records, want 2", len(got))
		}

		e951 := got["E951"]
		if e951 == nil {
			t.Fatal("E951 missing from result")
		}
		if e951.Name != "Aspartame" || e951.RiskLevel != domain.RiskMedium {
			t.Errorf("E951 = %+v", e951)
		}
		if e951.ADI == nil || *e951.ADI != 40.0 {
			t.Errorf("ADI = %v, want 40", e951.ADI)
		}
		if e951.ExposureMeanGtADI == nil || *e951.ExposureMeanGtADI {
			t.Errorf("ExposureMeanGtADI = %v, want false", e951.ExposureMeanGtADI)
		}
		if len(e951.Organs) != 1 || e951.Organs[0] != "brain" {
			t.Errorf("organs = %v", e951.Organs)
		}
		if _, present := got["E999"]; present {
			t.Error("unknown key present in result map")
		}
	})

	t.Run("SaveAdditiveUpsert", func(t *testing.T) {
		if err := repo.SaveAdditive(ctx, &domain.AdditiveRecord{
			ENumber: "E951", Name: "Aspartame", RiskLevel: domain.RiskHigh,
		}); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		got, err := repo.GetAdditivesByKeys(ctx, []string{"E951"})
		if err != nil {
			t.Fatalf("GetAdditivesByKeys failed: %v", err)
		}
		if got["E951"].RiskLevel != domain.RiskHigh {
			t.Errorf("risk after upsert = %q, want high", got["E951"].RiskLevel)
		}
	})

	t.Run("SaveAndGetAuthorisations", func(t *testing.T) {
		auth := &domain.Authorisation{
			ENumber:        "E460",
			Name:           "Cellulose",
			Group:          "thickener",
			BasicRiskLevel: "low",
			Message:        "Generally considered safe.",
		}
		if err := repo.SaveAuthorisation(ctx, auth); err != nil {
			t.Fatalf("SaveAuthorisation failed: %v", err)
		}

		got, err := repo.GetAuthorisationsByKeys(ctx, []string{"E460"})
		if err != nil {
			t.Fatalf("GetAuthorisationsByKeys failed: %v", err)
		}
		if got["E460"] == nil || got["E460"].Group != "thickener" {
			t.Errorf("got %+v", got["E460"])
		}
	})

	t.Run("SaveAndListInteractionRules", func(t *testing.T) {
		src := &domain.EvidenceSource{
			ID:        "SRC_NITRO",
			Label:     "IARC monograph on processed meat",
			URL:       "https://example.org/iarc/processed-meat",
			Publisher: "IARC",
			Year:      "2015",
		}
		if err := repo.SaveEvidenceSource(ctx, src); err != nil {
			t.Fatalf("SaveEvidenceSource failed: %v", err)
		}

		rule := &domain.InteractionRule{
			ID:       "nitrite-cured-meat",
			Title:    "Nitrites with cured meat",
			Severity: "high",
			Weight:   3,
			Conditions: []domain.RuleCondition{
				{Kind: domain.ConditionPattern, Pattern: "E249|E250"},
				{Kind: domain.ConditionPattern, Pattern: "bacon|ham|salami"},
			},
			Sources: []domain.EvidenceSource{{ID: "SRC_NITRO"}},
			Enabled: true,
		}
		if err := repo.SaveInteractionRule(ctx, rule); err != nil {
			t.Fatalf("SaveInteractionRule failed: %v", err)
		}

		disabled := &domain.InteractionRule{
			ID:    "disabled-rule",
			Title: "Disabled",
			Conditions: []domain.RuleCondition{
				{Kind: domain.ConditionPattern, Pattern: "x"},
			},
			Enabled: false,
		}
		if err := repo.SaveInteractionRule(ctx, disabled); err != nil {
			t.Fatalf("SaveInteractionRule failed: %v", err)
		}

		rules, err := repo.ListInteractionRules(ctx)
		if err != nil {
			t.Fatalf("ListInteractionRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Fatalf("got %d rules, want 1 (disabled excluded)", len(rules))
		}

		got := rules[0]
		if got.ID != "nitrite-cured-meat" || got.Weight != 3 {
			t.Errorf("rule = %+v", got)
		}
		if len(got.Conditions) != 2 || got.Conditions[0].Pattern != "E249|E250" {
			t.Errorf("conditions = %+v", got.Conditions)
		}
		if len(got.Sources) != 1 || got.Sources[0].Publisher != "IARC" {
			t.Errorf("sources not hydrated: %+v", got.Sources)
		}
	})

	t.Run("ListEvidenceSources", func(t *testing.T) {
		sources, err := repo.ListEvidenceSources(ctx)
		if err != nil {
			t.Fatalf("ListEvidenceSources failed: %v", err)
		}
		if len(sources) != 1 || sources[0].ID != "SRC_NITRO" {
			t.Errorf("sources = %+v", sources)
		}
	})

	t.Run("ProductScores", func(t *testing.T) {
		health := 72
		score := &domain.ProductScore{
			Barcode:     "3017620422003",
			HealthScore: &health,
			Breakdown: domain.ScoreBreakdown{
				Score: 65,
				Grade: "C",
			},
			EngineVersion: "foodscan-1.0",
			ComputedAt:    time.Now().UTC(),
		}
		if err := repo.SaveProductScore(ctx, score); err != nil {
			t.Fatalf("SaveProductScore failed: %v", err)
		}

		got, err := repo.GetProductScore(ctx, "3017620422003")
		if err != nil {
			t.Fatalf("GetProductScore failed: %v", err)
		}
		if got.HealthScore == nil || *got.HealthScore != 72 {
			t.Errorf("health score = %v, want 72", got.HealthScore)
		}
		if got.EcoScore != nil {
			t.Errorf("eco score = %v, want nil", got.EcoScore)
		}
		if got.Breakdown.Grade != "C" {
			t.Errorf("breakdown grade = %q", got.Breakdown.Grade)
		}

		if _, err := repo.GetProductScore(ctx, "0000000000000"); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing barcode err = %v, want ErrNotFound", err)
		}

		if err := repo.DeleteProductScores(ctx); err != nil {
			t.Fatalf("DeleteProductScores failed: %v", err)
		}
		if _, err := repo.GetProductScore(ctx, "3017620422003"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err after delete = %v, want ErrNotFound", err)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		if err := repo.SaveAdditive(ctx, &domain.AdditiveRecord{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("empty additive err = %v, want ErrInvalidInput", err)
		}
		if err := repo.SaveInteractionRule(ctx, &domain.InteractionRule{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("empty rule err = %v, want ErrInvalidInput", err)
		}
		if _, err := repo.GetProductScore(ctx, ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("empty barcode err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("EmptyKeyLists", func(t *testing.T) {
		got, err := repo.GetAdditivesByKeys(ctx, nil)
		if err != nil {
			t.Fatalf("GetAdditivesByKeys(nil) failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("got %d records for empty keys", len(got))
		}
	})
}

func TestNewUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
