package importer

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/foodscan/foodscan/internal/additive"
	"github.com/foodscan/foodscan/internal/domain"
	"github.com/foodscan/foodscan/internal/evidence"
	"github.com/foodscan/foodscan/internal/repository"
	"github.com/foodscan/foodscan/internal/rules"
)

const additivesCSV = `e_number,name,group,basic_risk_level,adi_mg_per_kg_bw_day,simple_user_message,source_url
E250,Sodium nitrite,Preservative,high,0.07,Common in cured meat.,https://example.org/e250
e951,Aspartame,Sweetener,medium,40,Intense sweetener.,https://example.org/e951
150d,Caramel colour,Colour,low,,,
,Missing id row,,,,,
`

const sourcesCSV = "\uFEFF" + `source_id,title,year,organisation_or_journal,reference_type,url,notes
SRC_NITRO,Nitrites and processed meat,2015,IARC,monograph,https://example.org/iarc,Group 1 classification
SRC_SWEET,Sweetener blends,2021,Food Chem,journal,https://example.org/sweet,
`

const curatedCSV = `e_number,name,group,basic_risk_level,adi_mg_per_kg_bw_day,simple_user_message,source_url,risk_level,description
E250,Sodium nitrite,Preservative,high,0.07,Common in cured meat.,https://example.org/e250,High,Forms nitrosamines; linked to cancer risk and effects on the blood.
E322,Lecithins,Emulsifier,low,,,,,
e951,Aspartame,Sweetener,medium,40,,https://example.org/e951,medium,Reports of hyperactivity in children.
`

const combosCSV = `combo_id,ingredient_1_pattern,ingredient_2_pattern,context,health_outcome_short,risk_weight_0to3,primary_source_id,extra_source_ids
CMB_NITRITE_MEAT,E249|E250|nitrite,bacon|ham|salami,processed meat,Nitrosamine formation,3,SRC_NITRO,SRC_SWEET;SRC_MISSING
CMB_SWEETENERS,group:intense_sweeteners,,beverages,Sweetener stacking,2,SRC_SWEET,
CMB_NO_CONDITIONS,,,broken row,No patterns,1,SRC_NITRO,
,E100,E200,orphan row,Missing id,1,,
`

func newTestImporter(t *testing.T) (*Importer, domain.Repository) {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "importer_test.db"),
	})
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	engine, err := rules.NewEngine(slog.Default())
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	return New(repo, engine, slog.Default()), repo
}

func TestImportAdditives(t *testing.T) {
	im, repo := newTestImporter(t)
	ctx := context.Background()

	count, err := im.ImportAdditives(ctx, strings.NewReader(additivesCSV))
	if err != nil {
		t.Fatalf("ImportAdditives: %v", err)
	}
	if count != 3 {
		t.Errorf("imported = %d, want 3", count)
	}

	auths, err := repo.GetAuthorisationsByKeys(ctx, []string{"E250", "E951", "E150D"})
	if err != nil {
		t.Fatalf("GetAuthorisationsByKeys: %v", err)
	}
	if len(auths) != 3 {
		t.Fatalf("stored = %d, want 3", len(auths))
	}

	e250 := auths["E250"]
	if e250.Name != "Sodium nitrite" || e250.BasicRiskLevel != "high" {
		t.Errorf("E250 = %+v", e250)
	}
	if e250.ADI == nil || *e250.ADI != 0.07 {
		t.Errorf("E250 ADI = %v", e250.ADI)
	}

	// Bare "150d" gets the E prefix and uppercase during normalization.
	if auths["E150D"].Name != "Caramel colour" {
		t.Errorf("E150D = %+v", auths["E150D"])
	}
	if auths["E150D"].ADI != nil {
		t.Errorf("E150D ADI = %v, want nil", auths["E150D"].ADI)
	}
}

func TestImportAdditivesSeedsCuratedRecords(t *testing.T) {
	im, repo := newTestImporter(t)
	ctx := context.Background()

	if _, err := im.ImportAdditives(ctx, strings.NewReader(curatedCSV)); err != nil {
		t.Fatalf("ImportAdditives: %v", err)
	}

	recs, err := repo.GetAdditivesByKeys(ctx, []string{"E250", "E322", "E951"})
	if err != nil {
		t.Fatalf("GetAdditivesByKeys: %v", err)
	}

	// Rows without curated columns stay authorisation-only.
	if _, present := recs["E322"]; present {
		t.Error("E322 row without curated columns produced a curated record")
	}

	e250 := recs["E250"]
	if e250 == nil {
		t.Fatal("E250 curated record missing")
	}
	if e250.RiskLevel != domain.RiskHigh {
		t.Errorf("E250 risk = %q, want high", e250.RiskLevel)
	}
	if e250.FunctionalClass != "Preservative" {
		t.Errorf("E250 functional class = %q", e250.FunctionalClass)
	}
	if len(e250.Organs) != 1 || e250.Organs[0] != "blood" {
		t.Errorf("E250 organs = %v, want [blood]", e250.Organs)
	}
	if len(e250.HealthTopics) != 1 || e250.HealthTopics[0] != "cancer" {
		t.Errorf("E250 topics = %v, want [cancer]", e250.HealthTopics)
	}

	e951 := recs["E951"]
	if e951 == nil {
		t.Fatal("E951 curated record missing")
	}
	if len(e951.HealthTopics) != 1 || e951.HealthTopics[0] != "hyperactivity" {
		t.Errorf("E951 topics = %v, want [hyperactivity]", e951.HealthTopics)
	}

	// The curated rows are what the tier-1 resolver lookup serves.
	r := evidence.NewResolver(repo, nil, additive.DefaultCollapseSet(), slog.Default())
	rec, err := r.Resolve(ctx, "e250")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rec.Description == "" || rec.RiskLevel != domain.RiskHigh {
		t.Errorf("resolved record = %+v, want curated E250 row", rec)
	}
}

func TestImportSourcesStripsBOM(t *testing.T) {
	im, repo := newTestImporter(t)
	ctx := context.Background()

	count, err := im.ImportSources(ctx, strings.NewReader(sourcesCSV))
	if err != nil {
		t.Fatalf("ImportSources: %v", err)
	}
	if count != 2 {
		t.Errorf("imported = %d, want 2", count)
	}

	list, err := repo.ListEvidenceSources(ctx)
	if err != nil {
		t.Fatalf("ListEvidenceSources: %v", err)
	}
	byID := make(map[string]*domain.EvidenceSource)
	for _, src := range list {
		byID[src.ID] = src
	}
	nitro := byID["SRC_NITRO"]
	if nitro == nil {
		t.Fatalf("SRC_NITRO missing, got %v", list)
	}
	if nitro.Publisher != "IARC" || nitro.Year != "2015" {
		t.Errorf("SRC_NITRO = %+v", nitro)
	}
}

func TestImportCombinations(t *testing.T) {
	im, repo := newTestImporter(t)
	ctx := context.Background()

	if _, err := im.ImportSources(ctx, strings.NewReader(sourcesCSV)); err != nil {
		t.Fatalf("ImportSources: %v", err)
	}

	count, err := im.ImportCombinations(ctx, strings.NewReader(combosCSV))
	if err != nil {
		t.Fatalf("ImportCombinations: %v", err)
	}
	// The condition-less row and the id-less row are skipped.
	if count != 2 {
		t.Errorf("imported = %d, want 2", count)
	}

	list, err := repo.ListInteractionRules(ctx)
	if err != nil {
		t.Fatalf("ListInteractionRules: %v", err)
	}
	byID := make(map[string]*domain.InteractionRule)
	for _, rule := range list {
		byID[rule.ID] = rule
	}

	meat := byID["CMB_NITRITE_MEAT"]
	if meat == nil {
		t.Fatal("CMB_NITRITE_MEAT missing")
	}
	if meat.Title != "Nitrosamine formation" || meat.Weight != 3 {
		t.Errorf("rule = %+v", meat)
	}
	if len(meat.Conditions) != 2 || meat.Conditions[0].Kind != domain.ConditionPattern {
		t.Errorf("conditions = %+v", meat.Conditions)
	}
	// Unknown extra source is dropped, known ones are attached.
	if len(meat.Sources) != 2 {
		t.Errorf("sources = %+v", meat.Sources)
	}

	sweet := byID["CMB_SWEETENERS"]
	if sweet == nil {
		t.Fatal("CMB_SWEETENERS missing")
	}
	if len(sweet.Conditions) != 1 || sweet.Conditions[0].Kind != domain.ConditionAggregate {
		t.Errorf("conditions = %+v", sweet.Conditions)
	}
}

func TestImportedRulesFireInEngine(t *testing.T) {
	im, repo := newTestImporter(t)
	ctx := context.Background()

	if _, err := im.ImportSources(ctx, strings.NewReader(sourcesCSV)); err != nil {
		t.Fatalf("ImportSources: %v", err)
	}
	if _, err := im.ImportCombinations(ctx, strings.NewReader(combosCSV)); err != nil {
		t.Fatalf("ImportCombinations: %v", err)
	}

	stored, err := repo.ListInteractionRules(ctx)
	if err != nil {
		t.Fatalf("ListInteractionRules: %v", err)
	}

	engine, err := rules.NewEngine(slog.Default())
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	if err := engine.LoadRules(stored); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	matches := engine.Evaluate(ctx, []string{"E250", "bacon"})
	if len(matches) != 1 || matches[0].RuleID != "CMB_NITRITE_MEAT" {
		t.Errorf("matches = %+v", matches)
	}
	if len(matches) == 1 && len(matches[0].Sources) != 2 {
		t.Errorf("match sources = %+v", matches[0].Sources)
	}
}

func TestImportDirMissingFile(t *testing.T) {
	im, _ := newTestImporter(t)

	if _, err := im.ImportDir(context.Background(), t.TempDir()); err == nil {
		t.Error("expected error for empty dataset directory")
	}
}
