// Package importer loads the risk dataset from CSV files into the
// repository: the authorisation list, curated evidence records, the
// evidence sources, and the interaction rule catalog.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/foodscan/foodscan/internal/additive"
	"github.com/foodscan/foodscan/internal/domain"
)

// Dataset file names, fixed by the published CSV bundle.
const (
	AdditivesFile    = "additives_info.csv"
	SourcesFile      = "risk_sources.csv"
	CombinationsFile = "risk_combinations.csv"
)

// RuleValidator rejects rules that would not compile. Implemented by
// rules.Engine.
type RuleValidator interface {
	ValidateRule(rule *domain.InteractionRule) error
}

// Importer writes parsed CSV rows into the repository.
type Importer struct {
	repo      domain.Repository
	validator RuleValidator
	logger    *slog.Logger
}

// New creates an importer. The validator may be nil to skip rule validation.
func New(repo domain.Repository, validator RuleValidator, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{repo: repo, validator: validator, logger: logger}
}

// Summary reports what one import run wrote.
type Summary struct {
	Additives int `json:"additives"`
	Curated   int `json:"curated"`
	Sources   int `json:"sources"`
	Rules     int `json:"rules"`
	Skipped   int `json:"skipped"`
}

// ImportDir imports the whole dataset from a directory. Sources import
// before combinations so rule-to-source references resolve on first load.
func (im *Importer) ImportDir(ctx context.Context, dir string) (*Summary, error) {
	summary := &Summary{}

	steps := []struct {
		file string
		fn   func(context.Context, io.Reader, *Summary) error
	}{
		{AdditivesFile, im.importAdditives},
		{SourcesFile, im.importSources},
		{CombinationsFile, im.importCombinations},
	}

	for _, step := range steps {
		f, err := os.Open(filepath.Join(dir, step.file))
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", step.file, err)
		}
		err = step.fn(ctx, f, summary)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", step.file, err)
		}
	}

	im.logger.Info("dataset imported",
		"dir", dir,
		"additives", summary.Additives,
		"curated", summary.Curated,
		"sources", summary.Sources,
		"rules", summary.Rules,
		"skipped", summary.Skipped)
	return summary, nil
}

// ImportAdditives loads the authorisation list CSV.
func (im *Importer) ImportAdditives(ctx context.Context, r io.Reader) (int, error) {
	s := &Summary{}
	if err := im.importAdditives(ctx, r, s); err != nil {
		return 0, err
	}
	return s.Additives, nil
}

func (im *Importer) importAdditives(ctx context.Context, r io.Reader, summary *Summary) error {
	rows, err := readRows(r)
	if err != nil {
		return err
	}

	for _, row := range rows {
		id, ok := additive.Normalize(row["e_number"])
		if !ok {
			summary.Skipped++
			im.logger.Warn("skipping additive row with bad identifier",
				"e_number", row["e_number"])
			continue
		}

		auth := &domain.Authorisation{
			ENumber:        id,
			Name:           row["name"],
			Group:          row["group"],
			BasicRiskLevel: row["basic_risk_level"],
			ADI:            parseFloat(row["adi_mg_per_kg_bw_day"]),
			Message:        row["simple_user_message"],
			SourceURL:      row["source_url"],
		}
		if err := im.repo.SaveAuthorisation(ctx, auth); err != nil {
			return fmt.Errorf("save authorisation %s: %w", id, err)
		}
		summary.Additives++

		if rec := curatedRecord(id, row); rec != nil {
			if err := im.repo.SaveAdditive(ctx, rec); err != nil {
				return fmt.Errorf("save curated additive %s: %w", id, err)
			}
			summary.Curated++
		}
	}
	return nil
}

// curatedRecord builds a tier-1 evidence record when the row carries
// curated columns alongside the authorisation ones. The dataset has
// published these under a few historical names, so each field falls
// back through its aliases; rows without any curated column stay
// authorisation-only.
func curatedRecord(id string, row map[string]string) *domain.AdditiveRecord {
	risk := firstOf(row, "risk_level", "risk")
	desc := firstOf(row, "description", "explanation", "why")
	if risk == "" && desc == "" {
		return nil
	}

	rec := &domain.AdditiveRecord{
		ENumber:         id,
		Name:            firstOf(row, "name", "additive_name"),
		RiskLevel:       additive.NormalizeRiskLevel(risk),
		Description:     desc,
		FunctionalClass: firstOf(row, "functional_class", "group"),
		SourceTitle:     row["source_title"],
		SourceURL:       row["source_url"],
		SourceDate:      row["source_date"],
		ADI:             parseFloat(row["adi_mg_per_kg_bw_day"]),
	}
	if rec.Name == "" {
		rec.Name = id
	}
	rec.Organs, rec.HealthTopics = additive.ExtractTags([]string{rec.Name, rec.Description})
	return rec
}

func firstOf(row map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := row[k]; v != "" {
			return v
		}
	}
	return ""
}

// ImportSources loads the evidence source CSV.
func (im *Importer) ImportSources(ctx context.Context, r io.Reader) (int, error) {
	s := &Summary{}
	if err := im.importSources(ctx, r, s); err != nil {
		return 0, err
	}
	return s.Sources, nil
}

func (im *Importer) importSources(ctx context.Context, r io.Reader, summary *Summary) error {
	rows, err := readRows(r)
	if err != nil {
		return err
	}

	for _, row := range rows {
		id := row["source_id"]
		if id == "" {
			summary.Skipped++
			continue
		}

		src := &domain.EvidenceSource{
			ID:        id,
			Label:     row["title"],
			URL:       row["url"],
			Publisher: row["organisation_or_journal"],
			Year:      row["year"],
			Notes:     row["notes"],
		}
		if err := im.repo.SaveEvidenceSource(ctx, src); err != nil {
			return fmt.Errorf("save source %s: %w", id, err)
		}
		summary.Sources++
	}
	return nil
}

// ImportCombinations loads the interaction rule CSV. Rows that fail
// validation are skipped, not fatal: one bad row must not block the rest
// of the catalog.
func (im *Importer) ImportCombinations(ctx context.Context, r io.Reader) (int, error) {
	s := &Summary{}
	if err := im.importCombinations(ctx, r, s); err != nil {
		return 0, err
	}
	return s.Rules, nil
}

func (im *Importer) importCombinations(ctx context.Context, r io.Reader, summary *Summary) error {
	rows, err := readRows(r)
	if err != nil {
		return err
	}

	sources, err := im.sourceIndex(ctx)
	if err != nil {
		return err
	}

	for _, row := range rows {
		id := row["combo_id"]
		if id == "" {
			summary.Skipped++
			continue
		}

		rule := &domain.InteractionRule{
			ID:        id,
			Title:     row["health_outcome_short"],
			Rationale: row["context"],
			Weight:    parseInt(row["risk_weight_0to3"]),
			Enabled:   true,
		}
		for _, pattern := range []string{row["ingredient_1_pattern"], row["ingredient_2_pattern"]} {
			if pattern == "" {
				continue
			}
			rule.Conditions = append(rule.Conditions, newCondition(pattern))
		}
		if len(rule.Conditions) == 0 {
			summary.Skipped++
			im.logger.Warn("skipping rule without conditions", "combo_id", id)
			continue
		}

		for _, sid := range sourceIDs(row["primary_source_id"], row["extra_source_ids"]) {
			if src, ok := sources[sid]; ok {
				rule.Sources = append(rule.Sources, *src)
			} else {
				im.logger.Warn("rule references unknown source",
					"combo_id", id,
					"source_id", sid)
			}
		}

		if im.validator != nil {
			if err := im.validator.ValidateRule(rule); err != nil {
				summary.Skipped++
				im.logger.Warn("skipping invalid rule",
					"combo_id", id,
					"error", err)
				continue
			}
		}

		if err := im.repo.SaveInteractionRule(ctx, rule); err != nil {
			return fmt.Errorf("save rule %s: %w", id, err)
		}
		summary.Rules++
	}
	return nil
}

func (im *Importer) sourceIndex(ctx context.Context) (map[string]*domain.EvidenceSource, error) {
	list, err := im.repo.ListEvidenceSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	index := make(map[string]*domain.EvidenceSource, len(list))
	for _, src := range list {
		index[src.ID] = src
	}
	return index, nil
}

// newCondition classifies a CSV pattern: "group:" prefixed patterns are
// aggregate predicates, everything else matches individual items.
func newCondition(pattern string) domain.RuleCondition {
	kind := domain.ConditionPattern
	if strings.HasPrefix(pattern, "group:") {
		kind = domain.ConditionAggregate
	}
	return domain.RuleCondition{Kind: kind, Pattern: pattern}
}

// sourceIDs merges the primary id with the extra list, which the dataset
// separates with semicolons, commas, or pipes.
func sourceIDs(primary, extra string) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	add(primary)
	for _, id := range strings.FieldsFunc(extra, func(r rune) bool {
		return r == ';' || r == ',' || r == '|'
	}) {
		add(id)
	}
	return out
}

// readRows parses a headered CSV into trimmed column maps.
func readRows(r io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	// Excel exports prepend a BOM to the first header cell.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	var rows []map[string]string
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[strings.TrimSpace(col)] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseInt(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(v)
}
