// Package assess builds complete risk assessments in a single
// response-construction path: normalize, resolve, score, evaluate
// interactions, combine. Every response field is set exactly once.
package assess

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/foodscan/foodscan/internal/additive"
	"github.com/foodscan/foodscan/internal/domain"
	"github.com/foodscan/foodscan/internal/scoring"
)

// EngineVersion identifies the assessment pipeline in response metadata
// and persisted score rows.
const EngineVersion = "foodscan-1.0"

// EvidenceResolver resolves canonical additive identifiers to evidence
// records. Missing identifiers are absent from the result map.
type EvidenceResolver interface {
	ResolveAll(ctx context.Context, ids []string) (map[string]*domain.AdditiveRecord, error)
}

// RuleEvaluator evaluates the loaded interaction rule catalog against a
// list of product items.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, items []string) []domain.Match
	RulesCount() int
}

// Processor assembles assessments from resolved evidence and rule results.
type Processor struct {
	resolver EvidenceResolver
	engine   RuleEvaluator
	collapse additive.CollapseSet
	logger   *slog.Logger
}

// NewProcessor creates an assessment processor.
func NewProcessor(resolver EvidenceResolver, engine RuleEvaluator, collapse additive.CollapseSet, logger *slog.Logger) *Processor {
	if collapse == nil {
		collapse = additive.DefaultCollapseSet()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		resolver: resolver,
		engine:   engine,
		collapse: collapse,
		logger:   logger,
	}
}

// Input contains everything needed for one assessment.
type Input struct {
	Barcode string
	TraceID string

	// Additives are raw additive tokens in source form, e.g. "en:e150d".
	Additives []string

	// Items are the ingredient and additive tokens the interaction rules
	// run against. When empty, the normalized additives are used.
	Items []string

	// Product is the optional product payload, used for the nutrition and
	// environmental components of the composite score.
	Product *domain.Product

	// FetchMs is time spent fetching the product from the external source,
	// reported in metadata as-is.
	FetchMs int64

	StartTime time.Time
}

// Process runs the full assessment pipeline. It never fails on unresolved
// additives: identifiers without evidence appear as unknown-risk records.
func (p *Processor) Process(ctx context.Context, input *Input) (*domain.Assessment, error) {
	if input.StartTime.IsZero() {
		input.StartTime = time.Now()
	}

	inputs := additive.NormalizeAll(input.Additives)

	resolveStart := time.Now()
	resolved, err := p.resolver.ResolveAll(ctx, inputs)
	if err != nil {
		return nil, err
	}
	resolveMs := time.Since(resolveStart).Milliseconds()

	records := make([]domain.AdditiveRecord, 0, len(inputs))
	resolvedCount := 0
	for _, id := range inputs {
		rec, ok := resolved[id]
		if !ok {
			records = append(records, unknownRecord(id, p.collapse))
			continue
		}
		resolvedCount++
		records = append(records, *rec)
	}

	// The same underlying additive can enter under several spellings; a
	// record is penalized once per canonical identifier.
	findings := make([]scoring.Finding, 0, len(records))
	for _, rec := range records {
		findings = append(findings, scoring.Finding{
			ENumber:   rec.ENumber,
			RiskLevel: rec.RiskLevel,
		})
	}
	additiveScore := scoring.ScoreAdditives(findings)

	items := input.Items
	if len(items) == 0 {
		items = inputs
	}

	rulesStart := time.Now()
	matches := p.engine.Evaluate(ctx, items)
	rulesMs := time.Since(rulesStart).Milliseconds()

	weights := make([]int, 0, len(matches))
	for _, m := range matches {
		weights = append(weights, m.Weight)
	}
	interactionSummary := scoring.ScoreInteractions(weights)

	var nutrition, eco *int
	if input.Product != nil {
		nutrition = scoring.NutritionScore(input.Product.NutriScoreGrade)
		eco = scoring.EcoScore(input.Product.EcoScoreScore, input.Product.EcoScoreGrade)
	}
	addScore := additiveScore.Score
	health := scoring.CombineScores(nutrition, &addScore, eco)

	assessment := &domain.Assessment{
		ID:                 uuid.New().String(),
		Barcode:            input.Barcode,
		Inputs:             inputs,
		Additives:          records,
		AdditiveScore:      additiveScore,
		Interactions:       matches,
		InteractionSummary: interactionSummary,
		NutritionScore:     nutrition,
		EcoScore:           eco,
		HealthScore:        health,
		Timestamp:          time.Now().UTC(),
		Metadata: domain.AssessmentMetadata{
			TraceID:           input.TraceID,
			FetchMs:           input.FetchMs,
			ResolveMs:         resolveMs,
			RulesMs:           rulesMs,
			TotalMs:           time.Since(input.StartTime).Milliseconds(),
			AdditivesResolved: resolvedCount,
			RulesEvaluated:    p.engine.RulesCount(),
			EngineVersion:     EngineVersion,
		},
	}

	p.logger.Debug("assessment built",
		"barcode", input.Barcode,
		"inputs", len(inputs),
		"resolved", resolvedCount,
		"interactions", len(matches),
		"resolve_ms", resolveMs,
		"rules_ms", rulesMs)

	return assessment, nil
}

// Score converts an assessment into its persistable score row.
func Score(a *domain.Assessment) *domain.ProductScore {
	addScore := a.AdditiveScore.Score
	return &domain.ProductScore{
		Barcode:       a.Barcode,
		HealthScore:   a.HealthScore,
		EcoScore:      a.EcoScore,
		AdditiveScore: &addScore,
		Breakdown:     a.AdditiveScore,
		EngineVersion: a.Metadata.EngineVersion,
		ComputedAt:    a.Timestamp,
	}
}

// unknownRecord renders an identifier without evidence. The base form is
// reported as the identifier so suffixed variants of a collapsed lecithin
// code roll up the way resolved records do.
func unknownRecord(id string, collapse additive.CollapseSet) domain.AdditiveRecord {
	base := additive.BaseOf(id, collapse)
	rec := domain.AdditiveRecord{
		ENumber:   base,
		Name:      base,
		RiskLevel: domain.RiskUnknown,
	}
	if base != id {
		rec.MatchedFrom = id
	}
	return rec
}
