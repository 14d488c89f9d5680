package domain

import "time"

// Product is the normalized product payload fetched from the external
// nutrition database. The core treats it as caller-supplied input.
type Product struct {
	Barcode         string `json:"barcode"`
	Name            string `json:"name,omitempty"`
	Brand           string `json:"brand,omitempty"`
	ImageURL        string `json:"imageUrl,omitempty"`
	IngredientsText string `json:"ingredientsText,omitempty"`

	Allergens []string `json:"allergens,omitempty"`
	Traces    []string `json:"traces,omitempty"`

	// Additives holds canonical E-numbers parsed from the source tags.
	Additives []string `json:"additives,omitempty"`

	// Analysis holds ingredient analysis tags, e.g. "palm oil free".
	Analysis []string `json:"analysis,omitempty"`

	// DietFlags: nil = unknown, true/false = determined from analysis tags.
	DietFlags map[string]*bool `json:"dietFlags,omitempty"`

	NutriScoreGrade string   `json:"nutriscoreGrade,omitempty"`
	EcoScoreGrade   string   `json:"ecoscoreGrade,omitempty"`
	EcoScoreScore   *float64 `json:"ecoscoreScore,omitempty"`
}

// Assessment is the complete risk assessment for one product or one
// additive list, assembled in a single response-construction path.
type Assessment struct {
	ID      string `json:"id"`
	Barcode string `json:"barcode,omitempty"`

	// Inputs are the normalized, deduplicated identifiers that were
	// assessed, in input order.
	Inputs []string `json:"inputs"`

	// Additives holds one resolved record per input, input order preserved.
	Additives []AdditiveRecord `json:"additives"`

	AdditiveScore ScoreBreakdown `json:"additiveScore"`

	Interactions       []Match            `json:"interactions,omitempty"`
	InteractionSummary InteractionSummary `json:"interactionSummary"`

	// Component and composite scores; nil = unavailable.
	NutritionScore *int `json:"nutritionScore,omitempty"`
	EcoScore       *int `json:"ecoScore,omitempty"`
	HealthScore    *int `json:"healthScore,omitempty"`

	Timestamp time.Time          `json:"timestamp"`
	Metadata  AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata contains processing information.
type AssessmentMetadata struct {
	TraceID           string `json:"traceId,omitempty"`
	FetchMs           int64  `json:"fetchMs,omitempty"`
	ResolveMs         int64  `json:"resolveMs"`
	RulesMs           int64  `json:"rulesMs"`
	TotalMs           int64  `json:"totalMs"`
	AdditivesResolved int    `json:"additivesResolved"`
	RulesEvaluated    int    `json:"rulesEvaluated"`
	EngineVersion     string `json:"engineVersion"`
}

// ProductScore is the persisted cache of a computed assessment. It is an
// optimization only and must be invalidated when reference data changes.
type ProductScore struct {
	Barcode       string         `json:"barcode"`
	HealthScore   *int           `json:"healthScore,omitempty"`
	EcoScore      *int           `json:"ecoScore,omitempty"`
	AdditiveScore *int           `json:"additiveScore,omitempty"`
	Breakdown     ScoreBreakdown `json:"breakdown"`
	EngineVersion string         `json:"engineVersion"`
	ComputedAt    time.Time      `json:"computedAt"`
}
