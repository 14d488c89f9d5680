package repository

// Schema definitions for the Foodscan reference database.
// Compatible with both SQLite and PostgreSQL.

const schemaAdditives = `
CREATE TABLE IF NOT EXISTS additives (
    e_number TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    description TEXT,
    functional_class TEXT,
    source_title TEXT,
    source_url TEXT,
    source_date TEXT,
    adi REAL,
    exposure_mean_gt_adi INTEGER,
    exposure_p95_gt_adi INTEGER,
    organs TEXT,
    health_topics TEXT,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_additives_risk ON additives(risk_level);
`

const schemaAuthorisations = `
CREATE TABLE IF NOT EXISTS authorisations (
    e_number TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    grp TEXT,
    basic_risk_level TEXT,
    adi REAL,
    message TEXT,
    source_url TEXT,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaInteractionRules = `
CREATE TABLE IF NOT EXISTS interaction_rules (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    confidence TEXT,
    severity TEXT,
    weight INTEGER NOT NULL DEFAULT 0,
    rationale TEXT,
    guidance TEXT,
    conditions TEXT NOT NULL,
    source_ids TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interaction_rules_enabled ON interaction_rules(enabled);
`

const schemaEvidenceSources = `
CREATE TABLE IF NOT EXISTS evidence_sources (
    id TEXT PRIMARY KEY,
    label TEXT NOT NULL,
    url TEXT NOT NULL,
    publisher TEXT,
    year TEXT,
    notes TEXT,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaProductScores = `
CREATE TABLE IF NOT EXISTS product_scores (
    barcode TEXT PRIMARY KEY,
    health_score INTEGER,
    eco_score INTEGER,
    additive_score INTEGER,
    breakdown TEXT NOT NULL,
    engine_version TEXT NOT NULL,
    computed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_product_scores_computed ON product_scores(computed_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAdditives,
		schemaAuthorisations,
		schemaInteractionRules,
		schemaEvidenceSources,
		schemaProductScores,
	}
}
