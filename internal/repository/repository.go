// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foodscan/foodscan/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveAdditive upserts one curated evidence record keyed by e_number.
func (r *SQLRepository) SaveAdditive(ctx context.Context, rec *domain.AdditiveRecord) error {
	if rec == nil || rec.ENumber == "" {
		return fmt.Errorf("%w: e_number is required", ErrInvalidInput)
	}

	organs, _ := json.Marshal(rec.Organs)
	topics, _ := json.Marshal(rec.HealthTopics)

	query := `
		INSERT INTO additives (
			e_number, name, risk_level, description, functional_class,
			source_title, source_url, source_date,
			adi, exposure_mean_gt_adi, exposure_p95_gt_adi,
			organs, health_topics, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(e_number) DO UPDATE SET
			name = excluded.name,
			risk_level = excluded.risk_level,
			description = excluded.description,
			functional_class = excluded.functional_class,
			source_title = excluded.source_title,
			source_url = excluded.source_url,
			source_date = excluded.source_date,
			adi = excluded.adi,
			exposure_mean_gt_adi = excluded.exposure_mean_gt_adi,
			exposure_p95_gt_adi = excluded.exposure_p95_gt_adi,
			organs = excluded.organs,
			health_topics = excluded.health_topics,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ENumber, rec.Name, string(rec.RiskLevel), rec.Description, rec.FunctionalClass,
		rec.SourceTitle, rec.SourceURL, rec.SourceDate,
		rec.ADI, boolPtrToInt(rec.ExposureMeanGtADI), boolPtrToInt(rec.ExposureP95GtADI),
		string(organs), string(topics), time.Now().UTC(),
	)
	return err
}

// GetAdditivesByKeys fetches curated records for all keys in one query.
// The returned map is keyed by the stored e_number; absent keys are simply
// missing from the map.
func (r *SQLRepository) GetAdditivesByKeys(ctx context.Context, keys []string) (map[string]*domain.AdditiveRecord, error) {
	out := make(map[string]*domain.AdditiveRecord, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	query := fmt.Sprintf(`
		SELECT e_number, name, risk_level, description, functional_class,
			   source_title, source_url, source_date,
			   adi, exposure_mean_gt_adi, exposure_p95_gt_adi,
			   organs, health_topics
		FROM additives
		WHERE e_number IN (%s)
	`, placeholders(len(keys)))

	rows, err := r.db.QueryContext(ctx, r.rebind(query), asAnySlice(keys)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rec domain.AdditiveRecord
		var riskLevel string
		var adi sql.NullFloat64
		var expMean, expP95 sql.NullInt64
		var description, functionalClass, sourceTitle, sourceURL, sourceDate sql.NullString
		var organs, topics sql.NullString

		if err := rows.Scan(
			&rec.ENumber, &rec.Name, &riskLevel, &description, &functionalClass,
			&sourceTitle, &sourceURL, &sourceDate,
			&adi, &expMean, &expP95,
			&organs, &topics,
		); err != nil {
			return nil, err
		}

		rec.RiskLevel = domain.RiskLevel(riskLevel)
		rec.Description = description.String
		rec.FunctionalClass = functionalClass.String
		rec.SourceTitle = sourceTitle.String
		rec.SourceURL = sourceURL.String
		rec.SourceDate = sourceDate.String
		if adi.Valid {
			v := adi.Float64
			rec.ADI = &v
		}
		rec.ExposureMeanGtADI = intToBoolPtr(expMean)
		rec.ExposureP95GtADI = intToBoolPtr(expP95)
		if organs.Valid && organs.String != "" {
			json.Unmarshal([]byte(organs.String), &rec.Organs)
		}
		if topics.Valid && topics.String != "" {
			json.Unmarshal([]byte(topics.String), &rec.HealthTopics)
		}

		out[rec.ENumber] = &rec
	}

	return out, rows.Err()
}

// SaveAuthorisation upserts one authorisation-list row.
func (r *SQLRepository) SaveAuthorisation(ctx context.Context, auth *domain.Authorisation) error {
	if auth == nil || auth.ENumber == "" {
		return fmt.Errorf("%w: e_number is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO authorisations (
			e_number, name, grp, basic_risk_level, adi, message, source_url, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(e_number) DO UPDATE SET
			name = excluded.name,
			grp = excluded.grp,
			basic_risk_level = excluded.basic_risk_level,
			adi = excluded.adi,
			message = excluded.message,
			source_url = excluded.source_url,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		auth.ENumber, auth.Name, auth.Group, auth.BasicRiskLevel,
		auth.ADI, auth.Message, auth.SourceURL, time.Now().UTC(),
	)
	return err
}

// GetAuthorisationsByKeys fetches authorisation rows for all keys in one query.
func (r *SQLRepository) GetAuthorisationsByKeys(ctx context.Context, keys []string) (map[string]*domain.Authorisation, error) {
	out := make(map[string]*domain.Authorisation, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	query := fmt.Sprintf(`
		SELECT e_number, name, grp, basic_risk_level, adi, message, source_url
		FROM authorisations
		WHERE e_number IN (%s)
	`, placeholders(len(keys)))

	rows, err := r.db.QueryContext(ctx, r.rebind(query), asAnySlice(keys)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var auth domain.Authorisation
		var group, basicRisk, message, sourceURL sql.NullString
		var adi sql.NullFloat64

		if err := rows.Scan(
			&auth.ENumber, &auth.Name, &group, &basicRisk,
			&adi, &message, &sourceURL,
		); err != nil {
			return nil, err
		}

		auth.Group = group.String
		auth.BasicRiskLevel = basicRisk.String
		auth.Message = message.String
		auth.SourceURL = sourceURL.String
		if adi.Valid {
			v := adi.Float64
			auth.ADI = &v
		}

		out[auth.ENumber] = &auth
	}

	return out, rows.Err()
}

// SaveInteractionRule upserts one rule. Sources are stored by id only; the
// rows themselves live in evidence_sources and are rejoined on list.
func (r *SQLRepository) SaveInteractionRule(ctx context.Context, rule *domain.InteractionRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	conditions, _ := json.Marshal(rule.Conditions)

	sourceIDs := make([]string, 0, len(rule.Sources))
	for _, src := range rule.Sources {
		if src.ID != "" {
			sourceIDs = append(sourceIDs, src.ID)
		}
	}
	sources, _ := json.Marshal(sourceIDs)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO interaction_rules (
			id, title, confidence, severity, weight, rationale, guidance,
			conditions, source_ids, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			confidence = excluded.confidence,
			severity = excluded.severity,
			weight = excluded.weight,
			rationale = excluded.rationale,
			guidance = excluded.guidance,
			conditions = excluded.conditions,
			source_ids = excluded.source_ids,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Title, rule.Confidence, rule.Severity, rule.Weight,
		rule.Rationale, rule.Guidance, string(conditions), string(sources),
		enabled, now, now,
	)
	return err
}

// ListInteractionRules returns every enabled rule in stable catalog order
// with its evidence sources hydrated.
func (r *SQLRepository) ListInteractionRules(ctx context.Context) ([]*domain.InteractionRule, error) {
	sources, err := r.ListEvidenceSources(ctx)
	if err != nil {
		return nil, err
	}
	srcByID := make(map[string]domain.EvidenceSource, len(sources))
	for _, src := range sources {
		srcByID[src.ID] = *src
	}

	query := `
		SELECT id, title, confidence, severity, weight, rationale, guidance,
			   conditions, source_ids, enabled
		FROM interaction_rules
		WHERE enabled = 1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.InteractionRule
	for rows.Next() {
		var rule domain.InteractionRule
		var confidence, severity, rationale, guidance sql.NullString
		var conditions string
		var sourceIDs sql.NullString
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Title, &confidence, &severity, &rule.Weight,
			&rationale, &guidance, &conditions, &sourceIDs, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Confidence = confidence.String
		rule.Severity = severity.String
		rule.Rationale = rationale.String
		rule.Guidance = guidance.String
		rule.Enabled = enabled == 1

		if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
			return nil, fmt.Errorf("failed to parse conditions for rule %s: %w", rule.ID, err)
		}

		if sourceIDs.Valid && sourceIDs.String != "" {
			var ids []string
			if err := json.Unmarshal([]byte(sourceIDs.String), &ids); err == nil {
				for _, id := range ids {
					if src, ok := srcByID[id]; ok {
						rule.Sources = append(rule.Sources, src)
					}
				}
			}
		}

		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// SaveEvidenceSource upserts one evidence source.
func (r *SQLRepository) SaveEvidenceSource(ctx context.Context, src *domain.EvidenceSource) error {
	if src == nil || src.ID == "" {
		return fmt.Errorf("%w: source id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO evidence_sources (id, label, url, publisher, year, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			url = excluded.url,
			publisher = excluded.publisher,
			year = excluded.year,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		src.ID, src.Label, src.URL, src.Publisher, src.Year, src.Notes, time.Now().UTC(),
	)
	return err
}

// ListEvidenceSources returns all evidence sources ordered by id.
func (r *SQLRepository) ListEvidenceSources(ctx context.Context) ([]*domain.EvidenceSource, error) {
	query := `
		SELECT id, label, url, publisher, year, notes
		FROM evidence_sources
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*domain.EvidenceSource
	for rows.Next() {
		var src domain.EvidenceSource
		var publisher, year, notes sql.NullString

		if err := rows.Scan(&src.ID, &src.Label, &src.URL, &publisher, &year, &notes); err != nil {
			return nil, err
		}

		src.Publisher = publisher.String
		src.Year = year.String
		src.Notes = notes.String
		sources = append(sources, &src)
	}

	return sources, rows.Err()
}

// SaveProductScore upserts one computed score row.
func (r *SQLRepository) SaveProductScore(ctx context.Context, score *domain.ProductScore) error {
	if score == nil || score.Barcode == "" {
		return fmt.Errorf("%w: barcode is required", ErrInvalidInput)
	}

	breakdown, _ := json.Marshal(score.Breakdown)

	query := `
		INSERT INTO product_scores (
			barcode, health_score, eco_score, additive_score,
			breakdown, engine_version, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(barcode) DO UPDATE SET
			health_score = excluded.health_score,
			eco_score = excluded.eco_score,
			additive_score = excluded.additive_score,
			breakdown = excluded.breakdown,
			engine_version = excluded.engine_version,
			computed_at = excluded.computed_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		score.Barcode, score.HealthScore, score.EcoScore, score.AdditiveScore,
		string(breakdown), score.EngineVersion, score.ComputedAt,
	)
	return err
}

// GetProductScore retrieves one computed score row.
func (r *SQLRepository) GetProductScore(ctx context.Context, barcode string) (*domain.ProductScore, error) {
	if barcode == "" {
		return nil, fmt.Errorf("%w: barcode is required", ErrInvalidInput)
	}

	query := `
		SELECT barcode, health_score, eco_score, additive_score,
			   breakdown, engine_version, computed_at
		FROM product_scores
		WHERE barcode = ?
	`

	var score domain.ProductScore
	var health, eco, add sql.NullInt64
	var breakdown string

	err := r.db.QueryRowContext(ctx, r.rebind(query), barcode).Scan(
		&score.Barcode, &health, &eco, &add,
		&breakdown, &score.EngineVersion, &score.ComputedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	score.HealthScore = nullToIntPtr(health)
	score.EcoScore = nullToIntPtr(eco)
	score.AdditiveScore = nullToIntPtr(add)
	if breakdown != "" {
		json.Unmarshal([]byte(breakdown), &score.Breakdown)
	}

	return &score, nil
}

// DeleteProductScores drops every persisted score. Called when reference
// data changes, since any cached score may now be stale.
func (r *SQLRepository) DeleteProductScores(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM product_scores`)
	return err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func asAnySlice(keys []string) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}

func boolPtrToInt(b *bool) any {
	if b == nil {
		return nil
	}
	if *b {
		return 1
	}
	return 0
}

func intToBoolPtr(n sql.NullInt64) *bool {
	if !n.Valid {
		return nil
	}
	v := n.Int64 != 0
	return &v
}

func nullToIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
