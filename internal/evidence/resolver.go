// Package evidence resolves canonical additive identifiers to risk evidence
// records through tiered lookups: curated evidence first, the regulatory
// authorisation list as fallback.
package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/foodscan/foodscan/internal/additive"
	"github.com/foodscan/foodscan/internal/domain"
	"github.com/foodscan/foodscan/internal/repository"
)

// Fixed citation attached to tier-2 fallback records. The authorisation
// list carries no per-additive evidence write-up, so the register itself
// is the source.
const (
	fsaRegisterTitle = "UK Food Standards Agency approved additives register"
	fsaRegisterURL   = "https://data.food.gov.uk/regulated-products/id/food-additives/authorisation.csv"
)

// DefaultCacheTTL bounds how long a resolved record may be served without
// consulting the repository. Reference data changes on import, not per
// request, so a long TTL is safe; reloads invalidate explicitly.
const DefaultCacheTTL = 6 * time.Hour

// Resolver performs tiered evidence lookups with batched repository access.
type Resolver struct {
	repo     domain.Repository
	cache    domain.Cache
	collapse additive.CollapseSet
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewResolver creates a resolver. cache may be nil, in which case every
// lookup goes to the repository.
func NewResolver(repo domain.Repository, cache domain.Cache, collapse additive.CollapseSet, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		repo:     repo,
		cache:    cache,
		collapse: collapse,
		cacheTTL: DefaultCacheTTL,
		logger:   logger,
	}
}

// Resolve looks up a single identifier. The input is normalized first;
// unparseable input and exhausted tiers both return ErrNotFound.
//
// Unlike the batch path, a single lookup also tries the digits-anchored
// key as a last resort, so a suffixed identifier like E150D can still
// surface the family row when no closer record exists. The match is
// inexact and recorded as such via MatchedFrom.
func (r *Resolver) Resolve(ctx context.Context, id string) (*domain.AdditiveRecord, error) {
	canonical, ok := additive.Normalize(id)
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized additive identifier %q", repository.ErrNotFound, id)
	}

	records, err := r.ResolveAll(ctx, []string{canonical})
	if err != nil {
		return nil, err
	}
	if rec, found := records[canonical]; found {
		return rec, nil
	}

	rec, err := r.resolveByDigits(ctx, canonical)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: no evidence for %s", repository.ErrNotFound, canonical)
	}
	return rec, nil
}

// ResolveAll resolves a batch of canonical identifiers. The returned map is
// keyed by input identifier; identifiers with no record in either tier are
// absent from the map, never present with a nil value. The repository is
// queried at most twice regardless of batch size: once for the curated
// tier, once for the authorisation tier.
func (r *Resolver) ResolveAll(ctx context.Context, ids []string) (map[string]*domain.AdditiveRecord, error) {
	resolved := make(map[string]*domain.AdditiveRecord, len(ids))
	if len(ids) == 0 {
		return resolved, nil
	}

	pending := r.fromCache(ctx, ids, resolved)
	if len(pending) == 0 {
		return resolved, nil
	}

	pending, err := r.resolveCurated(ctx, pending, resolved)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return resolved, nil
	}

	if err := r.resolveAuthorised(ctx, pending, resolved); err != nil {
		return nil, err
	}
	return resolved, nil
}

// Invalidate drops cached records for the given identifiers. Called after a
// reference-data reimport.
func (r *Resolver) Invalidate(ctx context.Context, ids []string) {
	if r.cache == nil {
		return
	}
	for _, id := range ids {
		if err := r.cache.Delete(ctx, cacheKey(id)); err != nil {
			r.logger.Warn("evidence cache invalidation failed", "id", id, "error", err)
		}
	}
}

// fromCache fills resolved from the cache and returns the identifiers that
// still need a repository lookup. Cache failures degrade to repository
// lookups, never to request failures.
func (r *Resolver) fromCache(ctx context.Context, ids []string, resolved map[string]*domain.AdditiveRecord) []string {
	if r.cache == nil {
		return ids
	}

	pending := make([]string, 0, len(ids))
	for _, id := range ids {
		data, err := r.cache.Get(ctx, cacheKey(id))
		if err != nil {
			r.logger.Warn("evidence cache read failed", "id", id, "error", err)
			pending = append(pending, id)
			continue
		}
		if data == nil {
			pending = append(pending, id)
			continue
		}
		var rec domain.AdditiveRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			r.logger.Warn("evidence cache entry corrupt, dropping", "id", id, "error", err)
			_ = r.cache.Delete(ctx, cacheKey(id))
			pending = append(pending, id)
			continue
		}
		resolved[id] = &rec
	}
	return pending
}

// resolveCurated runs the tier-1 lookup for all pending identifiers in one
// batched query and returns the identifiers left unresolved.
func (r *Resolver) resolveCurated(ctx context.Context, ids []string, resolved map[string]*domain.AdditiveRecord) ([]string, error) {
	keysByID := make(map[string][]string, len(ids))
	distinct := make([]string, 0, len(ids)*2)
	seen := make(map[string]struct{}, len(ids)*2)
	for _, id := range ids {
		keys := r.candidateKeys(id)
		keysByID[id] = keys
		for _, k := range keys {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			distinct = append(distinct, k)
		}
	}

	rows, err := r.repo.GetAdditivesByKeys(ctx, distinct)
	if err != nil {
		return nil, fmt.Errorf("curated evidence lookup: %w", err)
	}

	remaining := make([]string, 0, len(ids))
	for _, id := range ids {
		var match *domain.AdditiveRecord
		var matchedKey string
		for _, k := range keysByID[id] {
			if row, ok := rows[k]; ok && row != nil {
				match = row
				matchedKey = k
				break
			}
		}
		if match == nil {
			remaining = append(remaining, id)
			continue
		}

		rec := *match
		if matchedKey != id {
			rec.MatchedFrom = id
		}
		resolved[id] = &rec
		r.store(ctx, id, &rec)
	}
	return remaining, nil
}

// resolveAuthorised runs the tier-2 lookup. Authorisation rows are coarse:
// a name, a group, at best a basic risk hint. Missing fields are filled
// with a templated description and the register citation so downstream
// rendering never sees an empty record.
func (r *Resolver) resolveAuthorised(ctx context.Context, ids []string, resolved map[string]*domain.AdditiveRecord) error {
	keysByID := make(map[string][]string, len(ids))
	distinct := make([]string, 0, len(ids)*2)
	seen := make(map[string]struct{}, len(ids)*2)
	for _, id := range ids {
		keys := r.candidateKeys(id)
		keysByID[id] = keys
		for _, k := range keys {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			distinct = append(distinct, k)
		}
	}

	rows, err := r.repo.GetAuthorisationsByKeys(ctx, distinct)
	if err != nil {
		return fmt.Errorf("authorisation lookup: %w", err)
	}

	for _, id := range ids {
		var auth *domain.Authorisation
		var matchedKey string
		for _, k := range keysByID[id] {
			if row, ok := rows[k]; ok && row != nil {
				auth = row
				matchedKey = k
				break
			}
		}
		if auth == nil {
			continue
		}

		rec := authorisationRecord(auth)
		if matchedKey != id {
			rec.MatchedFrom = id
		}
		resolved[id] = rec
		r.store(ctx, id, rec)
	}
	return nil
}

// candidateKeys orders the batch lookup keys for one identifier: the exact
// form, then the base form. Suffixed identifiers outside a collapsed
// family keep their suffix and simply miss when no row carries it; a
// suffix denotes a distinct regulated substance, so the family row is not
// a substitute here.
func (r *Resolver) candidateKeys(id string) []string {
	keys := []string{id}
	if base := additive.BaseOf(id, r.collapse); base != id {
		keys = append(keys, base)
	}
	return keys
}

// resolveByDigits is the widest single-lookup tier: strip everything but
// the digits and try the family row in both tiers. Returns nil, nil when
// nothing matches.
func (r *Resolver) resolveByDigits(ctx context.Context, id string) (*domain.AdditiveRecord, error) {
	d := additive.DigitsOf(id)
	if d == "" {
		return nil, nil
	}
	key := "E" + d
	if key == id {
		return nil, nil
	}

	rows, err := r.repo.GetAdditivesByKeys(ctx, []string{key})
	if err != nil {
		return nil, fmt.Errorf("curated evidence lookup: %w", err)
	}
	if row, ok := rows[key]; ok && row != nil {
		rec := *row
		rec.MatchedFrom = id
		return &rec, nil
	}

	auths, err := r.repo.GetAuthorisationsByKeys(ctx, []string{key})
	if err != nil {
		return nil, fmt.Errorf("authorisation lookup: %w", err)
	}
	if auth, ok := auths[key]; ok && auth != nil {
		rec := authorisationRecord(auth)
		rec.MatchedFrom = id
		return rec, nil
	}
	return nil, nil
}

func (r *Resolver) store(ctx context.Context, id string, rec *domain.AdditiveRecord) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKey(id), data, r.cacheTTL); err != nil {
		r.logger.Warn("evidence cache write failed", "id", id, "error", err)
	}
}

// authorisationRecord converts an authorisation row into the record shape
// the rest of the pipeline consumes.
func authorisationRecord(auth *domain.Authorisation) *domain.AdditiveRecord {
	rec := &domain.AdditiveRecord{
		ENumber:     auth.ENumber,
		Name:        auth.Name,
		RiskLevel:   additive.NormalizeRiskLevel(auth.BasicRiskLevel),
		Description: auth.Message,
		SourceTitle: fsaRegisterTitle,
		SourceURL:   auth.SourceURL,
		ADI:         auth.ADI,
	}
	if rec.Name == "" {
		rec.Name = auth.ENumber
	}
	if rec.Description == "" {
		group := auth.Group
		if group == "" {
			group = "unclassified"
		}
		rec.Description = fmt.Sprintf("Authorised food additive (%s). Evidence details not curated yet.", group)
	}
	if rec.SourceURL == "" {
		rec.SourceURL = fsaRegisterURL
	}
	return rec
}

func cacheKey(id string) string {
	return "evidence:additive:" + id
}
