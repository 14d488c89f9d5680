package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foodscan/foodscan/internal/assess"
	"github.com/foodscan/foodscan/internal/domain"
	"github.com/foodscan/foodscan/internal/evidence"
	"github.com/foodscan/foodscan/internal/off"
	"github.com/foodscan/foodscan/internal/repository"
	"github.com/foodscan/foodscan/internal/rules"
	"github.com/foodscan/foodscan/internal/scoring"
	"github.com/foodscan/foodscan/internal/worker"
)

// MaxBatchSize bounds one batch assessment request.
const MaxBatchSize = 200

// productCacheTTL bounds how long a fetched product payload is reused.
const productCacheTTL = 15 * time.Minute

// ProductFetcher fetches product payloads from the external source.
// Implemented by off.Client.
type ProductFetcher interface {
	FetchProduct(ctx context.Context, barcode string) (*domain.Product, error)
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	resolver  *evidence.Resolver
	processor *assess.Processor
	fetcher   ProductFetcher
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, resolver *evidence.Resolver, processor *assess.Processor, fetcher ProductFetcher, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		engine:    engine,
		resolver:  resolver,
		processor: processor,
		fetcher:   fetcher,
		version:   version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetAdditive resolves a single additive identifier through every evidence
// tier, including the widest digits-anchored key.
func (h *Handler) GetAdditive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	rec, err := h.resolver.Resolve(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "additive not found",
			})
			return
		}
		slog.Error("failed to resolve additive", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "resolution failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// BatchRequest is the request body for POST /additives/batch.
type BatchRequest struct {
	// Additives are raw identifiers in any supported spelling.
	Additives []string `json:"additives"`

	// Items optionally widens the interaction check beyond the additives,
	// e.g. with ingredient names.
	Items []string `json:"items,omitempty"`
}

// BatchAdditives assesses an ad-hoc additive list.
func (h *Handler) BatchAdditives(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Additives) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "additives is required",
		})
		return
	}
	if len(req.Additives) > MaxBatchSize {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "too many additives in one request",
		})
		return
	}

	assessment, err := h.processor.Process(ctx, &assess.Input{
		TraceID:   GetTraceID(ctx),
		Additives: req.Additives,
		Items:     req.Items,
		StartTime: start,
	})
	if err != nil {
		slog.Error("batch assessment failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "assessment failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// CheckRequest is the request body for POST /interactions/check.
type CheckRequest struct {
	Items []string `json:"items"`
}

// CheckResponse is the response for POST /interactions/check.
type CheckResponse struct {
	Matches []domain.Match            `json:"matches"`
	Summary domain.InteractionSummary `json:"summary"`
}

// CheckInteractions runs the loaded rule catalog against an item list.
func (h *Handler) CheckInteractions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "items is required",
		})
		return
	}

	matches := h.engine.Evaluate(ctx, req.Items)
	weights := make([]int, 0, len(matches))
	for _, m := range matches {
		weights = append(weights, m.Weight)
	}

	writeJSON(w, http.StatusOK, CheckResponse{
		Matches: matches,
		Summary: scoring.ScoreInteractions(weights),
	})
}

// ListRules returns the rules currently loaded in the engine. Rules are
// loaded from the database at startup and can be hot-reloaded via
// POST /interactions/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// ReloadRules reloads the rule catalog from the database into the engine
// and announces the change so stale persisted scores get dropped.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListInteractionRules(ctx)
	if err != nil {
		slog.Error("failed to load rules from repository", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules",
		})
		return
	}
	// An empty database keeps the built-in catalog, matching startup.
	if len(dbRules) == 0 {
		dbRules = rules.DefaultRules()
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules",
		})
		return
	}

	if h.bus != nil {
		payload, _ := json.Marshal(worker.RulesReloadedMessage{
			RulesCount: h.engine.RulesCount(),
		})
		if err := h.bus.Publish(ctx, domain.TopicRulesReloaded, payload); err != nil {
			slog.Error("failed to publish rules reloaded event", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded": true,
		"count":    h.engine.RulesCount(),
	})
}

// GetProduct fetches a product by barcode, assesses it, and returns the
// full assessment. The fetched payload is cached; the assessment itself is
// recomputed so rule or evidence changes show up immediately.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	barcode := chi.URLParam(r, "barcode")

	if h.fetcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "product source not configured",
		})
		return
	}

	var fetchMs int64
	product, err := h.cache.GetProduct(ctx, barcode)
	if err != nil {
		slog.Warn("product cache read failed", "barcode", barcode, "error", err)
	}
	if product == nil {
		fetchStart := time.Now()
		product, err = h.fetcher.FetchProduct(ctx, barcode)
		fetchMs = time.Since(fetchStart).Milliseconds()
		if err != nil {
			if errors.Is(err, off.ErrProductNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{
					"error": "product not found",
				})
				return
			}
			slog.Error("product fetch failed", "barcode", barcode, "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"error": "product source unavailable",
			})
			return
		}
		if cacheErr := h.cache.SetProduct(ctx, barcode, product, productCacheTTL); cacheErr != nil {
			slog.Warn("product cache write failed", "barcode", barcode, "error", cacheErr)
		}
	}

	assessment, err := h.processor.Process(ctx, &assess.Input{
		Barcode:   barcode,
		TraceID:   GetTraceID(ctx),
		Additives: product.Additives,
		Items:     ruleItems(product),
		Product:   product,
		FetchMs:   fetchMs,
		StartTime: start,
	})
	if err != nil {
		slog.Error("product assessment failed", "barcode", barcode, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "assessment failed",
		})
		return
	}

	if h.bus != nil {
		payload, _ := json.Marshal(assessment)
		if err := h.bus.Publish(ctx, domain.TopicProductAssessed, payload); err != nil {
			slog.Error("failed to publish assessment", "barcode", barcode, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, ProductResponse{
		Product:    product,
		Assessment: assessment,
	})
}

// GetProductScore serves the persisted score row written by the worker
// after a product assessment. It avoids the external fetch entirely, so a
// recently assessed product answers from storage alone; products never
// assessed (or wiped by a rules reload) return 404 and callers fall back
// to GET /products/{barcode}.
func (h *Handler) GetProductScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	barcode := chi.URLParam(r, "barcode")

	score, err := h.repo.GetProductScore(ctx, barcode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidInput) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no stored score for product",
			})
			return
		}
		slog.Error("failed to load product score", "barcode", barcode, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "score lookup failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, score)
}

// ProductResponse pairs the fetched product with its assessment.
type ProductResponse struct {
	Product    *domain.Product    `json:"product"`
	Assessment *domain.Assessment `json:"assessment"`
}

// ruleItems builds the item list the interaction rules run against:
// canonical additives plus the comma-split ingredient list.
func ruleItems(p *domain.Product) []string {
	items := append([]string(nil), p.Additives...)
	for _, part := range strings.Split(p.IngredientsText, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			items = append(items, part)
		}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
