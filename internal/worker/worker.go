// Package worker persists computed scores asynchronously from the event
// bus. The persisted rows are a cache of assessment output, never the
// source of truth, so a lost message costs a recomputation and nothing else.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/foodscan/foodscan/internal/assess"
	"github.com/foodscan/foodscan/internal/domain"
)

// ScoreInvalidator drops cached evidence records when reference data
// changes. Implemented by evidence.Resolver.
type ScoreInvalidator interface {
	Invalidate(ctx context.Context, ids []string)
}

// Worker subscribes to assessment events and maintains the score cache.
type Worker struct {
	bus         domain.EventBus
	repo        domain.Repository
	invalidator ScoreInvalidator
	logger      *slog.Logger

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a score-cache worker. The invalidator may be nil.
func NewWorker(bus domain.EventBus, repo domain.Repository, invalidator ScoreInvalidator, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:         bus,
		repo:        repo,
		invalidator: invalidator,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start subscribes to the assessment and rules-reloaded topics.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicProductAssessed, w.handleAssessed)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	sub, err = w.bus.Subscribe(w.ctx, domain.TopicRulesReloaded, w.handleRulesReloaded)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("worker started",
		"topics", []string{domain.TopicProductAssessed, domain.TopicRulesReloaded})
	return nil
}

// handleAssessed persists the score row for a completed assessment.
func (w *Worker) handleAssessed(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var assessment domain.Assessment
	if err := json.Unmarshal(msg.Payload, &assessment); err != nil {
		w.logger.Error("failed to parse assessment message",
			"message_id", msg.ID,
			"error", err)
		return err
	}

	// Ad-hoc additive-list assessments carry no barcode and are not cacheable.
	if assessment.Barcode == "" {
		return nil
	}

	if err := w.repo.SaveProductScore(ctx, assess.Score(&assessment)); err != nil {
		w.logger.Error("failed to save product score",
			"barcode", assessment.Barcode,
			"error", err)
		return err
	}

	w.logger.Debug("product score saved",
		"barcode", assessment.Barcode,
		"health_score", assessment.HealthScore,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// RulesReloadedMessage announces a rule catalog change.
type RulesReloadedMessage struct {
	RulesCount int `json:"rulesCount"`

	// InvalidateAdditives lists evidence cache keys to drop alongside the
	// score rows, for reloads that also changed additive reference data.
	InvalidateAdditives []string `json:"invalidateAdditives,omitempty"`
}

// handleRulesReloaded drops every persisted score. Scores computed under
// the previous catalog are stale by definition.
func (w *Worker) handleRulesReloaded(ctx context.Context, msg *domain.Message) error {
	var reload RulesReloadedMessage
	if err := json.Unmarshal(msg.Payload, &reload); err != nil {
		w.logger.Error("failed to parse rules reloaded message",
			"message_id", msg.ID,
			"error", err)
		return err
	}

	if err := w.repo.DeleteProductScores(ctx); err != nil {
		w.logger.Error("failed to invalidate product scores", "error", err)
		return err
	}

	if w.invalidator != nil && len(reload.InvalidateAdditives) > 0 {
		w.invalidator.Invalidate(ctx, reload.InvalidateAdditives)
	}

	w.logger.Info("score cache invalidated",
		"rules_count", reload.RulesCount,
		"additives_invalidated", len(reload.InvalidateAdditives))
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err)
		}
	}
	w.subscriptions = nil

	w.logger.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
