// Foodscan - food additive risk assessment service.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foodscan/foodscan/internal/additive"
	"github.com/foodscan/foodscan/internal/api"
	"github.com/foodscan/foodscan/internal/assess"
	"github.com/foodscan/foodscan/internal/bus"
	"github.com/foodscan/foodscan/internal/cache"
	"github.com/foodscan/foodscan/internal/domain"
	"github.com/foodscan/foodscan/internal/evidence"
	"github.com/foodscan/foodscan/internal/off"
	"github.com/foodscan/foodscan/internal/repository"
	"github.com/foodscan/foodscan/internal/rules"
	"github.com/foodscan/foodscan/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("FOODSCAN_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting foodscan",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration: tier defaults overlaid with an optional YAML file
	base := domain.DefaultConfig()
	if os.Getenv("FOODSCAN_TIER") == "pro" {
		base = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	cfg, err := domain.LoadConfig(os.Getenv("FOODSCAN_CONFIG"), base)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Rule Engine
	engine, err := rules.NewEngine(logger)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if err := loadRules(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Collapse set for identifier base keys
	collapse := additive.NewCollapseSet(cfg.CollapseBases...)

	// Evidence Resolver
	resolver := evidence.NewResolver(repo, cacheImpl, collapse, logger)
	slog.Info("evidence resolver initialized", "collapse_bases", cfg.CollapseBases)

	// Assessment Processor
	processor := assess.NewProcessor(resolver, engine, collapse, logger)
	slog.Info("assessment processor initialized", "engine_version", assess.EngineVersion)

	// Product source client
	fetcher := off.NewClient(cfg.ProductSource, logger)
	slog.Info("product source initialized", "base_url", cfg.ProductSource.BaseURL)

	// Score-cache worker
	scoreWorker := worker.NewWorker(busImpl, repo, resolver, logger)
	if err := scoreWorker.Start(); err != nil {
		slog.Error("failed to start score worker", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, resolver, processor, fetcher, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("foodscan is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	if err := scoreWorker.Stop(); err != nil {
		slog.Error("failed to stop score worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("foodscan shutdown complete")
}

// loadRules loads the interaction catalog from the database, falling back
// to the built-in rules when the database holds none.
func loadRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListInteractionRules(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return engine.LoadRules(rules.DefaultRules())
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no rules in database - loading built-in catalog")
	return engine.LoadRules(rules.DefaultRules())
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                  FOODSCAN")
	fmt.Println("       Food additive risk assessment")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /additives/{id}      - Resolve one additive")
	fmt.Println("    POST /additives/batch     - Assess an additive list")
	fmt.Println("    POST /interactions/check  - Check interaction rules")
	fmt.Println("    POST /interactions/reload - Hot-reload rules from database")
	fmt.Println("    GET  /rules               - List loaded rules")
	fmt.Println("    GET  /products/{barcode}  - Fetch and assess a product")
	fmt.Println("    GET  /products/{barcode}/score - Last persisted score")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println()
}
