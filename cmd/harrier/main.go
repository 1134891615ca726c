// Harrier - Transaction risk scoring for AML investigations.
// Copyright (c) 2026 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/opensource-finance/harrier/internal/api"
	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/model"
	"github.com/opensource-finance/harrier/internal/pipeline"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/risk"
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
	if os.Getenv("HARRIER_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("HARRIER_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	applyEnvOverrides(cfg)

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

	// Initialize Model Registry
	registry := model.NewRegistry(cfg.Model)
	slog.Info("model registry initialized",
		"artifact", cfg.Model.ArtifactPath,
		"saved_model", registry.HasSavedModel(),
	)

	// Initialize Typology Tagger
	tagger, err := risk.NewTagger()
	if err != nil {
		slog.Error("failed to initialize typology tagger", "error", err)
		os.Exit(1)
	}
	if err := loadTagRules(ctx, repo, tagger); err != nil {
		slog.Error("failed to load typology rules", "error", err)
		os.Exit(1)
	}
	slog.Info("typology tagger initialized", "rules_count", tagger.RuleCount())

	// Initialize Pipeline Scheduler
	scheduler := pipeline.NewScheduler(repo, cacheImpl, busImpl, registry, tagger, cfg.Pipeline)
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("pipeline started",
		"workers", cfg.Pipeline.Workers,
		"queue_size", cfg.Pipeline.QueueSize,
	)

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, scheduler, registry, tagger, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("harrier shutdown complete")
}

// loadTagRules installs tag rules from the database, falling back to the
// built-in defaults when none have been saved.
func loadTagRules(ctx context.Context, repo domain.Repository, tagger *risk.Tagger) error {
	dbRules, err := repo.ListTagRules(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list tag rules from database", "error", err)
		return tagger.LoadRules(risk.DefaultTagRules())
	}

	if len(dbRules) > 0 {
		slog.Info("loading tag rules from database", "count", len(dbRules))
		rules := make([]domain.TagRule, 0, len(dbRules))
		for _, r := range dbRules {
			rules = append(rules, *r)
		}
		return tagger.LoadRules(rules)
	}

	return tagger.LoadRules(risk.DefaultTagRules())
}

// applyEnvOverrides applies HARRIER_* environment overrides on top of the
// tier defaults.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("HARRIER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("HARRIER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("HARRIER_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("HARRIER_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("HARRIER_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("HARRIER_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("HARRIER_MODEL_PATH"); v != "" {
		cfg.Model.ArtifactPath = v
	}
	if v := os.Getenv("HARRIER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.Workers = n
		}
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 HARRIER                  ║")
	fmt.Println("  ║      Transaction Risk Engine              ║")
	fmt.Println("  ║      Hunting low over the ledger.         ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST  /ingest                     - Upload a transaction file")
	fmt.Println("    GET   /tasks/{id}                 - Poll ingestion task status")
	fmt.Println("    GET   /alerts                     - List alerts")
	fmt.Println("    GET   /alerts/stats               - Dashboard statistics")
	fmt.Println("    PATCH /alerts/{id}/status         - Update alert status")
	fmt.Println("    GET   /accounts                   - List scored accounts")
	fmt.Println("    GET   /accounts/{id}/transactions - Evidence transactions")
	fmt.Println("    GET   /rules                      - List typology tag rules")
	fmt.Println("    POST  /rules                      - Create a tag rule")
	fmt.Println("    POST  /rules/reload               - Hot-reload tag rules")
	fmt.Println("    POST  /model/train                - Train the anomaly model")
	fmt.Println("    GET   /health                     - Health check")
	fmt.Println()
}
