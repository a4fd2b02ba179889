// Have I Been Drained - Solana wallet threat detection.
// Copyright (c) 2025 haveibeendrained
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/alerts"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/analysis"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/api"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/bus"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/cache"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/config"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/provider"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/ratelimit"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/registry"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/repository"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/retry"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("HIBD_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting haveibeendrained",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"profile", cfg.Profile,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"registry_program", cfg.Solana.RegistryProgramID,
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

	// Initialize Solana access. A missing endpoint keeps the service up;
	// analyses then fail as misconfigured.
	var (
		txProvider domain.TransactionProvider
		entries    api.EntryReader
		oracle     *registry.CachedOracle
	)
	program, err := registry.NewProgram(cfg.Solana.RegistryProgramID, cfg.Solana.ProgramAuthority)
	if err != nil {
		slog.Error("failed to initialize registry program", "error", err)
		os.Exit(1)
	}

	solanaProvider, rpcClient, err := provider.NewSolanaProvider(cfg.Solana)
	switch {
	case errors.Is(err, domain.ErrProviderMisconfigured):
		slog.Warn("solana rpc endpoint not configured, wallet analysis disabled")
	case err != nil:
		slog.Error("failed to initialize solana provider", "error", err)
		os.Exit(1)
	default:
		txProvider = solanaProvider

		client, err := registry.NewClient(program, rpcClient, cfg.Solana.Commitment)
		if err != nil {
			slog.Error("failed to initialize registry client", "error", err)
			os.Exit(1)
		}
		entries = client

		policy := retry.DefaultPolicy()
		if cfg.Solana.LookupRetries >= 0 {
			policy.MaxAttempts = cfg.Solana.LookupRetries + 1
		}
		oracle = registry.NewCachedOracle(client, cacheImpl, cfg.Solana.PositiveTTL, cfg.Solana.NegativeTTL, policy)
		slog.Info("solana access initialized",
			"endpoint", cfg.Solana.RPCEndpoint,
			"commitment", cfg.Solana.Commitment,
		)
	}

	var drainerOracle domain.DrainerOracle
	if oracle != nil {
		drainerOracle = oracle
	}
	analyzer := analysis.New(txProvider, drainerOracle, analysis.ConfigFrom(cfg.Analysis))
	slog.Info("analyzer initialized",
		"transaction_limit", analyzer.Config().TransactionLimit,
		"concurrency", analyzer.Config().Concurrency,
		"timeout", analyzer.Config().Timeout,
	)

	// Initialize alert policies
	policies, err := alerts.NewEngine()
	if err != nil {
		slog.Error("failed to initialize alert policy engine", "error", err)
		os.Exit(1)
	}
	if err := policies.Validate(cfg.Alerts.DefaultPolicy); err != nil {
		slog.Error("invalid default alert policy", "error", err)
		os.Exit(1)
	}

	// Initialize alert worker
	var alertWorker *worker.Worker
	if cfg.Alerts.Enabled {
		alertWorker = worker.NewWorker(busImpl, repo, policies, worker.LogNotifier{})
		workerCfg := worker.Config{
			WorkerCount:   cfg.Alerts.WorkerCount,
			DefaultPolicy: cfg.Alerts.DefaultPolicy,
		}
		if err := alertWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start alert worker", "error", err)
			alertWorker = nil
		}
	}

	// Initialize rate limiter
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.New(cacheImpl, cfg.RateLimit)
		if err != nil {
			slog.Error("failed to initialize rate limiter", "error", err)
			os.Exit(1)
		}
	}

	deps := api.Deps{
		Analyzer: analyzer,
		Registry: entries,
		Program:  program,
		Repo:     repo,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Policies: policies,
		Limiter:  limiter,
		Version:  Version,
	}
	if oracle != nil {
		deps.Oracle = oracle
	}
	if cfg.Metrics.Enabled {
		deps.MetricsPath = cfg.Metrics.Path
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, deps)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("haveibeendrained is ready",
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

	// Stop the worker after the server so in-flight analyses still publish.
	if alertWorker != nil {
		if err := alertWorker.Stop(); err != nil {
			slog.Error("failed to stop alert worker", "error", err)
		}
	}

	slog.Info("haveibeendrained shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |          HAVE I BEEN DRAINED              |")
	fmt.Println("  |     Solana Wallet Threat Detection        |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Profile:  %s\n", cfg.Profile)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET    /api/v1/wallets/{address}/analysis  - Analyze a wallet")
	fmt.Println("    GET    /api/v1/wallets/{address}/analyses  - Analysis history")
	fmt.Println("    GET    /api/v1/analyses/{id}               - Get analysis by ID")
	fmt.Println("    GET    /api/v1/drainers/{address}          - Registry entry")
	fmt.Println("    POST   /api/v1/reports                     - Prepare a drainer report")
	fmt.Println("    POST   /api/v1/alerts                      - Subscribe to alerts")
	fmt.Println("    GET    /api/v1/alerts?wallet=              - List alert subscriptions")
	fmt.Println("    DELETE /api/v1/alerts/{id}                 - Remove a subscription")
	fmt.Println("    GET    /health                             - Health check")
	fmt.Println()
}
