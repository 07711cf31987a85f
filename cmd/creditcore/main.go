// Creditcore - event-sourced credit scoring and reward ledger.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/shfed/creditcore/internal/api"
	"github.com/shfed/creditcore/internal/bus"
	"github.com/shfed/creditcore/internal/cache"
	"github.com/shfed/creditcore/internal/catalog"
	"github.com/shfed/creditcore/internal/domain"
	"github.com/shfed/creditcore/internal/ledger"
	"github.com/shfed/creditcore/internal/repository"
	"github.com/shfed/creditcore/internal/scoring"
	"github.com/shfed/creditcore/internal/worker"
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
	if os.Getenv("CREDITCORE_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting creditcore",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()
	if os.Getenv("CREDITCORE_MODE") == "cluster" {
		cfg = domain.ClusterConfig()
		slog.Info("running in cluster mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
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

	// Initialize rule catalog: latest stored document wins, stock rules
	// otherwise.
	doc, err := loadRulesDoc(ctx, repo)
	if err != nil {
		slog.Error("failed to load rules document", "error", err)
		os.Exit(1)
	}
	cat, err := catalog.New(doc)
	if err != nil {
		slog.Error("failed to initialize rule catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("rule catalog initialized",
		"version", cat.Version(),
		"rules_count", cat.Count(),
	)

	// Initialize scoring engine
	engine := scoring.NewEngine(cat, cfg.Scoring)
	slog.Info("scoring engine initialized")

	// Initialize ledger
	led := ledger.New(repo, ledger.WithCache(cacheImpl), ledger.WithBus(busImpl))
	if err := led.VerifyChain(ctx); err != nil {
		if errors.Is(err, ledger.ErrChainCorrupt) {
			slog.Error("ledger chain verification failed", "error", err)
			os.Exit(1)
		}
		slog.Warn("could not verify ledger chain", "error", err)
	}
	slog.Info("ledger initialized")

	// Initialize async worker
	asyncWorker := worker.NewWorker(busImpl, repo, cacheImpl, cat, engine, led)
	if err := asyncWorker.Start(); err != nil {
		slog.Error("failed to start async worker", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, cat, engine, led, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("creditcore is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("creditcore shutdown complete")
}

// loadRulesDoc returns the latest stored rules document, or the stock
// document when none has been saved yet.
func loadRulesDoc(ctx context.Context, repo domain.Repository) (*domain.RulesDoc, error) {
	doc, err := repo.GetRulesDoc(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			slog.Info("no stored rules document, using stock rules")
			return catalog.DefaultDoc(), nil
		}
		return nil, err
	}
	slog.Info("loaded stored rules document", "version", doc.Version)
	return doc, nil
}

func applyEnvOverrides(cfg *domain.Config) {
	if port := os.Getenv("CREDITCORE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if path := os.Getenv("CREDITCORE_SQLITE_PATH"); path != "" {
		cfg.Repository.SQLitePath = path
	}
	if host := os.Getenv("CREDITCORE_POSTGRES_HOST"); host != "" {
		cfg.Repository.PostgresHost = host
	}
	if addr := os.Getenv("CREDITCORE_REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
	}
	if url := os.Getenv("CREDITCORE_NATS_URL"); url != "" {
		cfg.EventBus.NATSUrl = url
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  creditcore - every point accounted for")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score               - Score a posted event list")
	fmt.Println("    POST /events              - Ingest an event")
	fmt.Println("    GET  /events/{id}         - Get event by ID")
	fmt.Println("    GET  /actors/{id}/score   - Recompute an actor's score")
	fmt.Println("    GET  /actors/{id}/events  - List an actor's events")
	fmt.Println("    POST /ledger/entries      - Append a ledger entry")
	fmt.Println("    GET  /ledger/entries      - Export ledger entries")
	fmt.Println("    GET  /ledger/balances     - Fold balances")
	fmt.Println("    GET  /ledger/verify       - Verify the hash chain")
	fmt.Println("    GET  /ledger/stats        - Activity summary")
	fmt.Println("    POST /debts               - Open a debt")
	fmt.Println("    POST /debts/payments      - Record a payment")
	fmt.Println("    POST /disputes            - Open a dispute")
	fmt.Println("    POST /disputes/resolve    - Resolve a dispute")
	fmt.Println("    GET  /rules               - List active rules")
	fmt.Println("    POST /rules               - Install a rules document")
	fmt.Println("    POST /rules/reload        - Reload stored rules")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println()
}
