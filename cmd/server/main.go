// Package main runs the counterparty analysis HTTP service:
// - API: /api/analyze/{address}, /api/cache/stats, /api/runs/{address}
// - Second cache tier: memory, PostgreSQL or Redis snapshots
// - Run log: ClickHouse (in-memory when no DSN is set)
// - Activity watcher: logsSubscribe-driven cache invalidation
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solana-counterparty-lab/internal/api"
	"solana-counterparty-lab/internal/config"
	"solana-counterparty-lab/internal/ingestion"
	"solana-counterparty-lab/internal/observability"
	"solana-counterparty-lab/internal/orchestrator"
	"solana-counterparty-lab/internal/relations"
	"solana-counterparty-lab/internal/solana"
	"solana-counterparty-lab/internal/storage"
	chstore "solana-counterparty-lab/internal/storage/clickhouse"
	"solana-counterparty-lab/internal/storage/memory"
	"solana-counterparty-lab/internal/storage/migrations"
	pgstore "solana-counterparty-lab/internal/storage/postgres"
	redisstore "solana-counterparty-lab/internal/storage/redis"
)

// purgeInterval is how often expired snapshots are removed from the second tier.
const purgeInterval = 10 * time.Minute

func main() {
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Load .env file if exists; env vars become flag defaults
	cfg, err := config.Load(envFile())
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	flag.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	flag.StringVar(&cfg.RPCEndpoint, "rpc-endpoint", cfg.RPCEndpoint, "Solana RPC HTTP endpoint")
	flag.StringVar(&cfg.WSEndpoint, "ws-endpoint", cfg.WSEndpoint, "Solana WebSocket endpoint")
	flag.StringVar(&cfg.ProviderTier, "tier", cfg.ProviderTier, "Provider tier (standard, premium)")
	flag.StringVar(&cfg.SnapshotBackend, "snapshot-backend", cfg.SnapshotBackend, "Snapshot backend (none, memory, postgres, redis)")
	flag.BoolVar(&cfg.WatchActivity, "watch", cfg.WatchActivity, "Invalidate cached results on new address activity")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid config: %v", err)
	}

	tier, err := ingestion.ParseTier(cfg.ProviderTier)
	if err != nil {
		logger.Fatalf("Invalid provider tier: %v", err)
	}
	rankPolicy, err := relations.ParseRankPolicy(cfg.RankPolicy)
	if err != nil {
		logger.Fatalf("Invalid rank policy: %v", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots, closeSnapshots, err := createSnapshotStore(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to create snapshot store: %v", err)
	}
	defer closeSnapshots()

	runs, closeRuns, err := createRunStore(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to create run store: %v", err)
	}
	defer closeRuns()

	rpc := solana.NewHTTPClient(cfg.RPCEndpoint,
		solana.WithLatencyObserver(observability.RecordRPCLatency),
	)

	cache := memory.NewResultCache(memory.ResultCacheOptions{
		MaxEntries: cfg.CacheMaxEntries,
		SuccessTTL: cfg.CacheSuccessTTL,
		ErrorTTL:   cfg.CacheErrorTTL,
		OnEvict:    func(string) { observability.RecordCacheEvictions(1) },
	})

	exclusions := relations.NewExclusionSet(cfg.ExtraExclusions...)
	orch := orchestrator.New(orchestrator.Options{
		Fetcher: ingestion.NewFetcher(rpc, ingestion.FetcherOptions{
			Logger: log.New(os.Stdout, "[fetcher] ", log.LstdFlags|log.Lshortfile),
		}),
		Cache:      cache,
		Snapshots:  snapshots,
		Runs:       runs,
		Exclusions: &exclusions,
		Policy:     ingestion.PolicyFor(tier),
		RankPolicy: rankPolicy,
		TopN:       cfg.TopN,
		Timeout:    cfg.AnalyzeTimeout,
		Coalesce:   cfg.CoalesceRequests,
		Logger:     log.New(os.Stdout, "[orchestrator] ", log.LstdFlags|log.Lshortfile),
	})

	if cfg.WatchActivity {
		watcher, closeWatcher, err := createWatcher(ctx, cfg, orch)
		if err != nil {
			logger.Fatalf("Failed to start activity watcher: %v", err)
		}
		defer closeWatcher()
		orch.AttachWatcher(watcher)
	}

	if snapshots != nil {
		go purgeSnapshots(ctx, snapshots, logger)
	}

	handler := api.NewHandler(orch, log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lshortfile)).
		WithReadinessProbe(func(ctx context.Context) error {
			_, err := rpc.GetSlot(ctx)
			return err
		})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown: %v", err)
		}
	}()

	logger.Printf("Starting HTTP server on %s (tier=%s, snapshots=%s, watch=%v)",
		cfg.HTTPAddr, tier, cfg.SnapshotBackend, cfg.WatchActivity)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("HTTP server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// envFile returns the .env path, overridable with ENV_FILE.
func envFile() string {
	if path := os.Getenv("ENV_FILE"); path != "" {
		return path
	}
	return ".env"
}

// createSnapshotStore creates the second cache tier. A nil store disables it.
func createSnapshotStore(ctx context.Context, cfg *config.Config) (storage.SnapshotStore, func(), error) {
	switch cfg.SnapshotBackend {
	case config.BackendMemory:
		return memory.NewSnapshotStore(time.Now), func() {}, nil

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		return pgstore.NewSnapshotStore(pool), pool.Close, nil

	case config.BackendRedis:
		store, err := redisstore.NewSnapshotStore(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		return store, func() { store.Close() }, nil

	default:
		return nil, func() {}, nil
	}
}

// createRunStore creates the run log: ClickHouse when configured, memory otherwise.
func createRunStore(ctx context.Context, cfg *config.Config) (storage.AnalysisRunStore, func(), error) {
	if cfg.ClickHouseDSN == "" {
		return memory.NewAnalysisRunStore(), func() {}, nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	return chstore.NewAnalysisRunStore(conn), func() { conn.Close() }, nil
}

// createWatcher connects the WebSocket client and builds an activity watcher
// that invalidates the orchestrator's cache tiers.
func createWatcher(ctx context.Context, cfg *config.Config, orch *orchestrator.Orchestrator) (*ingestion.ActivityWatcher, func(), error) {
	wsConfig := solana.DefaultWSConfig()
	wsConfig.Logger = log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lshortfile)

	ws, err := solana.NewWSClient(ctx, cfg.WSEndpoint, &wsConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("create websocket client: %w", err)
	}

	watcher := ingestion.NewActivityWatcher(ingestion.ActivityWatcherOptions{
		Client:       ws,
		Invalidator:  orch,
		MaxAddresses: cfg.WatchMaxAddresses,
		Logger:       log.New(os.Stdout, "[watcher] ", log.LstdFlags|log.Lshortfile),
	})

	cleanup := func() {
		watcher.Close()
		ws.Close()
	}
	return watcher, cleanup, nil
}

// purgeSnapshots removes expired snapshots on a schedule.
func purgeSnapshots(ctx context.Context, store storage.SnapshotStore, logger *log.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx, time.Now())
			if err != nil {
				observability.RecordStoreError("snapshot", "purge")
				logger.Printf("Snapshot purge failed: %v", err)
				continue
			}
			if n > 0 {
				logger.Printf("Purged %d expired snapshots", n)
			}
		}
	}
}
