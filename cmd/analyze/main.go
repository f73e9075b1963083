// Package main runs one counterparty analysis and prints the JSON result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"solana-counterparty-lab/internal/config"
	"solana-counterparty-lab/internal/ingestion"
	"solana-counterparty-lab/internal/orchestrator"
	"solana-counterparty-lab/internal/relations"
	"solana-counterparty-lab/internal/solana"
	"solana-counterparty-lab/internal/storage/memory"
)

func main() {
	logger := log.New(os.Stderr, "[analyze] ", log.LstdFlags)

	cfg, err := config.Load(".env")
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	address := flag.String("address", "", "Solana address to analyze")
	rpcEndpoint := flag.String("rpc-endpoint", cfg.RPCEndpoint, "Solana RPC HTTP endpoint")
	tierName := flag.String("tier", cfg.ProviderTier, "Provider tier (standard, premium)")
	rankName := flag.String("rank", cfg.RankPolicy, "Ranking policy (volume, interactions)")
	topN := flag.Int("top", cfg.TopN, "Number of counterparties to print")
	verbose := flag.Bool("verbose", false, "Log fetch progress to stderr")
	flag.Parse()

	if *address == "" {
		logger.Fatal("--address is required")
	}
	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}

	tier, err := ingestion.ParseTier(*tierName)
	if err != nil {
		logger.Fatalf("Invalid provider tier: %v", err)
	}
	rankPolicy, err := relations.ParseRankPolicy(*rankName)
	if err != nil {
		logger.Fatalf("Invalid rank policy: %v", err)
	}

	var componentLogger *log.Logger
	if *verbose {
		componentLogger = logger
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rpc := solana.NewHTTPClient(*rpcEndpoint)
	exclusions := relations.NewExclusionSet(cfg.ExtraExclusions...)
	runs := memory.NewAnalysisRunStore()

	orch := orchestrator.New(orchestrator.Options{
		Fetcher:    ingestion.NewFetcher(rpc, ingestion.FetcherOptions{Logger: componentLogger}),
		Runs:       runs,
		Exclusions: &exclusions,
		Policy:     ingestion.PolicyFor(tier),
		RankPolicy: rankPolicy,
		TopN:       *topN,
		Timeout:    cfg.AnalyzeTimeout,
		Logger:     componentLogger,
	})

	result := orch.Analyze(ctx, *address)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Fatalf("Failed to encode result: %v", err)
	}

	if recorded, err := orch.Runs(ctx, *address, 1); err == nil && len(recorded) == 1 {
		run := recorded[0]
		logger.Printf("run %s: status=%s signatures=%d fetched=%d skipped=%d batches_failed=%d rate_limited=%d duration=%dms",
			run.RunID, run.Status, run.SignaturesListed, run.RecordsFetched, run.RecordsSkipped,
			run.BatchesFailed, run.RateLimitHits, run.DurationMs)
	}

	if result.Failed() {
		os.Exit(1)
	}
}
