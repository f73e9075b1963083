// Package orchestrator is the entry point of an analysis.
// It coordinates: validation → cache lookup → fetch → aggregation → ranking → caching
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"solana-counterparty-lab/internal/domain"
	"solana-counterparty-lab/internal/ingestion"
	"solana-counterparty-lab/internal/observability"
	"solana-counterparty-lab/internal/relations"
	"solana-counterparty-lab/internal/solana"
	"solana-counterparty-lab/internal/storage"
	"solana-counterparty-lab/internal/storage/memory"
	"solana-counterparty-lab/internal/valuation"
)

// User-visible error messages.
const (
	msgInvalidAddress = "Invalid Solana address"
	msgListingFailed  = "Failed to fetch transaction history: upstream unavailable"
	msgTimedOut       = "Analysis timed out: upstream unavailable"
	msgCancelled      = "Analysis cancelled"
)

// DefaultTimeout bounds a single uncached analysis.
const DefaultTimeout = 90 * time.Second

// Watcher subscribes to activity for analyzed addresses.
type Watcher interface {
	Watch(ctx context.Context, address string) error
	Unwatch(ctx context.Context, address string) error
	Watched() []string
}

// Orchestrator coordinates one analysis per query.
// Flow: validate → L1 cache → L2 snapshot → fetch + aggregate → rank → cache
type Orchestrator struct {
	fetcher    *ingestion.Fetcher
	validator  solana.AddressValidator
	cache      *memory.ResultCache
	snapshots  storage.SnapshotStore
	runs       storage.AnalysisRunStore
	converter  *valuation.Converter
	exclusions relations.ExclusionSet

	policy     ingestion.FetchPolicy
	rankPolicy relations.RankPolicy
	topN       int
	timeout    time.Duration
	coalesce   bool

	now      func() time.Time
	newRunID func() string
	logger   *log.Logger

	group singleflight.Group

	mu      sync.RWMutex
	watcher Watcher
}

// Options for creating Orchestrator.
type Options struct {
	// RPC is used to build a Fetcher when Fetcher is nil.
	RPC     solana.RPCClient
	Fetcher *ingestion.Fetcher

	Validator  solana.AddressValidator // Default: solana.Base58Validator
	Cache      *memory.ResultCache     // Default: memory.NewResultCache with defaults
	Snapshots  storage.SnapshotStore   // Optional second-tier cache
	Runs       storage.AnalysisRunStore
	Converter  *valuation.Converter    // Default: valuation.NewDefaultConverter
	Exclusions *relations.ExclusionSet // Default: relations.NewExclusionSet()

	Policy     ingestion.FetchPolicy // Default: standard tier
	RankPolicy relations.RankPolicy  // Default: volume
	TopN       int                   // Default: 25
	Timeout    time.Duration         // Default: 90s
	Coalesce   bool                  // Share one upstream run between concurrent misses

	Now      func() time.Time
	NewRunID func() string
	Logger   *log.Logger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = ingestion.NewFetcher(opts.RPC, ingestion.FetcherOptions{Logger: logger})
	}

	validator := opts.Validator
	if validator == nil {
		validator = solana.Base58Validator{}
	}

	cache := opts.Cache
	if cache == nil {
		cache = memory.NewResultCache(memory.ResultCacheOptions{
			OnEvict: func(string) { observability.RecordCacheEvictions(1) },
		})
	}

	converter := opts.Converter
	if converter == nil {
		converter = valuation.NewDefaultConverter()
	}

	exclusions := relations.NewExclusionSet()
	if opts.Exclusions != nil {
		exclusions = *opts.Exclusions
	}

	policy := opts.Policy
	if policy.Tier == "" {
		policy = ingestion.PolicyFor(ingestion.TierStandard)
	}

	rankPolicy := opts.RankPolicy
	if rankPolicy == "" {
		rankPolicy = relations.RankByVolume
	}

	topN := opts.TopN
	if topN <= 0 {
		topN = relations.DefaultTopN
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	newRunID := opts.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}

	return &Orchestrator{
		fetcher:    fetcher,
		validator:  validator,
		cache:      cache,
		snapshots:  opts.Snapshots,
		runs:       opts.Runs,
		converter:  converter,
		exclusions: exclusions,
		policy:     policy,
		rankPolicy: rankPolicy,
		topN:       topN,
		timeout:    timeout,
		coalesce:   opts.Coalesce,
		now:        now,
		newRunID:   newRunID,
		logger:     logger,
	}
}

// AttachWatcher sets the activity watcher notified after each successful run.
// The watcher usually needs the orchestrator as its Invalidator, hence the setter.
func (o *Orchestrator) AttachWatcher(w Watcher) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.watcher = w
}

// Analyze returns the ranked counterparties of address.
// It never returns nil; failures are reported in the payload.
func (o *Orchestrator) Analyze(ctx context.Context, address string) *domain.AnalysisResult {
	address = strings.TrimSpace(address)

	if err := o.validate(address); err != nil {
		observability.RecordAnalysis(observability.OutcomeInvalid)
		return domain.NewFailedResult(address, false, userMessage(err))
	}

	if cached, ok := o.cache.Get(address); ok {
		observability.RecordAnalysis(observability.OutcomeCacheHit)
		o.logger.Printf("cache hit for %s", address)
		return cached
	}

	if !o.coalesce {
		return o.resolve(ctx, address)
	}

	// The shared run must not die with whichever caller started it.
	runCtx := context.WithoutCancel(ctx)
	v, _, shared := o.group.Do(address, func() (interface{}, error) {
		return o.resolve(runCtx, address), nil
	})
	if shared {
		observability.RecordCoalesced()
	}
	return v.(*domain.AnalysisResult).Clone()
}

// CacheStats returns a read-only view of the first-tier cache.
func (o *Orchestrator) CacheStats() domain.CacheStats {
	stats := o.cache.Stats()
	observability.UpdateCacheEntries(stats.TotalEntries)
	return stats
}

// Invalidate removes address from both cache tiers.
func (o *Orchestrator) Invalidate(ctx context.Context, address string) error {
	o.cache.Invalidate(address)
	observability.UpdateCacheEntries(o.cache.Len())

	if o.snapshots == nil {
		return nil
	}
	if err := o.snapshots.Delete(ctx, address); err != nil {
		observability.RecordStoreError("snapshot", "delete")
		return err
	}
	return nil
}

// Runs returns the most recent runs logged for address.
func (o *Orchestrator) Runs(ctx context.Context, address string, limit int) ([]*domain.AnalysisRun, error) {
	if o.runs == nil {
		return nil, nil
	}
	return o.runs.ListByAddress(ctx, address, limit)
}

// resolve serves an L1 miss: snapshot store first, then a fresh run.
func (o *Orchestrator) resolve(ctx context.Context, address string) *domain.AnalysisResult {
	// A concurrent run may have filled the cache while we waited.
	if cached, ok := o.cache.Get(address); ok {
		observability.RecordAnalysis(observability.OutcomeCacheHit)
		return cached
	}

	if result, ok := o.loadSnapshot(ctx, address); ok {
		observability.RecordAnalysis(observability.OutcomeSnapshotHit)
		return result
	}

	o.logger.Printf("cache miss for %s, fetching (tier=%s)", address, o.policy.Tier)
	result, run, cacheable := o.compute(ctx, address)

	observability.RecordAnalysis(outcomeOf(run, cacheable))
	o.recordRun(ctx, run)

	if !cacheable {
		return result
	}

	o.cache.PutResult(address, result)
	observability.UpdateCacheEntries(o.cache.Len())

	if !result.Failed() {
		o.saveSnapshot(ctx, address, result)
		o.watch(ctx, address)
	}
	return result
}

// compute fetches and aggregates under the analysis deadline. The returned
// flag is false when the run was cut short by ctx, in which case nothing
// may be written to the cache.
func (o *Orchestrator) compute(ctx context.Context, address string) (*domain.AnalysisResult, *domain.AnalysisRun, bool) {
	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	started := o.now()
	agg := relations.NewAggregator(address, o.converter, o.exclusions)
	stats, err := o.fetcher.Fetch(runCtx, address, o.policy, func(tx *solana.Transaction) {
		agg.Add(tx)
	})
	observability.RecordFetch(stats.RecordsFetched, agg.Skipped())

	run := &domain.AnalysisRun{
		RunID:            o.newRunID(),
		Address:          address,
		ProviderTier:     o.policy.Tier.String(),
		StartedAt:        started.UnixMilli(),
		DurationMs:       o.now().Sub(started).Milliseconds(),
		SignaturesListed: stats.SignaturesListed,
		RecordsFetched:   stats.RecordsFetched,
		RecordsSkipped:   agg.Skipped(),
		BatchesFailed:    stats.BatchesFailed,
		RateLimitHits:    stats.RateLimitHits,
	}
	observability.RecordAnalysisDuration(time.Duration(run.DurationMs) * time.Millisecond)

	if err != nil {
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()

		if ctxErr := runCtx.Err(); ctxErr != nil {
			o.logger.Printf("analysis of %s aborted: %v", address, err)
			return domain.NewFailedResult(address, true, userMessage(ctxErr)), run, false
		}

		o.logger.Printf("analysis of %s failed: %v", address, err)
		return domain.NewFailedResult(address, true, userMessage(err)), run, true
	}

	related := relations.Summarize(agg.Accounts(), o.rankPolicy, o.topN)
	run.RelatedAccounts = len(related)
	run.Status = domain.RunStatusSuccess
	if stats.BatchesFailed > 0 {
		run.Status = domain.RunStatusPartial
		run.Error = strings.Join(stats.BatchErrors, "; ")
	}

	o.logger.Printf("analyzed %s: %d records, %d counterparties, %d batches failed",
		address, stats.RecordsFetched, len(related), stats.BatchesFailed)

	return &domain.AnalysisResult{
		Address:         address,
		IsValid:         true,
		RelatedAccounts: related,
	}, run, true
}

func (o *Orchestrator) validate(address string) error {
	if !o.validator.IsValid(address) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidAddress, address)
	}
	return nil
}

// userMessage maps an analysis error to the payload message. Raw errors
// only reach the run log and the server log.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidAddress):
		return msgInvalidAddress
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimedOut
	case errors.Is(err, context.Canceled):
		return msgCancelled
	default:
		return msgListingFailed
	}
}

func (o *Orchestrator) loadSnapshot(ctx context.Context, address string) (*domain.AnalysisResult, bool) {
	if o.snapshots == nil {
		return nil, false
	}

	snap, err := o.snapshots.Load(ctx, address)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			observability.RecordStoreError("snapshot", "load")
			o.logger.Printf("snapshot load for %s: %v", address, err)
		}
		return nil, false
	}

	// Promote with the remaining lifetime, not a fresh TTL.
	remaining := snap.ExpiresAt.Sub(o.now())
	if remaining <= 0 {
		return nil, false
	}
	o.cache.Put(address, snap.Result, remaining)
	observability.UpdateCacheEntries(o.cache.Len())
	o.logger.Printf("snapshot hit for %s (expires in %s)", address, remaining.Round(time.Second))
	return snap.Result, true
}

func (o *Orchestrator) saveSnapshot(ctx context.Context, address string, result *domain.AnalysisResult) {
	if o.snapshots == nil {
		return
	}

	now := o.now()
	err := o.snapshots.Save(ctx, &storage.Snapshot{
		Address:   address,
		Result:    result,
		CreatedAt: now,
		ExpiresAt: now.Add(o.cache.SuccessTTL()),
	})
	if err != nil {
		observability.RecordStoreError("snapshot", "save")
		o.logger.Printf("snapshot save for %s: %v", address, err)
	}
}

func (o *Orchestrator) recordRun(ctx context.Context, run *domain.AnalysisRun) {
	if o.runs == nil {
		return
	}

	// The run is logged even when the analysis itself was cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.runs.Insert(ctx, run); err != nil {
		observability.RecordStoreError("analysis_runs", "insert")
		o.logger.Printf("record run %s: %v", run.RunID, err)
	}
}

func (o *Orchestrator) watch(ctx context.Context, address string) {
	o.mu.RLock()
	w := o.watcher
	o.mu.RUnlock()
	if w == nil {
		return
	}
	// Entries that expired or were evicted no longer need a subscription.
	for _, watched := range w.Watched() {
		if watched == address || o.cache.Contains(watched) {
			continue
		}
		if err := w.Unwatch(ctx, watched); err != nil {
			o.logger.Printf("unwatch %s: %v", watched, err)
		}
	}
	if err := w.Watch(ctx, address); err != nil {
		o.logger.Printf("watch %s: %v", address, err)
	}
}

func outcomeOf(run *domain.AnalysisRun, cacheable bool) string {
	switch {
	case !cacheable:
		return observability.OutcomeCancelled
	case run.Status == domain.RunStatusFailed:
		return observability.OutcomeFailed
	case run.Status == domain.RunStatusPartial:
		return observability.OutcomePartial
	default:
		return observability.OutcomeSuccess
	}
}
