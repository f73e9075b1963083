package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-counterparty-lab/internal/domain"
	"solana-counterparty-lab/internal/ingestion"
	"solana-counterparty-lab/internal/solana"
	"solana-counterparty-lab/internal/solana/stub"
	"solana-counterparty-lab/internal/storage"
	"solana-counterparty-lab/internal/storage/memory"
)

const (
	queried = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	other   = "HN7cABqLq46Es1jh92dQQisAq662SmxELLLsHHe4YWrH"
	alice   = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	bob     = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingWatcher mirrors the activity watcher's bounded set: once max
// addresses are watched, further Watch calls are ignored. Zero max is unbounded.
type recordingWatcher struct {
	mu        sync.Mutex
	max       int
	addresses []string
	unwatched []string
	watched   map[string]bool
}

func (w *recordingWatcher) Watch(_ context.Context, address string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.addresses = append(w.addresses, address)
	if w.watched == nil {
		w.watched = make(map[string]bool)
	}
	if w.max > 0 && len(w.watched) >= w.max && !w.watched[address] {
		return nil
	}
	w.watched[address] = true
	return nil
}

func (w *recordingWatcher) Unwatch(_ context.Context, address string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unwatched = append(w.unwatched, address)
	delete(w.watched, address)
	return nil
}

func (w *recordingWatcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	addresses := make([]string, 0, len(w.watched))
	for address := range w.watched {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	return addresses
}

func (w *recordingWatcher) isWatching(address string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watched[address]
}

type fixture struct {
	rpc       *stub.RPCClient
	clock     *fakeClock
	cache     *memory.ResultCache
	runs      *memory.AnalysisRunStore
	snapshots *memory.SnapshotStore
	orch      *Orchestrator
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func newFixture(t *testing.T, configure func(*Options)) *fixture {
	t.Helper()

	f := &fixture{
		rpc:   stub.NewRPCClient(),
		clock: &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		runs:  memory.NewAnalysisRunStore(),
	}
	f.cache = memory.NewResultCache(memory.ResultCacheOptions{
		MaxEntries: 10,
		SuccessTTL: 5 * time.Minute,
		ErrorTTL:   time.Minute,
		Now:        f.clock.Now,
	})
	f.snapshots = memory.NewSnapshotStore(f.clock.Now)

	runID := 0
	opts := Options{
		RPC:       f.rpc,
		Cache:     f.cache,
		Snapshots: f.snapshots,
		Runs:      f.runs,
		Policy:    ingestion.PolicyFor(ingestion.TierStandard),
		Now:       f.clock.Now,
		NewRunID: func() string {
			runID++
			return fmt.Sprintf("run-%d", runID)
		},
	}
	if configure != nil {
		configure(&opts)
	}
	if opts.Fetcher == nil {
		opts.Fetcher = ingestion.NewFetcher(opts.RPC, ingestion.FetcherOptions{Sleep: noSleep})
	}
	f.orch = New(opts)
	return f
}

func transfer(sig string, blockTime int64, counterparty string, lamports uint64) *solana.Transaction {
	return &solana.Transaction{
		Slot:      blockTime,
		Signature: sig,
		BlockTime: blockTime,
		Meta: &solana.TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{10_000_000_000, 0, 1},
			PostBalances: []uint64{10_000_000_000 - lamports - 5000, lamports, 1},
		},
		Message: &solana.TransactionMessage{
			AccountKeys: []string{queried, counterparty, "11111111111111111111111111111111"},
		},
	}
}

func marshal(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestAnalyze_InvalidAddress(t *testing.T) {
	f := newFixture(t, nil)

	for _, addr := range []string{"", "not-an-address", "0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl"} {
		result := f.orch.Analyze(context.Background(), addr)
		assert.False(t, result.IsValid, addr)
		assert.NotEmpty(t, result.Error, addr)
		assert.NotNil(t, result.RelatedAccounts, addr)
		assert.Empty(t, result.RelatedAccounts, addr)
	}

	assert.Zero(t, f.cache.Len())
	assert.Zero(t, f.rpc.Calls("getSignaturesForAddress"))
	assert.Zero(t, f.runs.Len())
}

func TestAnalyze_EmptyHistory(t *testing.T) {
	f := newFixture(t, nil)

	result := f.orch.Analyze(context.Background(), queried)

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Error)
	require.NotNil(t, result.RelatedAccounts)
	assert.Empty(t, result.RelatedAccounts)
	assert.JSONEq(t, `{"address":"`+queried+`","isValid":true,"relatedAccounts":[]}`, marshal(t, result))
}

func TestAnalyze_SingleTransfer(t *testing.T) {
	f := newFixture(t, nil)
	f.rpc.AddHistory(queried, transfer("sig1", 1704067200, alice, 2_000_000_000))

	result := f.orch.Analyze(context.Background(), queried)

	require.Len(t, result.RelatedAccounts, 1)
	ra := result.RelatedAccounts[0]
	assert.Equal(t, alice, ra.Address)
	assert.Equal(t, "2.00 SOL", ra.TotalVolume)
	assert.Equal(t, 1, ra.InteractionCount)
	assert.Equal(t, int64(1704067200), ra.LastInteraction)
	assert.Equal(t, []domain.InteractionType{domain.InteractionNativeInflow}, ra.TransactionTypes)
}

func TestAnalyze_Idempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.rpc.AddHistory(queried,
		transfer("sig2", 1704067300, bob, 1_000_000),
		transfer("sig1", 1704067200, alice, 2_000_000_000),
	)

	first := marshal(t, f.orch.Analyze(context.Background(), queried))
	listings := f.rpc.Calls("getSignaturesForAddress")
	fetches := f.rpc.Calls("getTransaction")

	f.clock.Advance(4 * time.Minute)
	second := marshal(t, f.orch.Analyze(context.Background(), queried))

	assert.Equal(t, first, second)
	assert.Equal(t, listings, f.rpc.Calls("getSignaturesForAddress"))
	assert.Equal(t, fetches, f.rpc.Calls("getTransaction"))
	assert.Equal(t, 1, f.runs.Len())

	// Past the success TTL (and the snapshot expiry) the address is fetched again.
	f.clock.Advance(2 * time.Minute)
	f.orch.Analyze(context.Background(), queried)
	assert.Equal(t, listings+1, f.rpc.Calls("getSignaturesForAddress"))
}

func TestAnalyze_ListingFailureCachedBriefly(t *testing.T) {
	f := newFixture(t, nil)
	f.rpc.SignaturesErr = errors.New("dial tcp: connection refused")

	result := f.orch.Analyze(context.Background(), queried)
	assert.True(t, result.IsValid)
	assert.Equal(t, msgListingFailed, result.Error)
	assert.NotNil(t, result.RelatedAccounts)
	assert.NotContains(t, result.Error, "dial tcp")

	// Served from cache inside the error TTL.
	again := f.orch.Analyze(context.Background(), queried)
	assert.Equal(t, result, again)
	assert.Equal(t, 1, f.rpc.Calls("getSignaturesForAddress"))

	// Error results never reach the snapshot store.
	_, err := f.snapshots.Load(context.Background(), queried)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Recovers once the error entry expires.
	f.rpc.SignaturesErr = nil
	f.clock.Advance(time.Minute + time.Second)
	recovered := f.orch.Analyze(context.Background(), queried)
	assert.Empty(t, recovered.Error)
	assert.Equal(t, 2, f.rpc.Calls("getSignaturesForAddress"))

	runs, err := f.orch.Runs(context.Background(), queried, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, domain.RunStatusSuccess, runs[0].Status)
	assert.Equal(t, domain.RunStatusFailed, runs[1].Status)
	assert.Contains(t, runs[1].Error, "connection refused")
}

func TestAnalyze_PartialResultOnRateLimit(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		p := ingestion.PolicyFor(ingestion.TierPremium)
		p.BatchSize = 2
		o.Policy = p
	})
	f.rpc.AddHistory(queried,
		transfer("sig4", 1704067400, alice, 1_000_000_000),
		transfer("sig3", 1704067300, alice, 1_000_000_000),
		transfer("sig2", 1704067200, bob, 3_000_000_000),
		transfer("sig1", 1704067100, bob, 3_000_000_000),
	)
	f.rpc.SetTransactionErr("sig1", fmt.Errorf("%w (429)", solana.ErrRateLimited))

	result := f.orch.Analyze(context.Background(), queried)

	assert.Empty(t, result.Error)
	require.Len(t, result.RelatedAccounts, 1)
	assert.Equal(t, alice, result.RelatedAccounts[0].Address)
	assert.Equal(t, "2.00 SOL", result.RelatedAccounts[0].TotalVolume)

	runs, err := f.runs.ListByAddress(context.Background(), queried, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, domain.RunStatusPartial, run.Status)
	assert.Equal(t, 1, run.BatchesFailed)
	assert.Equal(t, 3, run.RateLimitHits)
	assert.Equal(t, 2, run.RecordsFetched)
	assert.Equal(t, "premium", run.ProviderTier)

	_, cached := f.cache.Get(queried)
	assert.True(t, cached)
}

func TestAnalyze_DeadlineIsNotCached(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Timeout = 20 * time.Millisecond
	})
	blocking := &blockingRPC{RPCClient: f.rpc}
	f.orch.fetcher = ingestion.NewFetcher(blocking, ingestion.FetcherOptions{Sleep: noSleep})

	result := f.orch.Analyze(context.Background(), queried)

	assert.True(t, result.IsValid)
	assert.Equal(t, msgTimedOut, result.Error)
	assert.Zero(t, f.cache.Len())
	_, err := f.snapshots.Load(context.Background(), queried)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The aborted run is still logged.
	assert.Equal(t, 1, f.runs.Len())
}

func TestAnalyze_CallerCancelled(t *testing.T) {
	f := newFixture(t, nil)
	blocking := &blockingRPC{RPCClient: f.rpc}
	f.orch.fetcher = ingestion.NewFetcher(blocking, ingestion.FetcherOptions{Sleep: noSleep})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := f.orch.Analyze(ctx, queried)
	assert.Equal(t, msgCancelled, result.Error)
	assert.Zero(t, f.cache.Len())
}

func TestAnalyze_SnapshotPromotion(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	stored := &domain.AnalysisResult{
		Address: queried,
		IsValid: true,
		RelatedAccounts: []domain.RelatedAccount{
			{Address: alice, TotalVolume: "1.00 SOL", Volume: 1, InteractionCount: 1},
		},
	}
	require.NoError(t, f.snapshots.Save(ctx, &storage.Snapshot{
		Address:   queried,
		Result:    stored,
		CreatedAt: f.clock.Now().Add(-3 * time.Minute),
		ExpiresAt: f.clock.Now().Add(2 * time.Minute),
	}))

	result := f.orch.Analyze(ctx, queried)
	assert.Equal(t, stored, result)
	assert.Zero(t, f.rpc.Calls("getSignaturesForAddress"))
	assert.Zero(t, f.runs.Len())

	// Promoted into L1 with the remaining lifetime.
	stats := f.orch.CacheStats()
	require.Len(t, stats.Entries, 1)
	assert.Equal(t, 2.0, stats.Entries[0].ExpiresInMinutes)
}

func TestAnalyze_SuccessWritesSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	f.rpc.AddHistory(queried, transfer("sig1", 1704067200, alice, 2_000_000_000))

	result := f.orch.Analyze(context.Background(), queried)

	snap, err := f.snapshots.Load(context.Background(), queried)
	require.NoError(t, err)
	assert.Equal(t, result, snap.Result)
	assert.Equal(t, f.clock.Now().Add(5*time.Minute), snap.ExpiresAt)
}

func TestAnalyze_WatcherNotifiedOnSuccess(t *testing.T) {
	f := newFixture(t, nil)
	w := &recordingWatcher{}
	f.orch.AttachWatcher(w)

	f.orch.Analyze(context.Background(), queried)
	f.orch.Analyze(context.Background(), queried) // cache hit

	f.rpc.SignaturesErr = errors.New("boom")
	f.orch.Analyze(context.Background(), other)

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Equal(t, []string{queried}, w.addresses)
}

func TestAnalyze_ExpiredEntriesReleaseWatchSlots(t *testing.T) {
	addrA, addrB, addrC := queried, alice, bob
	f := newFixture(t, nil)
	f.cache = memory.NewResultCache(memory.ResultCacheOptions{
		MaxEntries: 2,
		SuccessTTL: 5 * time.Minute,
		Now:        f.clock.Now,
	})
	f.orch.cache = f.cache
	w := &recordingWatcher{max: 2}
	f.orch.AttachWatcher(w)
	ctx := context.Background()

	f.orch.Analyze(ctx, addrA)
	f.orch.Analyze(ctx, addrB)
	require.ElementsMatch(t, []string{addrA, addrB}, w.Watched())

	f.clock.Advance(10 * time.Minute)
	f.orch.Analyze(ctx, addrC)

	assert.True(t, w.isWatching(addrC), "expired entries must free their watch slots")
	assert.ElementsMatch(t, []string{addrA, addrB}, w.unwatched)
	assert.Equal(t, []string{addrC}, w.Watched())
}

func TestAnalyze_EvictedEntryReleasesWatchSlot(t *testing.T) {
	addrA, addrB, addrC := queried, alice, bob
	f := newFixture(t, nil)
	f.cache = memory.NewResultCache(memory.ResultCacheOptions{
		MaxEntries: 2,
		SuccessTTL: time.Hour,
		Now:        f.clock.Now,
	})
	f.orch.cache = f.cache
	w := &recordingWatcher{max: 2}
	f.orch.AttachWatcher(w)
	ctx := context.Background()

	f.orch.Analyze(ctx, addrA)
	f.clock.Advance(time.Second)
	f.orch.Analyze(ctx, addrB)
	f.clock.Advance(time.Second)
	f.orch.Analyze(ctx, addrC)

	assert.Equal(t, []string{addrA}, w.unwatched)
	assert.True(t, w.isWatching(addrB))
	assert.True(t, w.isWatching(addrC))
}

func TestInvalidate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.rpc.AddHistory(queried, transfer("sig1", 1704067200, alice, 2_000_000_000))

	f.orch.Analyze(ctx, queried)
	require.NoError(t, f.orch.Invalidate(ctx, queried))

	_, cached := f.cache.Get(queried)
	assert.False(t, cached)
	_, err := f.snapshots.Load(ctx, queried)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	f.orch.Analyze(ctx, queried)
	assert.Equal(t, 2, f.rpc.Calls("getSignaturesForAddress"))
}

func TestAnalyze_Coalesced(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 4)

	f := newFixture(t, func(o *Options) { o.Coalesce = true })
	f.rpc.AddHistory(queried, transfer("sig1", 1704067200, alice, 2_000_000_000))
	gated := &gatedRPC{RPCClient: f.rpc, entered: entered, release: release}
	f.orch.fetcher = ingestion.NewFetcher(gated, ingestion.FetcherOptions{Sleep: noSleep})

	var wg sync.WaitGroup
	results := make([]*domain.AnalysisResult, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.orch.Analyze(context.Background(), queried)
		}(i)
	}

	<-entered
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	// Late arrivals either joined the flight or hit the cache.
	assert.Equal(t, 1, f.rpc.Calls("getSignaturesForAddress"))
	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
	assert.Equal(t, 1, f.runs.Len())
}

func TestCacheStats(t *testing.T) {
	f := newFixture(t, nil)
	f.orch.Analyze(context.Background(), queried)
	f.clock.Advance(30 * time.Second)

	stats := f.orch.CacheStats()
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, 10, stats.MaxSize)
	assert.Equal(t, 5.0, stats.TTLMinutes)
	require.Len(t, stats.Entries, 1)
	assert.Equal(t, queried, stats.Entries[0].Address)
	assert.Equal(t, 0.5, stats.Entries[0].AgeMinutes)
	assert.Equal(t, 4.5, stats.Entries[0].ExpiresInMinutes)
}

// blockingRPC never answers a listing until ctx is done.
type blockingRPC struct {
	*stub.RPCClient
}

func (b *blockingRPC) GetSignaturesForAddress(ctx context.Context, _ string, _ *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// gatedRPC holds listings until release is closed.
type gatedRPC struct {
	*stub.RPCClient
	entered chan struct{}
	release chan struct{}
}

func (g *gatedRPC) GetSignaturesForAddress(ctx context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.RPCClient.GetSignaturesForAddress(ctx, address, opts)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, msgInvalidAddress, userMessage(fmt.Errorf("%w: %q", domain.ErrInvalidAddress, "x")))
	assert.Equal(t, msgTimedOut, userMessage(fmt.Errorf("list: %w", context.DeadlineExceeded)))
	assert.Equal(t, msgCancelled, userMessage(context.Canceled))
	assert.Equal(t, msgListingFailed, userMessage(fmt.Errorf("list: %w: %w", domain.ErrUpstreamUnavailable, errors.New("https://rpc?api-key=k"))))
}
