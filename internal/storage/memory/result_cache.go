package memory

import (
	"math"
	"sort"
	"sync"
	"time"

	"solana-counterparty-lab/internal/domain"
)

// Result cache defaults.
const (
	DefaultMaxEntries = 100
	DefaultSuccessTTL = 5 * time.Minute
	DefaultErrorTTL   = 1 * time.Minute
)

// ResultCacheOptions contains configuration for creating a ResultCache.
type ResultCacheOptions struct {
	MaxEntries int           // Default: 100
	SuccessTTL time.Duration // Default: 5m
	ErrorTTL   time.Duration // Default: 1m
	Now        func() time.Time
	// OnEvict is called for every entry removed to respect MaxEntries.
	OnEvict func(address string)
}

type cacheEntry struct {
	result    *domain.AnalysisResult
	createdAt time.Time
	ttl       time.Duration
	seq       uint64 // insertion order, breaks createdAt ties
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// ResultCache is a size-bounded store of analysis results with per-entry expiry.
// One coarse mutex guards the whole store.
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	seq     uint64

	maxEntries int
	successTTL time.Duration
	errorTTL   time.Duration
	now        func() time.Time
	onEvict    func(string)
}

// NewResultCache creates a new in-memory result cache.
func NewResultCache(opts ResultCacheOptions) *ResultCache {
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	successTTL := opts.SuccessTTL
	if successTTL <= 0 {
		successTTL = DefaultSuccessTTL
	}
	errorTTL := opts.ErrorTTL
	if errorTTL <= 0 {
		errorTTL = DefaultErrorTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &ResultCache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		successTTL: successTTL,
		errorTTL:   errorTTL,
		now:        now,
		onEvict:    opts.OnEvict,
	}
}

// Get returns the cached result for address. An expired entry is removed
// and reported as absent.
func (c *ResultCache) Get(address string) (*domain.AnalysisResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[address]
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		delete(c.entries, address)
		return nil, false
	}
	return e.result.Clone(), true
}

// Put stores result under address with the given ttl, replacing any previous
// entry. Expired entries are purged first; if the store is still full the
// oldest entries are evicted until there is room.
func (c *ResultCache) Put(address string, result *domain.AnalysisResult, ttl time.Duration) {
	if result == nil || ttl <= 0 {
		return
	}

	c.mu.Lock()
	now := c.now()
	delete(c.entries, address)
	c.cleanupLocked(now)

	var evicted []string
	if len(c.entries) >= c.maxEntries {
		evicted = c.evictLocked(len(c.entries) - c.maxEntries + 1)
	}

	c.seq++
	c.entries[address] = &cacheEntry{
		result:    result.Clone(),
		createdAt: now,
		ttl:       ttl,
		seq:       c.seq,
	}
	c.mu.Unlock()

	// Callbacks run unlocked so they may call back into the cache.
	if c.onEvict != nil {
		for _, addr := range evicted {
			c.onEvict(addr)
		}
	}
}

// PutResult stores result with the success or error TTL, depending on whether it failed.
func (c *ResultCache) PutResult(address string, result *domain.AnalysisResult) {
	c.Put(address, result, c.TTLFor(result))
}

// TTLFor returns the TTL that PutResult would apply to result.
func (c *ResultCache) TTLFor(result *domain.AnalysisResult) time.Duration {
	if result != nil && result.Failed() {
		return c.errorTTL
	}
	return c.successTTL
}

// Invalidate removes address. Returns true if an entry was present.
func (c *ResultCache) Invalidate(address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[address]
	delete(c.entries, address)
	return ok
}

// Contains reports whether address has a live entry. Unlike Get it never
// removes anything.
func (c *ResultCache) Contains(address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[address]
	return ok && !e.expired(c.now())
}

// Len returns the number of stored entries, expired ones included.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// MaxEntries returns the configured capacity.
func (c *ResultCache) MaxEntries() int {
	return c.maxEntries
}

// SuccessTTL returns the TTL for successful results.
func (c *ResultCache) SuccessTTL() time.Duration {
	return c.successTTL
}

// ErrorTTL returns the TTL for error results.
func (c *ResultCache) ErrorTTL() time.Duration {
	return c.errorTTL
}

// Stats returns a read-only view of live entries, oldest first.
// It never mutates the store.
func (c *ResultCache) Stats() domain.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	type liveEntry struct {
		address string
		entry   *cacheEntry
	}
	live := make([]liveEntry, 0, len(c.entries))
	for addr, e := range c.entries {
		if !e.expired(now) {
			live = append(live, liveEntry{addr, e})
		}
	}
	sort.Slice(live, func(i, j int) bool {
		return olderThan(live[i].entry, live[j].entry)
	})

	entries := make([]domain.CacheEntryStats, 0, len(live))
	for _, l := range live {
		age := now.Sub(l.entry.createdAt)
		entries = append(entries, domain.CacheEntryStats{
			Address:          l.address,
			AgeMinutes:       minutes(age),
			ExpiresInMinutes: minutes(l.entry.ttl - age),
		})
	}

	return domain.CacheStats{
		TotalEntries: len(entries),
		MaxSize:      c.maxEntries,
		TTLMinutes:   minutes(c.successTTL),
		Entries:      entries,
	}
}

// cleanupLocked removes every expired entry. Caller holds c.mu.
func (c *ResultCache) cleanupLocked(now time.Time) {
	for addr, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, addr)
		}
	}
}

// evictLocked removes the n oldest entries by creation time. Caller holds c.mu.
func (c *ResultCache) evictLocked(n int) []string {
	addrs := make([]string, 0, len(c.entries))
	for addr := range c.entries {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return olderThan(c.entries[addrs[i]], c.entries[addrs[j]])
	})

	if n > len(addrs) {
		n = len(addrs)
	}
	for _, addr := range addrs[:n] {
		delete(c.entries, addr)
	}
	return addrs[:n]
}

func olderThan(a, b *cacheEntry) bool {
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.seq < b.seq
}

// minutes rounds d to two decimal places of a minute.
func minutes(d time.Duration) float64 {
	return math.Round(d.Minutes()*100) / 100
}
