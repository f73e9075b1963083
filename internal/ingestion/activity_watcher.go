package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"solana-counterparty-lab/internal/observability"
	"solana-counterparty-lab/internal/solana"
)

// ErrWatcherClosed is returned by Watch after Close.
var ErrWatcherClosed = errors.New("activity watcher closed")

// Invalidator drops cached results for an address.
type Invalidator interface {
	Invalidate(ctx context.Context, address string) error
}

// ActivityWatcherOptions contains configuration for creating an ActivityWatcher.
type ActivityWatcherOptions struct {
	Client       solana.WSClient
	Invalidator  Invalidator
	MaxAddresses int // Default: 100
	// InvalidateTimeout bounds a single invalidation. Default: 10s.
	InvalidateTimeout time.Duration
	Logger            *log.Logger
}

// ActivityWatcher keeps cached results fresh: it subscribes to logs that
// mention a watched address and invalidates the address on the first
// notification, then drops the subscription.
type ActivityWatcher struct {
	client            solana.WSClient
	invalidator       Invalidator
	maxAddresses      int
	invalidateTimeout time.Duration
	logger            *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	watched map[string]*watch
	closed  bool
}

type watch struct {
	sub *solana.LogSubscription
}

// NewActivityWatcher creates a new ActivityWatcher.
func NewActivityWatcher(opts ActivityWatcherOptions) *ActivityWatcher {
	maxAddresses := opts.MaxAddresses
	if maxAddresses <= 0 {
		maxAddresses = 100
	}
	invalidateTimeout := opts.InvalidateTimeout
	if invalidateTimeout <= 0 {
		invalidateTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ActivityWatcher{
		client:            opts.Client,
		invalidator:       opts.Invalidator,
		maxAddresses:      maxAddresses,
		invalidateTimeout: invalidateTimeout,
		logger:            logger,
		ctx:               ctx,
		cancel:            cancel,
		watched:           make(map[string]*watch),
	}
}

// Watch subscribes to activity for address. Watching an address twice is a
// no-op. When the watch set is full the address is not watched and its cache
// entry simply ages out; callers free slots with Unwatch.
func (w *ActivityWatcher) Watch(ctx context.Context, address string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	if _, ok := w.watched[address]; ok {
		w.mu.Unlock()
		return nil
	}
	if len(w.watched) >= w.maxAddresses {
		w.mu.Unlock()
		w.logger.Printf("watch set full (%d), not watching %s", w.maxAddresses, address)
		return nil
	}
	// Reserve the slot so concurrent calls do not subscribe twice.
	wt := &watch{}
	w.watched[address] = wt
	w.mu.Unlock()

	sub, err := w.client.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{address}})
	if err != nil {
		w.mu.Lock()
		if w.watched[address] == wt {
			delete(w.watched, address)
		}
		w.mu.Unlock()
		return fmt.Errorf("subscribe logs for %s: %w", address, err)
	}

	w.mu.Lock()
	if w.closed || w.watched[address] != wt {
		w.mu.Unlock()
		_ = w.client.Unsubscribe(ctx, sub)
		return nil
	}
	wt.sub = sub
	n := len(w.watched)
	w.wg.Add(1)
	w.mu.Unlock()

	observability.UpdateWatchedAddresses(n)
	w.logger.Printf("watching %s", address)
	go w.await(address, wt)
	return nil
}

// Unwatch drops the subscription for address, if any.
func (w *ActivityWatcher) Unwatch(ctx context.Context, address string) error {
	wt := w.remove(address, nil)
	if wt == nil || wt.sub == nil {
		return nil
	}
	return w.client.Unsubscribe(ctx, wt.sub)
}

// Watching reports whether address has an active subscription.
func (w *ActivityWatcher) Watching(address string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.watched[address]
	return ok
}

// Watched returns the watched addresses in lexical order.
func (w *ActivityWatcher) Watched() []string {
	w.mu.Lock()
	addresses := make([]string, 0, len(w.watched))
	for address := range w.watched {
		addresses = append(addresses, address)
	}
	w.mu.Unlock()
	sort.Strings(addresses)
	return addresses
}

// Len returns the number of watched addresses.
func (w *ActivityWatcher) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

// Close unsubscribes every address and waits for pending invalidations.
func (w *ActivityWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	watched := w.watched
	w.watched = make(map[string]*watch)
	w.mu.Unlock()

	w.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for address, wt := range watched {
		if wt.sub == nil {
			continue
		}
		if err := w.client.Unsubscribe(ctx, wt.sub); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe %s: %w", address, err))
		}
	}
	w.wg.Wait()
	observability.UpdateWatchedAddresses(0)
	return errors.Join(errs...)
}

// await blocks until the first notification for address, then invalidates it.
func (w *ActivityWatcher) await(address string, wt *watch) {
	defer w.wg.Done()

	var notif solana.LogNotification
	select {
	case n, ok := <-wt.sub.C:
		if !ok {
			w.remove(address, wt)
			return
		}
		notif = n
	case <-w.ctx.Done():
		return
	}

	if w.remove(address, wt) == nil {
		return
	}

	ctx, cancel := context.WithTimeout(w.ctx, w.invalidateTimeout)
	defer cancel()

	w.logger.Printf("activity for %s in %s, invalidating", address, notif.Signature)
	if err := w.invalidator.Invalidate(ctx, address); err != nil {
		w.logger.Printf("invalidate %s: %v", address, err)
	} else {
		observability.RecordInvalidation("activity")
	}
	if err := w.client.Unsubscribe(ctx, wt.sub); err != nil {
		w.logger.Printf("unsubscribe %s: %v", address, err)
	}
}

// remove deletes address from the watch set. If wt is non-nil the entry is
// removed only when it still belongs to wt. Returns the removed watch.
func (w *ActivityWatcher) remove(address string, wt *watch) *watch {
	w.mu.Lock()
	cur, ok := w.watched[address]
	if !ok || (wt != nil && cur != wt) {
		w.mu.Unlock()
		return nil
	}
	delete(w.watched, address)
	n := len(w.watched)
	w.mu.Unlock()

	observability.UpdateWatchedAddresses(n)
	return cur
}
