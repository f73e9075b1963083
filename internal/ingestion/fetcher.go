package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"solana-counterparty-lab/internal/domain"
	"solana-counterparty-lab/internal/observability"
	"solana-counterparty-lab/internal/solana"
)

// FetchStats describes what a single fetch run retrieved and what it gave up on.
type FetchStats struct {
	SignaturesListed int
	RecordsFetched   int
	RecordsMissing   int // signatures the provider returned no record for
	BatchesFailed    int
	RateLimitHits    int
	BatchErrors      []string
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// FetcherOptions contains configuration for creating a Fetcher.
type FetcherOptions struct {
	Logger *log.Logger
	// Sleep replaces the real timer, mostly for tests.
	Sleep SleepFunc
}

// Fetcher retrieves a bounded window of recent transactions for an address
// without tripping provider rate limits.
// Batches are processed strictly in order; the delays between them are the
// rate-limit compliance mechanism.
type Fetcher struct {
	rpc    solana.RPCClient
	sleep  SleepFunc
	logger *log.Logger
}

// NewFetcher creates a new Fetcher.
func NewFetcher(rpc solana.RPCClient, opts FetcherOptions) *Fetcher {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Fetcher{
		rpc:    rpc,
		sleep:  sleep,
		logger: logger,
	}
}

// Fetch lists recent signatures for address and retrieves their records batch
// by batch, handing each record to visit as soon as its batch returns.
//
// A failed or throttled batch is skipped after policy.MaxAttempts and does not
// abort the run. Only a failed signature listing or a done ctx returns an error;
// records visited before that point stay visited.
func (f *Fetcher) Fetch(ctx context.Context, address string, policy FetchPolicy, visit func(*solana.Transaction)) (FetchStats, error) {
	var stats FetchStats
	if err := policy.Validate(); err != nil {
		return stats, fmt.Errorf("invalid fetch policy: %w", err)
	}

	listed, err := f.listSignatures(ctx, address, policy, &stats)
	if err != nil {
		return stats, fmt.Errorf("list signatures for %s: %w: %w", address, domain.ErrUpstreamUnavailable, err)
	}
	stats.SignaturesListed = len(listed)

	signatures := selectSignatures(listed, policy.MaxRecords)
	for batchNum, start := 0, 0; start < len(signatures); batchNum, start = batchNum+1, start+policy.BatchSize {
		end := min(start+policy.BatchSize, len(signatures))

		if batchNum > 0 {
			if err := f.sleep(ctx, policy.BatchDelay); err != nil {
				return stats, err
			}
		}

		txs, err := f.fetchBatch(ctx, signatures[start:end], policy, &stats)
		for _, tx := range txs {
			if tx == nil {
				stats.RecordsMissing++
				continue
			}
			stats.RecordsFetched++
			visit(tx)
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			stats.BatchesFailed++
			stats.BatchErrors = append(stats.BatchErrors, fmt.Sprintf("batch %d: %v", batchNum, err))
			observability.RecordBatchFailure(policy.Tier.String())
			f.logger.Printf("skipping batch %d (%d signatures) for %s: %v", batchNum, end-start, address, err)
		}
	}

	return stats, nil
}

// listSignatures retries throttled listings within the attempt budget.
func (f *Fetcher) listSignatures(ctx context.Context, address string, policy FetchPolicy, stats *FetchStats) ([]solana.SignatureInfo, error) {
	opts := &solana.SignaturesOpts{Limit: policy.SignatureWindow}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		sigs, err := f.rpc.GetSignaturesForAddress(ctx, address, opts)
		if err == nil {
			return sigs, nil
		}
		if !errors.Is(err, solana.ErrRateLimited) {
			return nil, err
		}
		lastErr = err
		f.rateLimited(policy, stats)
		if attempt == policy.MaxAttempts {
			break
		}
		if err := f.sleep(ctx, backoff(policy, attempt)); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", policy.MaxAttempts, lastErr)
}

func (f *Fetcher) fetchBatch(ctx context.Context, signatures []string, policy FetchPolicy, stats *FetchStats) ([]*solana.Transaction, error) {
	if policy.UseBatchRequests {
		return f.fetchBatchRequest(ctx, signatures, policy, stats)
	}
	return f.fetchSequential(ctx, signatures, policy, stats)
}

// fetchBatchRequest sends the whole batch as one request.
func (f *Fetcher) fetchBatchRequest(ctx context.Context, signatures []string, policy FetchPolicy, stats *FetchStats) ([]*solana.Transaction, error) {
	for attempt := 1; ; attempt++ {
		txs, err := f.rpc.GetTransactions(ctx, signatures)
		if err == nil {
			return txs, nil
		}
		if !errors.Is(err, solana.ErrRateLimited) {
			return nil, err
		}
		f.rateLimited(policy, stats)
		if sleepErr := f.sleep(ctx, backoff(policy, attempt)); sleepErr != nil {
			return nil, sleepErr
		}
		if attempt >= policy.MaxAttempts {
			return nil, fmt.Errorf("rate limited after %d attempts: %w", attempt, err)
		}
	}
}

// fetchSequential requests one record at a time. Records retrieved before a
// failure are returned with the error; a retry resumes at the failed signature.
func (f *Fetcher) fetchSequential(ctx context.Context, signatures []string, policy FetchPolicy, stats *FetchStats) ([]*solana.Transaction, error) {
	txs := make([]*solana.Transaction, 0, len(signatures))
	attempts := 0
	backedOff := false

	for pos := 0; pos < len(signatures); {
		// A retry right after a backoff does not pay the request delay again.
		if pos > 0 && !backedOff {
			if err := f.sleep(ctx, policy.RequestDelay); err != nil {
				return txs, err
			}
		}
		backedOff = false

		tx, err := f.rpc.GetTransaction(ctx, signatures[pos])
		if err == nil {
			txs = append(txs, tx)
			pos++
			continue
		}
		if !errors.Is(err, solana.ErrRateLimited) {
			return txs, err
		}

		attempts++
		f.rateLimited(policy, stats)
		if sleepErr := f.sleep(ctx, backoff(policy, attempts)); sleepErr != nil {
			return txs, sleepErr
		}
		if attempts >= policy.MaxAttempts {
			return txs, fmt.Errorf("rate limited after %d attempts: %w", attempts, err)
		}
		backedOff = true
	}
	return txs, nil
}

func (f *Fetcher) rateLimited(policy FetchPolicy, stats *FetchStats) {
	stats.RateLimitHits++
	observability.RecordRateLimitHit(policy.Tier.String())
	f.logger.Printf("rate limited (tier=%s), backing off %s", policy.Tier, policy.RateLimitBackoff)
}

// backoff grows linearly with the attempt number.
func backoff(policy FetchPolicy, attempt int) time.Duration {
	return policy.RateLimitBackoff * time.Duration(attempt)
}

// selectSignatures drops failed transactions and caps the result at limit.
func selectSignatures(listed []solana.SignatureInfo, limit int) []string {
	out := make([]string, 0, min(len(listed), limit))
	for _, sig := range listed {
		if len(out) == limit {
			break
		}
		if sig.Err != nil || sig.Signature == "" {
			continue
		}
		out = append(out, sig.Signature)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
