package clickhouse

import (
	"context"
	"fmt"

	"solana-counterparty-lab/internal/domain"
	"solana-counterparty-lab/internal/storage"
)

// AnalysisRunStore implements storage.AnalysisRunStore using ClickHouse.
type AnalysisRunStore struct {
	conn *Conn
}

// NewAnalysisRunStore creates a new AnalysisRunStore.
func NewAnalysisRunStore(conn *Conn) *AnalysisRunStore {
	return &AnalysisRunStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AnalysisRunStore = (*AnalysisRunStore)(nil)

// Insert appends a run. Returns ErrDuplicateKey if run_id exists.
func (s *AnalysisRunStore) Insert(ctx context.Context, r *domain.AnalysisRun) error {
	if r == nil || r.RunID == "" || r.Address == "" {
		return storage.ErrInvalidInput
	}

	// MergeTree does not enforce uniqueness
	exists, err := s.exists(ctx, r.Address, r.RunID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `
		INSERT INTO analysis_runs (
			run_id, address, provider_tier, started_at, duration_ms,
			signatures_listed, records_fetched, records_skipped,
			batches_failed, rate_limit_hits, related_accounts,
			status, error
		) VALUES (
			?, ?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?,
			?, ?
		)
	`

	err = s.conn.Exec(ctx, query,
		r.RunID, r.Address, r.ProviderTier, r.StartedAt, r.DurationMs,
		uint32(r.SignaturesListed), uint32(r.RecordsFetched), uint32(r.RecordsSkipped),
		uint32(r.BatchesFailed), uint32(r.RateLimitHits), uint32(r.RelatedAccounts),
		r.Status, r.Error,
	)
	if err != nil {
		return fmt.Errorf("insert analysis run: %w", err)
	}
	return nil
}

// ListByAddress retrieves up to limit runs for address, newest first.
func (s *AnalysisRunStore) ListByAddress(ctx context.Context, address string, limit int) ([]*domain.AnalysisRun, error) {
	query := `
		SELECT
			run_id, address, provider_tier, started_at, duration_ms,
			signatures_listed, records_fetched, records_skipped,
			batches_failed, rate_limit_hits, related_accounts,
			status, error
		FROM analysis_runs
		WHERE address = ?
		ORDER BY started_at DESC, run_id DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.conn.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("query analysis runs: %w", err)
	}
	defer rows.Close()

	return scanAnalysisRuns(rows)
}

// exists checks if a run with the given id exists for address.
func (s *AnalysisRunStore) exists(ctx context.Context, address, runID string) (bool, error) {
	query := `SELECT count(*) FROM analysis_runs WHERE address = ? AND run_id = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, address, runID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the subset of driver.Rows used for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanAnalysisRuns(rows chRows) ([]*domain.AnalysisRun, error) {
	var runs []*domain.AnalysisRun

	for rows.Next() {
		var (
			r                                      domain.AnalysisRun
			listed, fetched, skipped               uint32
			batchesFailed, rateLimitHits, accounts uint32
		)
		err := rows.Scan(
			&r.RunID, &r.Address, &r.ProviderTier, &r.StartedAt, &r.DurationMs,
			&listed, &fetched, &skipped,
			&batchesFailed, &rateLimitHits, &accounts,
			&r.Status, &r.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scan analysis run row: %w", err)
		}
		r.SignaturesListed = int(listed)
		r.RecordsFetched = int(fetched)
		r.RecordsSkipped = int(skipped)
		r.BatchesFailed = int(batchesFailed)
		r.RateLimitHits = int(rateLimitHits)
		r.RelatedAccounts = int(accounts)
		runs = append(runs, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis run rows: %w", err)
	}

	return runs, nil
}
