package storage

import (
	"context"
	"time"

	"solana-counterparty-lab/internal/domain"
)

// Snapshot is a successful analysis result persisted outside the process.
// Corresponds to analysis_snapshots table in PostgreSQL.
type Snapshot struct {
	Address   string
	Result    *domain.AnalysisResult
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the snapshot is past its expiry at now.
func (s *Snapshot) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SnapshotStore is the shared second-tier result cache.
type SnapshotStore interface {
	// Save inserts or replaces the snapshot for s.Address.
	Save(ctx context.Context, s *Snapshot) error

	// Load retrieves the snapshot for address.
	// Returns ErrNotFound if none exists or it has expired.
	Load(ctx context.Context, address string) (*Snapshot, error)

	// Delete removes the snapshot for address. Missing snapshots are not an error.
	Delete(ctx context.Context, address string) error

	// PurgeExpired removes snapshots expired at now and returns how many were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// AnalysisRunStore provides access to analysis_runs storage.
type AnalysisRunStore interface {
	// Insert appends a run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, run *domain.AnalysisRun) error

	// ListByAddress retrieves up to limit runs for address, newest first.
	// limit <= 0 returns all runs.
	ListByAddress(ctx context.Context, address string, limit int) ([]*domain.AnalysisRun, error)
}
