package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"solana-counterparty-lab/internal/domain"
	"solana-counterparty-lab/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
// Results are stored as JSONB in analysis_snapshots.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Save inserts or replaces the snapshot for s.Address.
func (s *SnapshotStore) Save(ctx context.Context, snap *storage.Snapshot) error {
	if snap == nil || snap.Address == "" || snap.Result == nil {
		return storage.ErrInvalidInput
	}

	payload, err := json.Marshal(snap.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO analysis_snapshots (address, result, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE
		SET result = EXCLUDED.result,
		    created_at = EXCLUDED.created_at,
		    expires_at = EXCLUDED.expires_at
	`, snap.Address, payload, snap.CreatedAt.UTC(), snap.ExpiresAt.UTC())
	if err != nil {
		return s.wrap("save snapshot", err)
	}
	return nil
}

// Load retrieves the unexpired snapshot for address. Returns ErrNotFound otherwise.
func (s *SnapshotStore) Load(ctx context.Context, address string) (*storage.Snapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT result, created_at, expires_at
		FROM analysis_snapshots
		WHERE address = $1 AND expires_at > NOW()
	`, address)

	var (
		payload []byte
		snap    = storage.Snapshot{Address: address}
	)
	if err := row.Scan(&payload, &snap.CreatedAt, &snap.ExpiresAt); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, s.wrap("load snapshot", err)
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot for %s: %w", address, err)
	}
	snap.Result = &result
	return &snap, nil
}

// Delete removes the snapshot for address.
func (s *SnapshotStore) Delete(ctx context.Context, address string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM analysis_snapshots WHERE address = $1`, address)
	if err != nil {
		return s.wrap("delete snapshot", err)
	}
	return nil
}

// PurgeExpired removes snapshots expired at now.
func (s *SnapshotStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM analysis_snapshots WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, s.wrap("purge snapshots", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *SnapshotStore) wrap(op string, err error) error {
	if isMissingTableError(err) {
		return fmt.Errorf("%s: analysis_snapshots missing, run migrations: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
