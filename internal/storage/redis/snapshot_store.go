// Package redis holds the Redis-backed snapshot store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"solana-counterparty-lab/internal/domain"
	"solana-counterparty-lab/internal/storage"
)

const keyPrefix = "snapshot:"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// SnapshotStore implements storage.SnapshotStore using Redis.
// Expiry is delegated to Redis key TTLs.
type SnapshotStore struct {
	client *goredis.Client
	now    func() time.Time
}

// NewSnapshotStore connects to Redis and verifies the connection.
func NewSnapshotStore(ctx context.Context, opts Options) (*SnapshotStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &SnapshotStore{client: client, now: time.Now}, nil
}

// NewSnapshotStoreWithClient wraps an existing client.
func NewSnapshotStoreWithClient(client *goredis.Client) *SnapshotStore {
	return &SnapshotStore{client: client, now: time.Now}
}

// Ensure SnapshotStore implements the storage.SnapshotStore interface
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

type snapshotRecord struct {
	Result    *domain.AnalysisResult `json:"result"`
	CreatedAt time.Time              `json:"createdAt"`
	ExpiresAt time.Time              `json:"expiresAt"`
}

// Save stores the snapshot with a TTL matching its expiry.
// Already expired snapshots are not written.
func (s *SnapshotStore) Save(ctx context.Context, snap *storage.Snapshot) error {
	if snap == nil || snap.Address == "" || snap.Result == nil {
		return storage.ErrInvalidInput
	}

	ttl := snap.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.Delete(ctx, snap.Address)
	}

	data, err := json.Marshal(snapshotRecord{
		Result:    snap.Result,
		CreatedAt: snap.CreatedAt,
		ExpiresAt: snap.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := s.client.Set(ctx, keyPrefix+snap.Address, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Load retrieves the snapshot for address. Returns ErrNotFound if missing or expired.
func (s *SnapshotStore) Load(ctx context.Context, address string) (*storage.Snapshot, error) {
	data, err := s.client.Get(ctx, keyPrefix+address).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec snapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	snap := &storage.Snapshot{
		Address:   address,
		Result:    rec.Result,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}
	if snap.Result == nil || snap.Expired(s.now()) {
		return nil, storage.ErrNotFound
	}
	return snap, nil
}

// Delete removes the snapshot for address.
func (s *SnapshotStore) Delete(ctx context.Context, address string) error {
	if err := s.client.Del(ctx, keyPrefix+address).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// PurgeExpired is a no-op: Redis evicts expired keys itself.
func (s *SnapshotStore) PurgeExpired(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

// Close closes the client.
func (s *SnapshotStore) Close() error {
	return s.client.Close()
}
