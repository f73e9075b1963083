package memory

import (
	"context"
	"sync"
	"time"

	"solana-counterparty-lab/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string]*storage.Snapshot // keyed by address
	now  func() time.Time
}

// NewSnapshotStore creates a new in-memory snapshot store.
// A nil now uses time.Now.
func NewSnapshotStore(now func() time.Time) *SnapshotStore {
	if now == nil {
		now = time.Now
	}
	return &SnapshotStore{
		data: make(map[string]*storage.Snapshot),
		now:  now,
	}
}

// Save inserts or replaces the snapshot for s.Address.
func (s *SnapshotStore) Save(_ context.Context, snap *storage.Snapshot) error {
	if snap == nil || snap.Address == "" || snap.Result == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapCopy := *snap
	snapCopy.Result = snap.Result.Clone()
	s.data[snap.Address] = &snapCopy
	return nil
}

// Load retrieves the snapshot for address. Returns ErrNotFound if missing or expired.
func (s *SnapshotStore) Load(_ context.Context, address string) (*storage.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, exists := s.data[address]
	if !exists || snap.Expired(s.now()) {
		return nil, storage.ErrNotFound
	}

	snapCopy := *snap
	snapCopy.Result = snap.Result.Clone()
	return &snapCopy, nil
}

// Delete removes the snapshot for address.
func (s *SnapshotStore) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, address)
	return nil
}

// PurgeExpired removes snapshots expired at now.
func (s *SnapshotStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for addr, snap := range s.data {
		if snap.Expired(now) {
			delete(s.data, addr)
			removed++
		}
	}
	return removed, nil
}

// Compile-time interface check
var _ storage.SnapshotStore = (*SnapshotStore)(nil)
