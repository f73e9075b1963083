package memory

import (
	"context"
	"sort"
	"sync"

	"solana-counterparty-lab/internal/domain"
	"solana-counterparty-lab/internal/storage"
)

// AnalysisRunStore is an in-memory implementation of storage.AnalysisRunStore.
type AnalysisRunStore struct {
	mu   sync.RWMutex
	runs []*domain.AnalysisRun
	ids  map[string]struct{}
}

// NewAnalysisRunStore creates a new in-memory analysis run store.
func NewAnalysisRunStore() *AnalysisRunStore {
	return &AnalysisRunStore{
		ids: make(map[string]struct{}),
	}
}

// Insert appends a run. Returns ErrDuplicateKey if run_id exists.
func (s *AnalysisRunStore) Insert(_ context.Context, run *domain.AnalysisRun) error {
	if run == nil || run.RunID == "" || run.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[run.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	runCopy := *run
	s.runs = append(s.runs, &runCopy)
	s.ids[run.RunID] = struct{}{}
	return nil
}

// ListByAddress retrieves up to limit runs for address, newest first.
func (s *AnalysisRunStore) ListByAddress(_ context.Context, address string, limit int) ([]*domain.AnalysisRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AnalysisRun
	for _, r := range s.runs {
		if r.Address == address {
			runCopy := *r
			result = append(result, &runCopy)
		}
	}

	// Sort by started_at DESC, run_id DESC for stable order
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt != result[j].StartedAt {
			return result[i].StartedAt > result[j].StartedAt
		}
		return result[i].RunID > result[j].RunID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Len returns the number of stored runs.
func (s *AnalysisRunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// Compile-time interface check
var _ storage.AnalysisRunStore = (*AnalysisRunStore)(nil)
