package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-counterparty-lab/internal/domain"
	"solana-counterparty-lab/internal/storage"
)

func testResult(address string) *domain.AnalysisResult {
	return &domain.AnalysisResult{
		Address: address,
		IsValid: true,
		RelatedAccounts: []domain.RelatedAccount{
			{
				Address:          "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU",
				TotalVolume:      "2.00 SOL",
				Volume:           2,
				InteractionCount: 3,
				LastInteraction:  1704067200,
				TransactionTypes: []domain.InteractionType{domain.InteractionNativeInflow},
				OnCurve:          true,
			},
		},
	}
}

func TestSnapshotStore_SaveAndLoad(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	snap := &storage.Snapshot{
		Address:   "addrA",
		Result:    testResult("addrA"),
		CreatedAt: now,
		ExpiresAt: now.Add(5 * time.Minute),
	}
	require.NoError(t, store.Save(ctx, snap))

	got, err := store.Load(ctx, "addrA")
	require.NoError(t, err)
	assert.Equal(t, snap.Result, got.Result)
	assert.True(t, snap.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, snap.ExpiresAt.Equal(got.ExpiresAt))

	// Upsert replaces the previous snapshot.
	updated := testResult("addrA")
	updated.RelatedAccounts = []domain.RelatedAccount{}
	snap.Result = updated
	require.NoError(t, store.Save(ctx, snap))

	got, err = store.Load(ctx, "addrA")
	require.NoError(t, err)
	assert.Empty(t, got.Result.RelatedAccounts)
}

func TestSnapshotStore_ExpiredIsNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()
	past := time.Now().Add(-10 * time.Minute)

	require.NoError(t, store.Save(ctx, &storage.Snapshot{
		Address:   "old",
		Result:    testResult("old"),
		CreatedAt: past,
		ExpiresAt: past.Add(time.Minute),
	}))

	_, err := store.Load(ctx, "old")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Load(ctx, "never-saved")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	removed, err := store.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestSnapshotStore_Delete(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSnapshotStore(pool)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, &storage.Snapshot{
		Address:   "addrA",
		Result:    testResult("addrA"),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, store.Delete(ctx, "addrA"))
	require.NoError(t, store.Delete(ctx, "addrA"))

	_, err := store.Load(ctx, "addrA")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSnapshotStore_InvalidInput(t *testing.T) {
	store := NewSnapshotStore(nil)
	assert.ErrorIs(t, store.Save(context.Background(), nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Save(context.Background(), &storage.Snapshot{Address: "a"}), storage.ErrInvalidInput)
}
