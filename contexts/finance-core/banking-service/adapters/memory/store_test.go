package memory_test

import (
	"context"
	"testing"
	"time"

	"unity/contexts/finance-core/banking-service/adapters/memory"
	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"
	"unity/contexts/finance-core/banking-service/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithAccountLockStopsWaitingWhenContextEnds(t *testing.T) {
	store := memory.NewStore()
	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- store.WithAccountLock(context.Background(), []string{"user-1"}, func(context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	err := store.WithAccountLock(ctx, []string{"user-2", "user-1"}, func(context.Context) error {
		ran = true
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)

	close(release)
	require.NoError(t, <-done)

	require.NoError(t, store.WithAccountLock(context.Background(), []string{"user-1", "user-2"}, func(context.Context) error {
		return nil
	}))
}

func TestPutReplacesOnlyExpiredIdempotencyRecords(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(ctx, ports.IdempotencyRecord{
		Key: "user-1:k1", RequestHash: "a", TransactionID: "txn-1", CreatedAt: start, ExpiresAt: start.Add(time.Hour),
	}))
	require.ErrorIs(t, store.Put(ctx, ports.IdempotencyRecord{
		Key: "user-1:k1", RequestHash: "b", TransactionID: "txn-2", CreatedAt: start.Add(time.Minute), ExpiresAt: start.Add(2 * time.Hour),
	}), domainerrors.ErrIdempotencyKeyConflict)

	later := start.Add(3 * time.Hour)
	require.NoError(t, store.Put(ctx, ports.IdempotencyRecord{
		Key: "user-1:k1", RequestHash: "b", TransactionID: "txn-2", CreatedAt: later, ExpiresAt: later.Add(time.Hour),
	}))
	record, found, err := store.Get(ctx, "user-1:k1", later)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "txn-2", record.TransactionID)
}
