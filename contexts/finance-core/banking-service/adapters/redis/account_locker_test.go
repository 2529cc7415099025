package redisadapter

import (
	"context"
	"sync"
	"testing"
	"time"

	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T, options LockOptions) *AccountLocker {
	t.Helper()
	server := miniredis.RunT(t)
	client := goredislib.NewClient(&goredislib.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewAccountLocker(redsync.New(goredis.NewPool(client)), options, nil)
}

func TestLockKeysAreSortedAndUnique(t *testing.T) {
	keys := lockKeys([]string{"user-b", "user-a", "user-b", " "})
	assert.Equal(t, []string{lockKeyPrefix + "user-a", lockKeyPrefix + "user-b"}, keys)
}

func TestWithAccountLockSerializesCallers(t *testing.T) {
	locker := newLocker(t, LockOptions{Tries: 200, RetryDelay: 5 * time.Millisecond})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithAccountLock(context.Background(), []string{"user-1"}, func(context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestWithAccountLockReportsBusyAccount(t *testing.T) {
	locker := newLocker(t, LockOptions{Tries: 1, RetryDelay: time.Millisecond})

	err := locker.WithAccountLock(context.Background(), []string{"user-1"}, func(ctx context.Context) error {
		return locker.WithAccountLock(ctx, []string{"user-1", "user-2"}, func(context.Context) error {
			return nil
		})
	})
	require.ErrorIs(t, err, domainerrors.ErrAccountLocked)
}
