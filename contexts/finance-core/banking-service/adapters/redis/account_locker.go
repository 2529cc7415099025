package redisadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"
	"unity/contexts/finance-core/banking-service/ports"

	"github.com/go-redsync/redsync/v4"
)

const lockKeyPrefix = "banking:lock:account:"

type LockOptions struct {
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

func DefaultLockOptions() LockOptions {
	return LockOptions{
		Expiry:     10 * time.Second,
		Tries:      20,
		RetryDelay: 50 * time.Millisecond,
	}
}

// AccountLocker serializes balance changes per account across API replicas.
// Multi-account locks are taken in sorted key order.
type AccountLocker struct {
	locks   *redsync.Redsync
	options LockOptions
	logger  *slog.Logger
}

func NewAccountLocker(locks *redsync.Redsync, options LockOptions, logger *slog.Logger) *AccountLocker {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultLockOptions()
	if options.Expiry <= 0 {
		options.Expiry = defaults.Expiry
	}
	if options.Tries <= 0 {
		options.Tries = defaults.Tries
	}
	if options.RetryDelay <= 0 {
		options.RetryDelay = defaults.RetryDelay
	}
	return &AccountLocker{locks: locks, options: options, logger: logger}
}

func (l *AccountLocker) WithAccountLock(ctx context.Context, userIDs []string, fn func(context.Context) error) error {
	keys := lockKeys(userIDs)
	held := make([]*redsync.Mutex, 0, len(keys))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			if ok, err := held[i].UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
				l.logger.Warn("account lock release failed",
					"event", "banking_account_lock_release_failed",
					"module", "finance-core/banking-service",
					"layer", "adapter",
					"lock_key", held[i].Name(),
				)
			}
		}
	}()

	for _, key := range keys {
		mutex := l.locks.NewMutex(
			key,
			redsync.WithExpiry(l.options.Expiry),
			redsync.WithTries(l.options.Tries),
			redsync.WithRetryDelay(l.options.RetryDelay),
		)
		if err := mutex.LockContext(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if isContention(err) {
				l.logger.Warn("account lock busy",
					"event", "banking_account_lock_busy",
					"module", "finance-core/banking-service",
					"layer", "adapter",
					"lock_key", key,
				)
				return domainerrors.ErrAccountLocked
			}
			return fmt.Errorf("acquire account lock %s: %w", key, err)
		}
		held = append(held, mutex)
	}
	return fn(ctx)
}

func lockKeys(userIDs []string) []string {
	seen := make(map[string]struct{}, len(userIDs))
	keys := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		userID = strings.TrimSpace(userID)
		if userID == "" {
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		keys = append(keys, lockKeyPrefix+userID)
	}
	sort.Strings(keys)
	return keys
}

func isContention(err error) bool {
	var taken *redsync.ErrTaken
	if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
		return true
	}
	message := err.Error()
	return strings.Contains(message, "lock already taken") || strings.Contains(message, "failed to acquire lock")
}

var _ ports.AccountLocker = (*AccountLocker)(nil)
