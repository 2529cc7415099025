package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"unity/contexts/finance-core/banking-service/ports"
)

const defaultIdempotencyTTL = 7 * 24 * time.Hour

func hashRequest(payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

// idempotencyScope namespaces a client key by its owner so two users may
// pick the same key.
func idempotencyScope(userID string, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return strings.TrimSpace(userID) + ":" + key
}

func resolveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultIdempotencyTTL
	}
	return ttl
}

func withAccountLock(ctx context.Context, locker ports.AccountLocker, userIDs []string, fn func(context.Context) error) error {
	if locker == nil {
		return fn(ctx)
	}
	return locker.WithAccountLock(ctx, userIDs, fn)
}
