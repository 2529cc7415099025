package redisadapter

import (
	"context"
	"time"

	"unity/contexts/identity-access/auth-service/ports"

	goredislib "github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "auth:revoked:"

// SessionRevocations keeps one key per revoked session id that expires with
// the token itself, so the set never outgrows the live sessions.
type SessionRevocations struct {
	client *goredislib.Client
	now    func() time.Time
}

func NewSessionRevocations(client *goredislib.Client) *SessionRevocations {
	return &SessionRevocations{client: client, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SessionRevocations) Revoke(ctx context.Context, sessionID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, revokedKeyPrefix+sessionID, "1", ttl).Err()
}

func (s *SessionRevocations) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	count, err := s.client.Exists(ctx, revokedKeyPrefix+sessionID).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

var _ ports.SessionRevocations = (*SessionRevocations)(nil)
