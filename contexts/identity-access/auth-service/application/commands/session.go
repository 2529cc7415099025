package commands

import (
	"context"
	"time"

	"unity/contexts/identity-access/auth-service/domain/entities"
	"unity/contexts/identity-access/auth-service/ports"
)

const defaultSessionTTL = 24 * time.Hour

type sessionMinter struct {
	Tokens      ports.TokenIssuer
	IDGenerator ports.IDGenerator
	TTL         time.Duration
}

func (m sessionMinter) mint(ctx context.Context, userID string, now time.Time) (entities.Session, string, error) {
	sessionID, err := m.IDGenerator.NewID(ctx)
	if err != nil {
		return entities.Session{}, "", err
	}
	ttl := m.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	session := entities.Session{
		SessionID: sessionID,
		UserID:    userID,
		IssuedAt:  now.UTC(),
		ExpiresAt: now.UTC().Add(ttl),
	}
	token, err := m.Tokens.Issue(session)
	if err != nil {
		return entities.Session{}, "", err
	}
	return session, token, nil
}

func resolveNow(clock ports.Clock) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock.Now().UTC()
}
