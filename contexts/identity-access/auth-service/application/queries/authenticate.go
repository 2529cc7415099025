package queries

import (
	"context"
	"strings"

	"unity/contexts/identity-access/auth-service/domain/entities"
	domainerrors "unity/contexts/identity-access/auth-service/domain/errors"
	"unity/contexts/identity-access/auth-service/ports"
)

type AuthenticateUseCase struct {
	Tokens      ports.TokenIssuer
	Revocations ports.SessionRevocations
}

func (u AuthenticateUseCase) Execute(ctx context.Context, token string) (entities.Session, error) {
	if strings.TrimSpace(token) == "" {
		return entities.Session{}, domainerrors.ErrUnauthenticated
	}
	session, err := u.Tokens.Parse(token)
	if err != nil {
		return entities.Session{}, err
	}
	revoked, err := u.Revocations.IsRevoked(ctx, session.SessionID)
	if err != nil {
		return entities.Session{}, err
	}
	if revoked {
		return entities.Session{}, domainerrors.ErrSessionRevoked
	}
	return session, nil
}
