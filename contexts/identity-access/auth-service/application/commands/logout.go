package commands

import (
	"context"
	"log/slog"
	"strings"

	application "unity/contexts/identity-access/auth-service/application"
	domainerrors "unity/contexts/identity-access/auth-service/domain/errors"
	"unity/contexts/identity-access/auth-service/ports"
)

type LogoutUseCase struct {
	Tokens      ports.TokenIssuer
	Revocations ports.SessionRevocations
	Logger      *slog.Logger
}

// Execute revokes the session behind token until its natural expiry.
func (u LogoutUseCase) Execute(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return domainerrors.ErrUnauthenticated
	}
	session, err := u.Tokens.Parse(token)
	if err != nil {
		return err
	}
	if err := u.Revocations.Revoke(ctx, session.SessionID, session.ExpiresAt); err != nil {
		return err
	}
	application.ResolveLogger(u.Logger).Info("session revoked",
		"event", "auth_session_revoked",
		"module", "identity-access/auth-service",
		"layer", "application",
		"user_id", session.UserID,
	)
	return nil
}
