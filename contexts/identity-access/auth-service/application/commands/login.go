package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "unity/contexts/identity-access/auth-service/application"
	"unity/contexts/identity-access/auth-service/domain/entities"
	domainerrors "unity/contexts/identity-access/auth-service/domain/errors"
	"unity/contexts/identity-access/auth-service/domain/services"
	"unity/contexts/identity-access/auth-service/ports"
)

type LoginCommand struct {
	Email    string
	Password string
}

type LoginResult struct {
	Credential entities.Credential
	Session    entities.Session
	Token      string
}

type LoginUseCase struct {
	Credentials ports.CredentialRepository
	Hasher      ports.PasswordHasher
	Tokens      ports.TokenIssuer
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	SessionTTL  time.Duration
	Logger      *slog.Logger
}

// Execute does not tell an unknown email apart from a wrong password.
func (u LoginUseCase) Execute(ctx context.Context, cmd LoginCommand) (LoginResult, error) {
	logger := application.ResolveLogger(u.Logger)
	email := services.NormalizeEmail(cmd.Email)
	if email == "" || strings.TrimSpace(cmd.Password) == "" {
		return LoginResult{}, domainerrors.ErrMissingFields
	}

	credential, err := u.Credentials.GetCredentialByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domainerrors.ErrCredentialNotFound) {
			return LoginResult{}, domainerrors.ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if err := u.Hasher.Compare(credential.PasswordHash, cmd.Password); err != nil {
		logger.Warn("login rejected",
			"event", "auth_login_rejected",
			"module", "identity-access/auth-service",
			"layer", "application",
			"user_id", credential.UserID,
		)
		return LoginResult{}, domainerrors.ErrInvalidCredentials
	}

	session, token, err := sessionMinter{Tokens: u.Tokens, IDGenerator: u.IDGenerator, TTL: u.SessionTTL}.
		mint(ctx, credential.UserID, resolveNow(u.Clock))
	if err != nil {
		return LoginResult{}, err
	}
	logger.Info("login succeeded",
		"event", "auth_login_succeeded",
		"module", "identity-access/auth-service",
		"layer", "application",
		"user_id", credential.UserID,
	)
	return LoginResult{Credential: credential, Session: session, Token: token}, nil
}
