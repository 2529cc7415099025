package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	contractsv1 "unity/contracts/gen/events/v1"
	application "unity/contexts/identity-access/auth-service/application"
	"unity/contexts/identity-access/auth-service/domain/entities"
	domainerrors "unity/contexts/identity-access/auth-service/domain/errors"
	"unity/contexts/identity-access/auth-service/domain/services"
	"unity/contexts/identity-access/auth-service/ports"
)

type RegisterCommand struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

type RegisterResult struct {
	Credential entities.Credential
	Session    entities.Session
	Token      string
}

type RegisterUseCase struct {
	Credentials ports.CredentialRepository
	Hasher      ports.PasswordHasher
	Tokens      ports.TokenIssuer
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	SessionTTL  time.Duration
	Logger      *slog.Logger
}

func (u RegisterUseCase) Execute(ctx context.Context, cmd RegisterCommand) (RegisterResult, error) {
	logger := application.ResolveLogger(u.Logger)
	registration, err := services.ValidateRegistration(cmd.Name, cmd.Email, cmd.Password, cmd.ConfirmPassword)
	if err != nil {
		return RegisterResult{}, err
	}

	if _, err := u.Credentials.GetCredentialByEmail(ctx, registration.Email); err == nil {
		return RegisterResult{}, domainerrors.ErrEmailAlreadyInUse
	} else if !errors.Is(err, domainerrors.ErrCredentialNotFound) {
		return RegisterResult{}, err
	}

	hash, err := u.Hasher.Hash(registration.Password)
	if err != nil {
		return RegisterResult{}, err
	}
	userID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return RegisterResult{}, err
	}
	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return RegisterResult{}, err
	}

	now := resolveNow(u.Clock)
	credential := entities.Credential{
		UserID:       userID,
		Name:         registration.Name,
		Email:        registration.Email,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	event := ports.OutboxEvent{
		EventID:      eventID,
		EventType:    contractsv1.EventUserRegistered,
		PartitionKey: userID,
		Data: map[string]string{
			"user_id": userID,
			"name":    credential.Name,
			"email":   credential.Email,
		},
		OccurredAt: now,
	}
	if err := u.Credentials.CreateCredentialWithOutbox(ctx, credential, event); err != nil {
		if !errors.Is(err, domainerrors.ErrEmailAlreadyInUse) {
			logger.Error("register credential write failed",
				"event", "auth_register_write_failed",
				"module", "identity-access/auth-service",
				"layer", "application",
				"error", err.Error(),
			)
		}
		return RegisterResult{}, err
	}

	session, token, err := sessionMinter{Tokens: u.Tokens, IDGenerator: u.IDGenerator, TTL: u.SessionTTL}.mint(ctx, userID, now)
	if err != nil {
		return RegisterResult{}, err
	}

	logger.Info("user registered",
		"event", "auth_user_registered",
		"module", "identity-access/auth-service",
		"layer", "application",
		"user_id", userID,
	)
	return RegisterResult{Credential: credential, Session: session, Token: token}, nil
}
