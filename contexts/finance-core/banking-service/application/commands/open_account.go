package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	contractsv1 "unity/contracts/gen/events/v1"
	application "unity/contexts/finance-core/banking-service/application"
	"unity/contexts/finance-core/banking-service/domain/entities"
	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"
	"unity/contexts/finance-core/banking-service/domain/services"
	"unity/contexts/finance-core/banking-service/ports"
)

const maxCoordinateAttempts = 5

type OpenAccountCommand struct {
	UserID string
	Name   string
	Email  string
}

type OpenAccountResult struct {
	Account entities.Account
	Created bool
}

type OpenAccountUseCase struct {
	Accounts    ports.AccountRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Issuer      services.Issuer
	BankName    string
	Logger      *slog.Logger
}

// Execute opens the account for a freshly registered user. It is safe to call
// more than once for the same user: the signup request and the
// user.registered consumer both invoke it.
func (u OpenAccountUseCase) Execute(ctx context.Context, cmd OpenAccountCommand) (OpenAccountResult, error) {
	logger := application.ResolveLogger(u.Logger)
	if strings.TrimSpace(cmd.UserID) == "" || strings.TrimSpace(cmd.Name) == "" {
		return OpenAccountResult{}, domainerrors.ErrInvalidAccount
	}

	existing, err := u.Accounts.GetAccount(ctx, cmd.UserID)
	if err == nil {
		return OpenAccountResult{Account: existing}, nil
	}
	if !errors.Is(err, domainerrors.ErrAccountNotFound) {
		return OpenAccountResult{}, err
	}

	now := u.now()
	issued, err := u.issueUniqueCoordinates(ctx, now)
	if err != nil {
		return OpenAccountResult{}, err
	}

	account, err := entities.NewAccount(
		cmd.UserID,
		cmd.Name,
		cmd.Email,
		issued.AccountNumber,
		issued.TransitNumber,
		u.bankName(),
		issued.Card,
		now,
	)
	if err != nil {
		return OpenAccountResult{}, err
	}

	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return OpenAccountResult{}, err
	}
	event := ports.OutboxEvent{
		EventID:      eventID,
		EventType:    contractsv1.EventAccountOpened,
		PartitionKey: account.UserID,
		Data: map[string]string{
			"user_id":        account.UserID,
			"account_number": account.AccountNumber,
			"transit_number": account.TransitNumber,
		},
		OccurredAt: now,
	}

	if err := u.Accounts.CreateAccountWithOutbox(ctx, account, event); err != nil {
		if errors.Is(err, domainerrors.ErrAccountAlreadyOpen) {
			winner, getErr := u.Accounts.GetAccount(ctx, cmd.UserID)
			if getErr != nil {
				return OpenAccountResult{}, getErr
			}
			return OpenAccountResult{Account: winner}, nil
		}
		logger.Error("open account write failed",
			"event", "banking_open_account_write_failed",
			"module", "finance-core/banking-service",
			"layer", "application",
			"user_id", cmd.UserID,
			"error", err.Error(),
		)
		return OpenAccountResult{}, err
	}

	logger.Info("account opened",
		"event", "banking_account_opened",
		"module", "finance-core/banking-service",
		"layer", "application",
		"user_id", account.UserID,
	)
	return OpenAccountResult{Account: account, Created: true}, nil
}

func (u OpenAccountUseCase) issueUniqueCoordinates(ctx context.Context, now time.Time) (services.IssuedCoordinates, error) {
	for attempt := 0; attempt < maxCoordinateAttempts; attempt++ {
		issued, err := u.Issuer.Issue(now)
		if err != nil {
			return services.IssuedCoordinates{}, err
		}
		_, taken, err := u.Accounts.FindAccountByCoordinates(ctx, issued.AccountNumber, issued.TransitNumber)
		if err != nil {
			return services.IssuedCoordinates{}, err
		}
		if !taken {
			return issued, nil
		}
	}
	return services.IssuedCoordinates{}, domainerrors.ErrRepositoryInvariantBroke
}

func (u OpenAccountUseCase) bankName() string {
	if strings.TrimSpace(u.BankName) == "" {
		return DefaultBankName
	}
	return u.BankName
}

func (u OpenAccountUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
