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
	"unity/contexts/finance-core/banking-service/domain/valueobjects"
	"unity/contexts/finance-core/banking-service/ports"
)

type DepositCommand struct {
	UserID    string
	Amount    string
	Reference string
	RequestID string
}

type DepositResult struct {
	Transaction entities.Transaction
	Balance     valueobjects.Money
	Replayed    bool
}

// DepositUseCase credits an account from an operator action. Accounts open
// with a zero balance, so this is the only way funds enter the ledger.
type DepositUseCase struct {
	Accounts     ports.AccountRepository
	Transactions ports.TransactionRepository
	Locker       ports.AccountLocker
	Clock        ports.Clock
	IDGenerator  ports.IDGenerator
	MaxAttempts  int
	Logger       *slog.Logger
}

func (u DepositUseCase) Execute(ctx context.Context, cmd DepositCommand) (DepositResult, error) {
	logger := application.ResolveLogger(u.Logger)
	if strings.TrimSpace(cmd.UserID) == "" || strings.TrimSpace(cmd.RequestID) == "" {
		return DepositResult{}, domainerrors.ErrInvalidDeposit
	}
	amount, err := valueobjects.ParseAmount(cmd.Amount)
	if err != nil {
		return DepositResult{}, err
	}

	if existing, found, err := u.Transactions.GetTransactionByRequestID(ctx, cmd.UserID, cmd.RequestID); err != nil {
		return DepositResult{}, err
	} else if found {
		account, err := u.Accounts.GetAccount(ctx, cmd.UserID)
		if err != nil {
			return DepositResult{}, err
		}
		return DepositResult{Transaction: existing, Balance: account.Balance, Replayed: true}, nil
	}

	var result DepositResult
	err = withAccountLock(ctx, u.Locker, []string{cmd.UserID}, func(ctx context.Context) error {
		var commitErr error
		attempts := u.MaxAttempts
		if attempts <= 0 {
			attempts = defaultTransferAttempts
		}
		for attempt := 0; attempt < attempts; attempt++ {
			result, commitErr = u.attempt(ctx, cmd, amount)
			if !errors.Is(commitErr, domainerrors.ErrConcurrentUpdate) {
				return commitErr
			}
		}
		return commitErr
	})
	if err != nil {
		logger.Error("deposit failed",
			"event", "banking_deposit_failed",
			"module", "finance-core/banking-service",
			"layer", "application",
			"user_id", cmd.UserID,
			"error", err.Error(),
		)
		return DepositResult{}, err
	}

	logger.Info("deposit completed",
		"event", "banking_deposit_completed",
		"module", "finance-core/banking-service",
		"layer", "application",
		"user_id", cmd.UserID,
		"transaction_id", result.Transaction.TransactionID,
	)
	return result, nil
}

func (u DepositUseCase) attempt(ctx context.Context, cmd DepositCommand, amount valueobjects.Money) (DepositResult, error) {
	now := time.Now().UTC()
	if u.Clock != nil {
		now = u.Clock.Now().UTC()
	}

	account, err := u.Accounts.GetAccount(ctx, cmd.UserID)
	if err != nil {
		return DepositResult{}, err
	}
	credited, err := account.Credit(amount, now)
	if err != nil {
		return DepositResult{}, err
	}

	transactionID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return DepositResult{}, err
	}
	transaction, err := entities.NewDeposit(transactionID, account, amount, cmd.Reference, cmd.RequestID, now)
	if err != nil {
		return DepositResult{}, err
	}
	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return DepositResult{}, err
	}

	if err := u.Transactions.CommitLedgerWrite(ctx, ports.LedgerWrite{
		Postings:    []ports.LedgerPosting{{Account: credited, Delta: amount, ExpectedVersion: account.Version}},
		Transaction: transaction,
		Event: ports.OutboxEvent{
			EventID:      eventID,
			EventType:    contractsv1.EventFundsDeposited,
			PartitionKey: account.UserID,
			Data: map[string]string{
				"transaction_id": transaction.TransactionID,
				"user_id":        account.UserID,
				"amount":         amount.String(),
				"currency":       valueobjects.CurrencyUSD,
			},
			OccurredAt: now,
		},
	}); err != nil {
		return DepositResult{}, err
	}
	return DepositResult{Transaction: transaction, Balance: credited.Balance}, nil
}
