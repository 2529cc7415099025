package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	contractsv1 "unity/contracts/gen/events/v1"
	application "unity/contexts/finance-core/banking-service/application"
	"unity/contexts/finance-core/banking-service/domain/entities"
	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"
	"unity/contexts/finance-core/banking-service/domain/services"
	"unity/contexts/finance-core/banking-service/domain/valueobjects"
	"unity/contexts/finance-core/banking-service/ports"
)

// DefaultBankName is the institution whose accounts can receive internal credits.
const DefaultBankName = "Unity Credit Union"

const defaultTransferAttempts = 3

type TransferCommand struct {
	UserID          string
	ReceiverName    string
	ReceiverAccount string
	ReceiverTransit string
	ReceiverBank    string
	Amount          string
	RequestID       string
	IdempotencyKey  string
}

type TransferResult struct {
	Transaction entities.Transaction
	Balance     valueobjects.Money
	Replayed    bool
}

type TransferUseCase struct {
	Accounts       ports.AccountRepository
	Transactions   ports.TransactionRepository
	Idempotency    ports.IdempotencyStore
	Locker         ports.AccountLocker
	Clock          ports.Clock
	IDGenerator    ports.IDGenerator
	HomeBankName   string
	IdempotencyTTL time.Duration
	MaxAttempts    int
	Logger         *slog.Logger
}

// Execute runs the transfer workflow in this order:
// 1) request validation and amount normalization
// 2) idempotency and request_id replay
// 3) per-account lock, idempotency re-check, then evaluate + commit with optimistic retry
// 4) idempotency record write.
// Debit, optional internal credit, transaction record and outbox event are a
// single repository commit, so a record never exists without its balance
// change and the stored balance never goes negative. Once that commit lands
// Execute reports success; a failed idempotency write is only logged.
func (u TransferUseCase) Execute(ctx context.Context, cmd TransferCommand) (TransferResult, error) {
	logger := application.ResolveLogger(u.Logger)
	if strings.TrimSpace(cmd.UserID) == "" {
		return TransferResult{}, domainerrors.ErrUnauthenticated
	}

	recipient := entities.Recipient{
		Name:          cmd.ReceiverName,
		AccountNumber: cmd.ReceiverAccount,
		TransitNumber: cmd.ReceiverTransit,
		BankName:      cmd.ReceiverBank,
	}.Normalized()
	if !recipient.Complete() || strings.TrimSpace(cmd.Amount) == "" {
		return TransferResult{}, domainerrors.ErrInvalidTransferRequest
	}
	amount, err := valueobjects.ParseAmount(cmd.Amount)
	if err != nil {
		return TransferResult{}, err
	}

	now := u.now()
	requestID, err := u.resolveRequestID(ctx, cmd)
	if err != nil {
		return TransferResult{}, err
	}
	requestHash, err := hashRequest(struct {
		UserID    string
		Recipient entities.Recipient
		Amount    string
	}{cmd.UserID, recipient, amount.String()})
	if err != nil {
		return TransferResult{}, err
	}

	logger.Info("transfer started",
		"event", "banking_transfer_started",
		"module", "finance-core/banking-service",
		"layer", "application",
		"user_id", cmd.UserID,
		"request_id", requestID,
	)

	key := idempotencyScope(cmd.UserID, cmd.IdempotencyKey)
	if transactionID, found, err := u.lookupKey(ctx, key, requestHash, now); err != nil {
		return TransferResult{}, err
	} else if found {
		return u.replay(ctx, cmd.UserID, transactionID)
	}

	if existing, found, err := u.Transactions.GetTransactionByRequestID(ctx, cmd.UserID, requestID); err != nil {
		return TransferResult{}, err
	} else if found {
		if err := u.rememberKey(ctx, key, requestHash, existing.TransactionID, now); err != nil {
			return TransferResult{}, err
		}
		return u.replay(ctx, cmd.UserID, existing.TransactionID)
	}

	sender, err := u.Accounts.GetAccount(ctx, cmd.UserID)
	if err != nil {
		return TransferResult{}, err
	}
	receiverID, err := u.resolveInternalReceiver(ctx, recipient)
	if err != nil {
		return TransferResult{}, err
	}
	if receiverID == sender.UserID {
		return TransferResult{}, domainerrors.ErrSelfTransfer
	}

	lockKeys := []string{sender.UserID}
	if receiverID != "" {
		lockKeys = append(lockKeys, receiverID)
	}

	var result TransferResult
	replayID := ""
	err = withAccountLock(ctx, u.Locker, lockKeys, func(ctx context.Context) error {
		// A request holding the same key may have committed while this one
		// waited for the sender lock.
		transactionID, found, err := u.lookupKey(ctx, key, requestHash, u.now())
		if err != nil {
			return err
		}
		if found {
			replayID = transactionID
			return nil
		}

		var commitErr error
		for attempt := 1; attempt <= u.maxAttempts(); attempt++ {
			result, commitErr = u.attempt(ctx, cmd.UserID, receiverID, recipient, amount, requestID)
			if !errors.Is(commitErr, domainerrors.ErrConcurrentUpdate) {
				return commitErr
			}
			logger.Warn("transfer commit raced, retrying",
				"event", "banking_transfer_retry",
				"module", "finance-core/banking-service",
				"layer", "application",
				"user_id", cmd.UserID,
				"attempt", attempt,
			)
		}
		return commitErr
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrDuplicateRequestID) {
			if existing, found, getErr := u.Transactions.GetTransactionByRequestID(ctx, cmd.UserID, requestID); getErr == nil && found {
				return u.replay(ctx, cmd.UserID, existing.TransactionID)
			}
		}
		logger.Warn("transfer rejected",
			"event", "banking_transfer_rejected",
			"module", "finance-core/banking-service",
			"layer", "application",
			"user_id", cmd.UserID,
			"error", err.Error(),
		)
		return TransferResult{}, err
	}

	if replayID != "" {
		return u.replay(ctx, cmd.UserID, replayID)
	}

	if err := u.rememberKey(ctx, key, requestHash, result.Transaction.TransactionID, now); err != nil {
		logger.Error("transfer idempotency record failed after commit",
			"event", "banking_transfer_idempotency_record_failed",
			"module", "finance-core/banking-service",
			"layer", "application",
			"user_id", cmd.UserID,
			"transaction_id", result.Transaction.TransactionID,
			"error", err.Error(),
		)
	}

	logger.Info("transfer completed",
		"event", "banking_transfer_completed",
		"module", "finance-core/banking-service",
		"layer", "application",
		"user_id", cmd.UserID,
		"transaction_id", result.Transaction.TransactionID,
		"internal", receiverID != "",
	)
	return result, nil
}

func (u TransferUseCase) attempt(
	ctx context.Context,
	senderID string,
	receiverID string,
	recipient entities.Recipient,
	amount valueobjects.Money,
	requestID string,
) (TransferResult, error) {
	now := u.now()
	sender, err := u.Accounts.GetAccount(ctx, senderID)
	if err != nil {
		return TransferResult{}, err
	}

	var receiver *entities.Account
	if receiverID != "" {
		loaded, err := u.Accounts.GetAccount(ctx, receiverID)
		if err != nil {
			return TransferResult{}, err
		}
		receiver = &loaded
	}

	if err := services.EvaluateTransfer(sender, recipient, receiver, amount); err != nil {
		return TransferResult{}, err
	}

	debited, err := sender.Debit(amount, now)
	if err != nil {
		return TransferResult{}, err
	}
	postings := []ports.LedgerPosting{{Account: debited, Delta: valueobjects.Zero().Sub(amount), ExpectedVersion: sender.Version}}
	if receiver != nil {
		credited, err := receiver.Credit(amount, now)
		if err != nil {
			return TransferResult{}, err
		}
		postings = append(postings, ports.LedgerPosting{Account: credited, Delta: amount, ExpectedVersion: receiver.Version})
	}

	transactionID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return TransferResult{}, err
	}
	transaction, err := entities.NewTransfer(transactionID, senderID, receiverID, recipient, amount, requestID, now)
	if err != nil {
		return TransferResult{}, err
	}

	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return TransferResult{}, err
	}
	event := ports.OutboxEvent{
		EventID:      eventID,
		EventType:    contractsv1.EventTransferCompleted,
		PartitionKey: senderID,
		Data: map[string]string{
			"transaction_id": transaction.TransactionID,
			"sender_id":      senderID,
			"receiver_id":    receiverID,
			"amount":         amount.String(),
			"currency":       valueobjects.CurrencyUSD,
		},
		OccurredAt: now,
	}

	if err := u.Transactions.CommitLedgerWrite(ctx, ports.LedgerWrite{
		Postings:    postings,
		Transaction: transaction,
		Event:       event,
	}); err != nil {
		return TransferResult{}, err
	}
	return TransferResult{Transaction: transaction, Balance: debited.Balance}, nil
}

func (u TransferUseCase) resolveInternalReceiver(ctx context.Context, recipient entities.Recipient) (string, error) {
	if !strings.EqualFold(recipient.BankName, u.homeBankName()) {
		return "", nil
	}
	account, found, err := u.Accounts.FindAccountByCoordinates(ctx, recipient.AccountNumber, recipient.TransitNumber)
	if err != nil || !found {
		return "", err
	}
	return account.UserID, nil
}

func (u TransferUseCase) replay(ctx context.Context, userID string, transactionID string) (TransferResult, error) {
	transaction, err := u.Transactions.GetTransaction(ctx, transactionID)
	if err != nil {
		return TransferResult{}, err
	}
	account, err := u.Accounts.GetAccount(ctx, userID)
	if err != nil {
		return TransferResult{}, err
	}
	return TransferResult{Transaction: transaction, Balance: account.Balance, Replayed: true}, nil
}

// lookupKey returns the transaction recorded under key. A live record with a
// different request hash is ErrIdempotencyKeyConflict.
func (u TransferUseCase) lookupKey(ctx context.Context, key string, requestHash string, now time.Time) (string, bool, error) {
	if key == "" || u.Idempotency == nil {
		return "", false, nil
	}
	record, found, err := u.Idempotency.Get(ctx, key, now)
	if err != nil || !found {
		return "", false, err
	}
	if record.RequestHash != requestHash {
		application.ResolveLogger(u.Logger).Warn("transfer idempotency conflict",
			"event", "banking_transfer_idempotency_conflict",
			"module", "finance-core/banking-service",
			"layer", "application",
			"idempotency_key", key,
		)
		return "", false, domainerrors.ErrIdempotencyKeyConflict
	}
	return record.TransactionID, true, nil
}

func (u TransferUseCase) rememberKey(ctx context.Context, key string, requestHash string, transactionID string, now time.Time) error {
	if key == "" || u.Idempotency == nil {
		return nil
	}
	return u.Idempotency.Put(ctx, ports.IdempotencyRecord{
		Key:           key,
		RequestHash:   requestHash,
		TransactionID: transactionID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(resolveTTL(u.IdempotencyTTL)),
	})
}

// resolveRequestID falls back to the idempotency key, then to a fresh id,
// so every committed transfer carries a request id unique per sender.
func (u TransferUseCase) resolveRequestID(ctx context.Context, cmd TransferCommand) (string, error) {
	if value := strings.TrimSpace(cmd.RequestID); value != "" {
		return value, nil
	}
	if value := strings.TrimSpace(cmd.IdempotencyKey); value != "" {
		return "idem:" + value, nil
	}
	id, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return "", fmt.Errorf("generate request id: %w", err)
	}
	return id, nil
}

func (u TransferUseCase) homeBankName() string {
	if strings.TrimSpace(u.HomeBankName) == "" {
		return DefaultBankName
	}
	return u.HomeBankName
}

func (u TransferUseCase) maxAttempts() int {
	if u.MaxAttempts <= 0 {
		return defaultTransferAttempts
	}
	return u.MaxAttempts
}

func (u TransferUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
