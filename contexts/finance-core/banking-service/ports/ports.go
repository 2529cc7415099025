package ports

import (
	"context"
	"time"

	contractsv1 "unity/contracts/gen/events/v1"
	"unity/contexts/finance-core/banking-service/domain/entities"
	"unity/contexts/finance-core/banking-service/domain/valueobjects"
)

// AccountRepository owns account reads and the account-opening write boundary.
type AccountRepository interface {
	GetAccount(ctx context.Context, userID string) (entities.Account, error)
	// FindAccountByCoordinates returns false when no internal account matches.
	FindAccountByCoordinates(ctx context.Context, accountNumber string, transitNumber string) (entities.Account, bool, error)
	// CreateAccountWithOutbox must atomically persist the account and account.opened event.
	CreateAccountWithOutbox(ctx context.Context, account entities.Account, event OutboxEvent) error
}

// LedgerPosting is one balance change committed with a transaction record.
// Account carries the post-image; Delta is the signed change applied to the
// stored balance. ExpectedVersion guards against lost updates and a negative
// Delta additionally requires the stored balance to cover it.
type LedgerPosting struct {
	Account         entities.Account
	Delta           valueobjects.Money
	ExpectedVersion int64
}

// LedgerWrite is the unit committed atomically by the repository: every
// posting, the transaction record, and the outbox event, or none of them.
type LedgerWrite struct {
	Postings    []LedgerPosting
	Transaction entities.Transaction
	Event       OutboxEvent
}

// TransactionRepository owns the ledger write boundary and history reads.
type TransactionRepository interface {
	// CommitLedgerWrite fails with ErrConcurrentUpdate when any posting's
	// version moved, and with ErrInsufficientFunds when a debit would make a
	// stored balance negative.
	CommitLedgerWrite(ctx context.Context, write LedgerWrite) error
	GetTransaction(ctx context.Context, transactionID string) (entities.Transaction, error)
	GetTransactionByRequestID(ctx context.Context, userID string, requestID string) (entities.Transaction, bool, error)
	// ListTransactionsByUser returns rows where userID is sender or receiver, newest first.
	ListTransactionsByUser(ctx context.Context, userID string, limit int) ([]entities.Transaction, error)
}

// OutboxEvent is an integration event persisted with the state change.
type OutboxEvent struct {
	EventID      string
	EventType    string
	PartitionKey string
	Data         map[string]string
	OccurredAt   time.Time
}

// IdempotencyRecord captures dedupe metadata for mutating requests. Key is
// already scoped to its owner. A stored record that has expired by CreatedAt
// is replaced on Put.
type IdempotencyRecord struct {
	Key           string
	RequestHash   string
	TransactionID string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// RecordedAt is the time Put compares stored expiries against.
func (r IdempotencyRecord) RecordedAt() time.Time {
	if r.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return r.CreatedAt.UTC()
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	// Put fails with ErrIdempotencyKeyConflict when a live record holds the
	// key with a different request hash.
	Put(ctx context.Context, record IdempotencyRecord) error
}

// AccountLocker serializes balance-changing workflows per account across
// API replicas.
type AccountLocker interface {
	WithAccountLock(ctx context.Context, userIDs []string, fn func(context.Context) error) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// OutboxMessage is a row ready to relay from the module outbox.
type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error
}

// EventDedupStore provides idempotent processing guarantees for consumed events.
type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
}

type EventEnvelope = contractsv1.Envelope

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}
