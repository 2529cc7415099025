package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"unity/contexts/finance-core/banking-service/domain/entities"
	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"
	"unity/contexts/finance-core/banking-service/ports"

	"github.com/google/uuid"
)

// Store is an in-memory adapter implementing every banking port.
// It is intended for tests and local development wiring.
type Store struct {
	mu sync.RWMutex

	accounts     map[string]entities.Account
	coordinates  map[string]string
	transactions map[string]entities.Transaction
	requestIndex map[string]string
	idempotency  map[string]ports.IdempotencyRecord
	outbox       map[string]outboxRow
	dedup        map[string]dedupEntry

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

type outboxRow struct {
	ports.OutboxMessage
	SentAt *time.Time
}

type dedupEntry struct {
	PayloadHash string
	ExpiresAt   time.Time
}

func NewStore() *Store {
	return &Store{
		accounts:     make(map[string]entities.Account),
		coordinates:  make(map[string]string),
		transactions: make(map[string]entities.Transaction),
		requestIndex: make(map[string]string),
		idempotency:  make(map[string]ports.IdempotencyRecord),
		outbox:       make(map[string]outboxRow),
		dedup:        make(map[string]dedupEntry),
		locks:        make(map[string]chan struct{}),
	}
}

func (s *Store) GetAccount(_ context.Context, userID string) (entities.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[userID]
	if !ok {
		return entities.Account{}, domainerrors.ErrAccountNotFound
	}
	return account, nil
}

func (s *Store) FindAccountByCoordinates(_ context.Context, accountNumber string, transitNumber string) (entities.Account, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.coordinates[coordinateKey(accountNumber, transitNumber)]
	if !ok {
		return entities.Account{}, false, nil
	}
	return s.accounts[userID], true, nil
}

func (s *Store) CreateAccountWithOutbox(_ context.Context, account entities.Account, event ports.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.UserID]; exists {
		return domainerrors.ErrAccountAlreadyOpen
	}
	key := coordinateKey(account.AccountNumber, account.TransitNumber)
	if _, exists := s.coordinates[key]; exists {
		return domainerrors.ErrAccountAlreadyOpen
	}
	if err := s.appendOutbox(event); err != nil {
		return err
	}
	s.accounts[account.UserID] = account
	s.coordinates[key] = account.UserID
	return nil
}

// CommitLedgerWrite validates every posting before applying any of them, so
// a rejected write leaves no partial state behind.
func (s *Store) CommitLedgerWrite(_ context.Context, write ports.LedgerWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(write.Postings) == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	for _, posting := range write.Postings {
		stored, ok := s.accounts[posting.Account.UserID]
		if !ok {
			return domainerrors.ErrAccountNotFound
		}
		if stored.Version != posting.ExpectedVersion {
			return domainerrors.ErrConcurrentUpdate
		}
		next := stored.Balance.Add(posting.Delta)
		if next.IsNegative() {
			return domainerrors.ErrInsufficientFunds
		}
		if !next.Equal(posting.Account.Balance) {
			return domainerrors.ErrRepositoryInvariantBroke
		}
	}

	transaction := write.Transaction
	if _, exists := s.transactions[transaction.TransactionID]; exists {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	requestKey := requestIndexKey(transaction.OwnerID(), transaction.RequestID)
	if _, exists := s.requestIndex[requestKey]; exists {
		return domainerrors.ErrDuplicateRequestID
	}
	if err := s.appendOutbox(write.Event); err != nil {
		return err
	}

	for _, posting := range write.Postings {
		s.accounts[posting.Account.UserID] = posting.Account
	}
	s.transactions[transaction.TransactionID] = transaction
	s.requestIndex[requestKey] = transaction.TransactionID
	return nil
}

func (s *Store) GetTransaction(_ context.Context, transactionID string) (entities.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transaction, ok := s.transactions[transactionID]
	if !ok {
		return entities.Transaction{}, domainerrors.ErrTransactionNotFound
	}
	return transaction, nil
}

func (s *Store) GetTransactionByRequestID(_ context.Context, userID string, requestID string) (entities.Transaction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transactionID, ok := s.requestIndex[requestIndexKey(userID, requestID)]
	if !ok {
		return entities.Transaction{}, false, nil
	}
	return s.transactions[transactionID], true, nil
}

func (s *Store) ListTransactionsByUser(_ context.Context, userID string, limit int) ([]entities.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.Transaction, 0)
	for _, transaction := range s.transactions {
		if transaction.Involves(userID) {
			items = append(items, transaction)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].TransactionID > items[j].TransactionID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.idempotency[key]
	if !ok || !record.ExpiresAt.After(now) {
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) Put(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.idempotency[record.Key]; ok && existing.ExpiresAt.After(record.RecordedAt()) {
		if existing.RequestHash != record.RequestHash {
			return domainerrors.ErrIdempotencyKeyConflict
		}
		return nil
	}
	s.idempotency[record.Key] = record
	return nil
}

// WithAccountLock takes one lock per account in sorted order. Waiting stops
// when ctx is done.
func (s *Store) WithAccountLock(ctx context.Context, userIDs []string, fn func(context.Context) error) error {
	keys := sortedUnique(userIDs)
	held := make([]chan struct{}, 0, len(keys))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}()
	for _, key := range keys {
		lock := s.accountLock(key)
		select {
		case lock <- struct{}{}:
			held = append(held, lock)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fn(ctx)
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.SentAt == nil {
			rows = append(rows, row.OutboxMessage)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *Store) MarkOutboxSent(_ context.Context, outboxID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.outbox[outboxID]
	if !ok {
		return errors.New("outbox record not found")
	}
	value := sentAt.UTC()
	row.SentAt = &value
	s.outbox[outboxID] = row
	return nil
}

func (s *Store) ReserveEvent(_ context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.dedup[eventID]
	if !ok || existing.ExpiresAt.Before(time.Now().UTC()) {
		s.dedup[eventID] = dedupEntry{
			PayloadHash: payloadHash,
			ExpiresAt:   expiresAt.UTC(),
		}
		return false, nil
	}
	if existing.PayloadHash != payloadHash {
		return false, domainerrors.ErrIdempotencyKeyConflict
	}
	return true, nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) appendOutbox(event ports.OutboxEvent) error {
	if _, exists := s.outbox[event.EventID]; exists {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	envelope, err := event.Envelope()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	s.outbox[event.EventID] = outboxRow{
		OutboxMessage: ports.OutboxMessage{
			OutboxID:     event.EventID,
			EventType:    event.EventType,
			PartitionKey: event.PartitionKey,
			Payload:      payload,
			CreatedAt:    event.OccurredAt.UTC(),
		},
	}
	return nil
}

func (s *Store) accountLock(userID string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.locks[userID]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[userID] = lock
	}
	return lock
}

func coordinateKey(accountNumber string, transitNumber string) string {
	return entities.NormalizeAccountNumber(accountNumber) + "|" + entities.NormalizeAccountNumber(transitNumber)
}

func requestIndexKey(userID string, requestID string) string {
	return userID + "|" + requestID
}

func sortedUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
