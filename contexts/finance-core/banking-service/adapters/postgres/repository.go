package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"unity/contexts/finance-core/banking-service/domain/entities"
	domainerrors "unity/contexts/finance-core/banking-service/domain/errors"
	"unity/contexts/finance-core/banking-service/domain/valueobjects"
	"unity/contexts/finance-core/banking-service/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates or updates the banking tables.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(
		&accountModel{},
		&transactionModel{},
		&outboxModel{},
		&idempotencyModel{},
		&eventDedupModel{},
	)
}

func (r *Repository) GetAccount(ctx context.Context, userID string) (entities.Account, error) {
	var row accountModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Account{}, domainerrors.ErrAccountNotFound
		}
		return entities.Account{}, r.logError("banking_repo_get_account_failed", err,
			"user_id", strings.TrimSpace(userID),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) FindAccountByCoordinates(
	ctx context.Context,
	accountNumber string,
	transitNumber string,
) (entities.Account, bool, error) {
	var row accountModel
	err := r.db.WithContext(ctx).
		Where("account_number = ?", entities.NormalizeAccountNumber(accountNumber)).
		Where("transit_number = ?", entities.NormalizeAccountNumber(transitNumber)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Account{}, false, nil
		}
		return entities.Account{}, false, r.logError("banking_repo_find_account_by_coordinates_failed", err)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) CreateAccountWithOutbox(ctx context.Context, account entities.Account, event ports.OutboxEvent) error {
	outbox, err := outboxModelFromEvent(event)
	if err != nil {
		return err
	}
	row := accountModelFromEntity(account)
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Create(&outbox).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			r.logWarn("banking_repo_create_account_conflict",
				"user_id", account.UserID,
			)
			return domainerrors.ErrAccountAlreadyOpen
		}
		return r.logError("banking_repo_create_account_failed", err,
			"user_id", account.UserID,
		)
	}
	return nil
}

// CommitLedgerWrite applies every posting as a conditional increment. A
// posting whose row did not match is re-read to tell a version race from an
// overdraft. Postings are applied in user id order so two transfers between
// the same pair of accounts take row locks in the same order.
func (r *Repository) CommitLedgerWrite(ctx context.Context, write ports.LedgerWrite) error {
	if len(write.Postings) == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	outbox, err := outboxModelFromEvent(write.Event)
	if err != nil {
		return err
	}
	transaction := transactionModelFromEntity(write.Transaction)

	postings := append([]ports.LedgerPosting(nil), write.Postings...)
	sort.Slice(postings, func(i, j int) bool {
		return postings[i].Account.UserID < postings[j].Account.UserID
	})

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, posting := range postings {
			if err := applyPosting(tx, posting); err != nil {
				return err
			}
		}
		if err := tx.Create(&transaction).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrDuplicateRequestID
			}
			return err
		}
		return tx.Create(&outbox).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, domainerrors.ErrConcurrentUpdate),
			errors.Is(err, domainerrors.ErrInsufficientFunds),
			errors.Is(err, domainerrors.ErrDuplicateRequestID),
			errors.Is(err, domainerrors.ErrAccountNotFound):
			r.logWarn("banking_repo_commit_ledger_rejected",
				"transaction_id", write.Transaction.TransactionID,
				"reason", err.Error(),
			)
			return err
		default:
			return r.logError("banking_repo_commit_ledger_failed", err,
				"transaction_id", write.Transaction.TransactionID,
			)
		}
	}
	return nil
}

func applyPosting(tx *gorm.DB, posting ports.LedgerPosting) error {
	result := postingUpdate(tx, posting)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var current accountModel
	err := tx.Where("user_id = ?", posting.Account.UserID).First(&current).Error
	return missedPosting(current, err, posting)
}

// postingUpdate adds the delta only while the stored version matches; a
// debit additionally requires the stored balance to cover it.
func postingUpdate(tx *gorm.DB, posting ports.LedgerPosting) *gorm.DB {
	delta := posting.Delta.Decimal()
	query := tx.Model(&accountModel{}).
		Where("user_id = ?", posting.Account.UserID).
		Where("version = ?", posting.ExpectedVersion)
	if delta.IsNegative() {
		query = query.Where("balance >= ?", delta.Neg())
	}
	return query.Updates(map[string]any{
		"balance":    gorm.Expr("balance + ?", delta),
		"version":    posting.Account.Version,
		"updated_at": posting.Account.UpdatedAt.UTC(),
	})
}

// missedPosting explains an update that matched no row from the re-read row.
func missedPosting(current accountModel, loadErr error, posting ports.LedgerPosting) error {
	if loadErr != nil {
		if errors.Is(loadErr, gorm.ErrRecordNotFound) {
			return domainerrors.ErrAccountNotFound
		}
		return loadErr
	}
	if current.Version != posting.ExpectedVersion {
		return domainerrors.ErrConcurrentUpdate
	}
	return domainerrors.ErrInsufficientFunds
}

func (r *Repository) GetTransaction(ctx context.Context, transactionID string) (entities.Transaction, error) {
	var row transactionModel
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", strings.TrimSpace(transactionID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Transaction{}, domainerrors.ErrTransactionNotFound
		}
		return entities.Transaction{}, r.logError("banking_repo_get_transaction_failed", err,
			"transaction_id", strings.TrimSpace(transactionID),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) GetTransactionByRequestID(
	ctx context.Context,
	userID string,
	requestID string,
) (entities.Transaction, bool, error) {
	var row transactionModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", strings.TrimSpace(userID)).
		Where("request_id = ?", strings.TrimSpace(requestID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Transaction{}, false, nil
		}
		return entities.Transaction{}, false, r.logError("banking_repo_get_transaction_by_request_failed", err,
			"user_id", strings.TrimSpace(userID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListTransactionsByUser(ctx context.Context, userID string, limit int) ([]entities.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	userID = strings.TrimSpace(userID)
	var rows []transactionModel
	if err := r.db.WithContext(ctx).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at DESC").
		Order("transaction_id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("banking_repo_list_transactions_failed", err,
			"user_id", userID,
		)
	}
	items := make([]entities.Transaction, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", strings.TrimSpace(key)).
		Where("expires_at > ?", now.UTC()).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, r.logError("banking_repo_get_idempotency_failed", err,
			"idempotency_key", strings.TrimSpace(key),
		)
	}
	return ports.IdempotencyRecord{
		Key:           row.Key,
		RequestHash:   row.RequestHash,
		TransactionID: row.TransactionID,
		ExpiresAt:     row.ExpiresAt.UTC(),
	}, true, nil
}

// Put inserts the record, taking over a row whose expiry has passed. A live
// row with the same hash is a replay; a different hash is a conflict.
func (r *Repository) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModel{
		Key:           strings.TrimSpace(record.Key),
		RequestHash:   record.RequestHash,
		TransactionID: record.TransactionID,
		ExpiresAt:     record.ExpiresAt.UTC(),
	}
	result := putIdempotency(r.db.WithContext(ctx), row, record.RecordedAt())
	if result.Error != nil {
		return r.logError("banking_repo_put_idempotency_failed", result.Error,
			"idempotency_key", row.Key,
		)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var existing idempotencyModel
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", row.Key).First(&existing).Error; err != nil {
		return r.logError("banking_repo_load_idempotency_failed", err,
			"idempotency_key", row.Key,
		)
	}
	if existing.RequestHash != row.RequestHash {
		return domainerrors.ErrIdempotencyKeyConflict
	}
	return nil
}

func putIdempotency(db *gorm.DB, row idempotencyModel, now time.Time) *gorm.DB {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"request_hash", "transaction_id", "expires_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "banking_idempotency.expires_at <= ?", Vars: []any{now.UTC()}},
		}},
	}).Create(&row)
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("banking_repo_list_pending_outbox_failed", err,
			"limit", limit,
		)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":  outboxStatusSent,
			"sent_at": sentAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("banking_repo_mark_outbox_sent_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		r.logWarn("banking_repo_mark_outbox_sent_not_found",
			"outbox_id", strings.TrimSpace(outboxID),
		)
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return nil
}

func (r *Repository) ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error) {
	row := eventDedupModel{
		EventID:     strings.TrimSpace(eventID),
		PayloadHash: payloadHash,
		ExpiresAt:   expiresAt.UTC(),
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true, Columns: []clause.Column{{Name: "event_id"}}}).
		Create(&row)
	if result.Error != nil {
		return false, r.logError("banking_repo_reserve_event_failed", result.Error,
			"event_id", row.EventID,
		)
	}
	if result.RowsAffected > 0 {
		return false, nil
	}

	var existing eventDedupModel
	if err := r.db.WithContext(ctx).Where("event_id = ?", row.EventID).First(&existing).Error; err != nil {
		return false, r.logError("banking_repo_load_event_dedup_failed", err,
			"event_id", row.EventID,
		)
	}
	if existing.PayloadHash != payloadHash {
		return false, domainerrors.ErrIdempotencyKeyConflict
	}
	return true, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "finance-core/banking-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("banking repository operation failed", fields...)
	return err
}

func (r *Repository) logWarn(event string, attrs ...any) {
	fields := make([]any, 0, len(attrs)+6)
	fields = append(fields,
		"event", event,
		"module", "finance-core/banking-service",
		"layer", "adapter",
	)
	fields = append(fields, attrs...)
	r.logger.Warn("banking repository warning", fields...)
}

type accountModel struct {
	UserID         string          `gorm:"column:user_id;primaryKey"`
	Name           string          `gorm:"column:name"`
	Email          string          `gorm:"column:email"`
	AccountNumber  string          `gorm:"column:account_number;uniqueIndex:ux_banking_accounts_coordinates"`
	TransitNumber  string          `gorm:"column:transit_number;uniqueIndex:ux_banking_accounts_coordinates"`
	BankName       string          `gorm:"column:bank_name"`
	Balance        decimal.Decimal `gorm:"column:balance;type:numeric(20,2);not null;check:balance >= 0"`
	CardNumber     string          `gorm:"column:card_number"`
	CardExpiryDate string          `gorm:"column:card_expiry_date"`
	CardCVV        string          `gorm:"column:card_cvv"`
	CardBrand      string          `gorm:"column:card_brand"`
	Version        int64           `gorm:"column:version;not null"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at"`
}

func (accountModel) TableName() string {
	return "banking_accounts"
}

func accountModelFromEntity(account entities.Account) accountModel {
	return accountModel{
		UserID:         account.UserID,
		Name:           account.Name,
		Email:          account.Email,
		AccountNumber:  account.AccountNumber,
		TransitNumber:  account.TransitNumber,
		BankName:       account.BankName,
		Balance:        account.Balance.Decimal(),
		CardNumber:     account.Card.Number,
		CardExpiryDate: account.Card.ExpiryDate,
		CardCVV:        account.Card.CVV,
		CardBrand:      string(account.Card.Brand),
		Version:        account.Version,
		CreatedAt:      account.CreatedAt.UTC(),
		UpdatedAt:      account.UpdatedAt.UTC(),
	}
}

func (m accountModel) toEntity() entities.Account {
	balance, _ := valueobjects.NewMoney(m.Balance)
	return entities.Account{
		UserID:        m.UserID,
		Name:          m.Name,
		Email:         m.Email,
		AccountNumber: m.AccountNumber,
		TransitNumber: m.TransitNumber,
		BankName:      m.BankName,
		Balance:       balance,
		Card: entities.VirtualCard{
			Number:     m.CardNumber,
			ExpiryDate: m.CardExpiryDate,
			CVV:        m.CardCVV,
			Brand:      entities.CardBrand(m.CardBrand),
		},
		Version:   m.Version,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

type transactionModel struct {
	TransactionID   string          `gorm:"column:transaction_id;primaryKey"`
	OwnerID         string          `gorm:"column:owner_id;uniqueIndex:ux_banking_transactions_request"`
	RequestID       string          `gorm:"column:request_id;uniqueIndex:ux_banking_transactions_request"`
	SenderID        string          `gorm:"column:sender_id;index"`
	ReceiverID      string          `gorm:"column:receiver_id;index"`
	ReceiverName    string          `gorm:"column:receiver_name"`
	ReceiverAccount string          `gorm:"column:receiver_account"`
	ReceiverTransit string          `gorm:"column:receiver_transit"`
	ReceiverBank    string          `gorm:"column:receiver_bank"`
	Amount          decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null"`
	Type            string          `gorm:"column:type"`
	Status          string          `gorm:"column:status"`
	Reference       string          `gorm:"column:reference"`
	CreatedAt       time.Time       `gorm:"column:created_at;index"`
}

func (transactionModel) TableName() string {
	return "banking_transactions"
}

func transactionModelFromEntity(transaction entities.Transaction) transactionModel {
	return transactionModel{
		TransactionID:   transaction.TransactionID,
		OwnerID:         transaction.OwnerID(),
		RequestID:       transaction.RequestID,
		SenderID:        transaction.SenderID,
		ReceiverID:      transaction.ReceiverID,
		ReceiverName:    transaction.Recipient.Name,
		ReceiverAccount: transaction.Recipient.AccountNumber,
		ReceiverTransit: transaction.Recipient.TransitNumber,
		ReceiverBank:    transaction.Recipient.BankName,
		Amount:          transaction.Amount.Decimal(),
		Type:            string(transaction.Type),
		Status:          string(transaction.Status),
		Reference:       transaction.Reference,
		CreatedAt:       transaction.CreatedAt.UTC(),
	}
}

func (m transactionModel) toEntity() entities.Transaction {
	amount, _ := valueobjects.NewMoney(m.Amount)
	return entities.Transaction{
		TransactionID: m.TransactionID,
		SenderID:      m.SenderID,
		ReceiverID:    m.ReceiverID,
		Recipient: entities.Recipient{
			Name:          m.ReceiverName,
			AccountNumber: m.ReceiverAccount,
			TransitNumber: m.ReceiverTransit,
			BankName:      m.ReceiverBank,
		},
		Amount:    amount,
		Type:      entities.TransactionType(m.Type),
		Status:    entities.TransactionStatus(m.Status),
		RequestID: m.RequestID,
		Reference: m.Reference,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload;type:jsonb"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	SentAt       *time.Time `gorm:"column:sent_at"`
}

func (outboxModel) TableName() string {
	return "banking_outbox"
}

func outboxModelFromEvent(event ports.OutboxEvent) (outboxModel, error) {
	envelope, err := event.Envelope()
	if err != nil {
		return outboxModel{}, err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return outboxModel{}, err
	}
	return outboxModel{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    event.OccurredAt.UTC(),
	}, nil
}

type idempotencyModel struct {
	Key           string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash   string    `gorm:"column:request_hash"`
	TransactionID string    `gorm:"column:transaction_id"`
	ExpiresAt     time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "banking_idempotency"
}

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (eventDedupModel) TableName() string {
	return "banking_event_dedup"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.AccountRepository = (*Repository)(nil)
var _ ports.TransactionRepository = (*Repository)(nil)
var _ ports.IdempotencyStore = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
var _ ports.EventDedupStore = (*Repository)(nil)
