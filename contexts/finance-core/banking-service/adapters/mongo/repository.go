package mongoadapter

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

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	accountsCollection     = "banking_accounts"
	transactionsCollection = "banking_transactions"
	outboxCollection       = "banking_outbox"
	idempotencyCollection  = "banking_idempotency"
	dedupCollection        = "banking_event_dedup"

	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
)

// Repository stores balances as integer cents so a debit can be expressed
// as a single conditional $inc. Ledger writes need a replica set because they
// run inside a multi-document transaction.
type Repository struct {
	db     *mongo.Database
	logger *slog.Logger
}

func NewRepository(db *mongo.Database, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

// Indexes lists the indexes each collection needs, keyed by collection name.
func Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		accountsCollection: {
			{
				Keys:    bson.D{{Key: "account_number", Value: 1}, {Key: "transit_number", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("ux_banking_accounts_coordinates"),
			},
		},
		transactionsCollection: {
			{
				Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "request_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("ux_banking_transactions_request"),
			},
			{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		outboxCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		idempotencyCollection: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
		dedupCollection: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
	}
}

func (r *Repository) GetAccount(ctx context.Context, userID string) (entities.Account, error) {
	var doc accountDocument
	err := r.db.Collection(accountsCollection).
		FindOne(ctx, bson.M{"_id": strings.TrimSpace(userID)}).
		Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return entities.Account{}, domainerrors.ErrAccountNotFound
		}
		return entities.Account{}, r.logError("banking_mongo_get_account_failed", err,
			"user_id", strings.TrimSpace(userID),
		)
	}
	return doc.toEntity(), nil
}

func (r *Repository) FindAccountByCoordinates(
	ctx context.Context,
	accountNumber string,
	transitNumber string,
) (entities.Account, bool, error) {
	var doc accountDocument
	err := r.db.Collection(accountsCollection).
		FindOne(ctx, bson.M{
			"account_number": entities.NormalizeAccountNumber(accountNumber),
			"transit_number": entities.NormalizeAccountNumber(transitNumber),
		}).
		Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return entities.Account{}, false, nil
		}
		return entities.Account{}, false, r.logError("banking_mongo_find_account_by_coordinates_failed", err)
	}
	return doc.toEntity(), true, nil
}

func (r *Repository) CreateAccountWithOutbox(ctx context.Context, account entities.Account, event ports.OutboxEvent) error {
	outbox, err := outboxDocumentFromEvent(event)
	if err != nil {
		return err
	}
	err = r.inTransaction(ctx, func(sc mongo.SessionContext) error {
		if _, err := r.db.Collection(accountsCollection).InsertOne(sc, accountDocumentFromEntity(account)); err != nil {
			return err
		}
		_, err := r.db.Collection(outboxCollection).InsertOne(sc, outbox)
		return err
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			r.logWarn("banking_mongo_create_account_conflict", "user_id", account.UserID)
			return domainerrors.ErrAccountAlreadyOpen
		}
		return r.logError("banking_mongo_create_account_failed", err, "user_id", account.UserID)
	}
	return nil
}

func (r *Repository) CommitLedgerWrite(ctx context.Context, write ports.LedgerWrite) error {
	if len(write.Postings) == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	outbox, err := outboxDocumentFromEvent(write.Event)
	if err != nil {
		return err
	}
	transaction := transactionDocumentFromEntity(write.Transaction)

	postings := append([]ports.LedgerPosting(nil), write.Postings...)
	sort.Slice(postings, func(i, j int) bool {
		return postings[i].Account.UserID < postings[j].Account.UserID
	})

	err = r.inTransaction(ctx, func(sc mongo.SessionContext) error {
		for _, posting := range postings {
			if err := r.applyPosting(sc, posting); err != nil {
				return err
			}
		}
		if _, err := r.db.Collection(transactionsCollection).InsertOne(sc, transaction); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return domainerrors.ErrDuplicateRequestID
			}
			return err
		}
		_, err := r.db.Collection(outboxCollection).InsertOne(sc, outbox)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, domainerrors.ErrConcurrentUpdate),
			errors.Is(err, domainerrors.ErrInsufficientFunds),
			errors.Is(err, domainerrors.ErrDuplicateRequestID),
			errors.Is(err, domainerrors.ErrAccountNotFound):
			r.logWarn("banking_mongo_commit_ledger_rejected",
				"transaction_id", write.Transaction.TransactionID,
				"reason", err.Error(),
			)
			return err
		default:
			return r.logError("banking_mongo_commit_ledger_failed", err,
				"transaction_id", write.Transaction.TransactionID,
			)
		}
	}
	return nil
}

func (r *Repository) applyPosting(sc mongo.SessionContext, posting ports.LedgerPosting) error {
	delta := posting.Delta.Cents()
	filter := bson.M{
		"_id":     posting.Account.UserID,
		"version": posting.ExpectedVersion,
	}
	if delta < 0 {
		filter["balance_cents"] = bson.M{"$gte": -delta}
	}
	update := bson.M{
		"$inc": bson.M{"balance_cents": delta},
		"$set": bson.M{
			"version":    posting.Account.Version,
			"updated_at": posting.Account.UpdatedAt.UTC(),
		},
	}
	result, err := r.db.Collection(accountsCollection).UpdateOne(sc, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 1 {
		return nil
	}

	var current accountDocument
	if err := r.db.Collection(accountsCollection).FindOne(sc, bson.M{"_id": posting.Account.UserID}).Decode(&current); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domainerrors.ErrAccountNotFound
		}
		return err
	}
	if current.Version != posting.ExpectedVersion {
		return domainerrors.ErrConcurrentUpdate
	}
	return domainerrors.ErrInsufficientFunds
}

func (r *Repository) GetTransaction(ctx context.Context, transactionID string) (entities.Transaction, error) {
	var doc transactionDocument
	err := r.db.Collection(transactionsCollection).
		FindOne(ctx, bson.M{"_id": strings.TrimSpace(transactionID)}).
		Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return entities.Transaction{}, domainerrors.ErrTransactionNotFound
		}
		return entities.Transaction{}, r.logError("banking_mongo_get_transaction_failed", err,
			"transaction_id", strings.TrimSpace(transactionID),
		)
	}
	return doc.toEntity(), nil
}

func (r *Repository) GetTransactionByRequestID(
	ctx context.Context,
	userID string,
	requestID string,
) (entities.Transaction, bool, error) {
	var doc transactionDocument
	err := r.db.Collection(transactionsCollection).
		FindOne(ctx, bson.M{
			"owner_id":   strings.TrimSpace(userID),
			"request_id": strings.TrimSpace(requestID),
		}).
		Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return entities.Transaction{}, false, nil
		}
		return entities.Transaction{}, false, r.logError("banking_mongo_get_transaction_by_request_failed", err,
			"user_id", strings.TrimSpace(userID),
		)
	}
	return doc.toEntity(), true, nil
}

func (r *Repository) ListTransactionsByUser(ctx context.Context, userID string, limit int) ([]entities.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	userID = strings.TrimSpace(userID)
	cursor, err := r.db.Collection(transactionsCollection).Find(ctx,
		bson.M{"$or": bson.A{
			bson.M{"sender_id": userID},
			bson.M{"receiver_id": userID},
		}},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, r.logError("banking_mongo_list_transactions_failed", err, "user_id", userID)
	}
	var docs []transactionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, r.logError("banking_mongo_decode_transactions_failed", err, "user_id", userID)
	}
	items := make([]entities.Transaction, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.toEntity())
	}
	return items, nil
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var doc idempotencyDocument
	err := r.db.Collection(idempotencyCollection).
		FindOne(ctx, bson.M{"_id": strings.TrimSpace(key), "expires_at": bson.M{"$gt": now.UTC()}}).
		Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, r.logError("banking_mongo_get_idempotency_failed", err,
			"idempotency_key", strings.TrimSpace(key),
		)
	}
	return ports.IdempotencyRecord{
		Key:           doc.Key,
		RequestHash:   doc.RequestHash,
		TransactionID: doc.TransactionID,
		ExpiresAt:     doc.ExpiresAt.UTC(),
	}, true, nil
}

func (r *Repository) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	doc := idempotencyDocument{
		Key:           strings.TrimSpace(record.Key),
		RequestHash:   record.RequestHash,
		TransactionID: record.TransactionID,
		ExpiresAt:     record.ExpiresAt.UTC(),
	}
	_, err := r.db.Collection(idempotencyCollection).InsertOne(ctx, doc)
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return r.logError("banking_mongo_put_idempotency_failed", err, "idempotency_key", doc.Key)
	}

	// The TTL monitor deletes lazily, so an expired document may still hold the key.
	replaced, err := r.db.Collection(idempotencyCollection).ReplaceOne(ctx,
		bson.M{"_id": doc.Key, "expires_at": bson.M{"$lte": record.RecordedAt()}},
		doc,
	)
	if err != nil {
		return r.logError("banking_mongo_replace_idempotency_failed", err, "idempotency_key", doc.Key)
	}
	if replaced.MatchedCount == 1 {
		return nil
	}

	var existing idempotencyDocument
	if err := r.db.Collection(idempotencyCollection).FindOne(ctx, bson.M{"_id": doc.Key}).Decode(&existing); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if _, err := r.db.Collection(idempotencyCollection).InsertOne(ctx, doc); err != nil && !mongo.IsDuplicateKeyError(err) {
				return r.logError("banking_mongo_put_idempotency_failed", err, "idempotency_key", doc.Key)
			}
			return nil
		}
		return r.logError("banking_mongo_load_idempotency_failed", err, "idempotency_key", doc.Key)
	}
	if existing.RequestHash != doc.RequestHash {
		return domainerrors.ErrIdempotencyKeyConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	cursor, err := r.db.Collection(outboxCollection).Find(ctx,
		bson.M{"status": outboxStatusPending},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, r.logError("banking_mongo_list_pending_outbox_failed", err, "limit", limit)
	}
	var docs []outboxDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, r.logError("banking_mongo_decode_outbox_failed", err)
	}
	items := make([]ports.OutboxMessage, 0, len(docs))
	for _, doc := range docs {
		items = append(items, ports.OutboxMessage{
			OutboxID:     doc.OutboxID,
			EventType:    doc.EventType,
			PartitionKey: doc.PartitionKey,
			Payload:      append([]byte(nil), doc.Payload...),
			CreatedAt:    doc.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	result, err := r.db.Collection(outboxCollection).UpdateOne(ctx,
		bson.M{"_id": strings.TrimSpace(outboxID)},
		bson.M{"$set": bson.M{"status": outboxStatusSent, "sent_at": sentAt.UTC()}},
	)
	if err != nil {
		return r.logError("banking_mongo_mark_outbox_sent_failed", err, "outbox_id", strings.TrimSpace(outboxID))
	}
	if result.MatchedCount == 0 {
		r.logWarn("banking_mongo_mark_outbox_sent_not_found", "outbox_id", strings.TrimSpace(outboxID))
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return nil
}

func (r *Repository) ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error) {
	doc := dedupDocument{
		EventID:     strings.TrimSpace(eventID),
		PayloadHash: payloadHash,
		ExpiresAt:   expiresAt.UTC(),
	}
	_, err := r.db.Collection(dedupCollection).InsertOne(ctx, doc)
	if err == nil {
		return false, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, r.logError("banking_mongo_reserve_event_failed", err, "event_id", doc.EventID)
	}
	var existing dedupDocument
	if err := r.db.Collection(dedupCollection).FindOne(ctx, bson.M{"_id": doc.EventID}).Decode(&existing); err != nil {
		return false, r.logError("banking_mongo_load_event_dedup_failed", err, "event_id", doc.EventID)
	}
	if existing.PayloadHash != payloadHash {
		return false, domainerrors.ErrIdempotencyKeyConflict
	}
	return true, nil
}

func (r *Repository) inTransaction(ctx context.Context, fn func(mongo.SessionContext) error) error {
	session, err := r.db.Client().StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
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
	r.logger.Error("banking mongo operation failed", fields...)
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
	r.logger.Warn("banking mongo warning", fields...)
}

type accountDocument struct {
	UserID         string    `bson:"_id"`
	Name           string    `bson:"name"`
	Email          string    `bson:"email"`
	AccountNumber  string    `bson:"account_number"`
	TransitNumber  string    `bson:"transit_number"`
	BankName       string    `bson:"bank_name"`
	BalanceCents   int64     `bson:"balance_cents"`
	CardNumber     string    `bson:"card_number"`
	CardExpiryDate string    `bson:"card_expiry_date"`
	CardCVV        string    `bson:"card_cvv"`
	CardBrand      string    `bson:"card_brand"`
	Version        int64     `bson:"version"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func accountDocumentFromEntity(account entities.Account) accountDocument {
	return accountDocument{
		UserID:         account.UserID,
		Name:           account.Name,
		Email:          account.Email,
		AccountNumber:  account.AccountNumber,
		TransitNumber:  account.TransitNumber,
		BankName:       account.BankName,
		BalanceCents:   account.Balance.Cents(),
		CardNumber:     account.Card.Number,
		CardExpiryDate: account.Card.ExpiryDate,
		CardCVV:        account.Card.CVV,
		CardBrand:      string(account.Card.Brand),
		Version:        account.Version,
		CreatedAt:      account.CreatedAt.UTC(),
		UpdatedAt:      account.UpdatedAt.UTC(),
	}
}

func (d accountDocument) toEntity() entities.Account {
	return entities.Account{
		UserID:        d.UserID,
		Name:          d.Name,
		Email:         d.Email,
		AccountNumber: d.AccountNumber,
		TransitNumber: d.TransitNumber,
		BankName:      d.BankName,
		Balance:       valueobjects.MoneyFromCents(d.BalanceCents),
		Card: entities.VirtualCard{
			Number:     d.CardNumber,
			ExpiryDate: d.CardExpiryDate,
			CVV:        d.CardCVV,
			Brand:      entities.CardBrand(d.CardBrand),
		},
		Version:   d.Version,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

type transactionDocument struct {
	TransactionID   string    `bson:"_id"`
	OwnerID         string    `bson:"owner_id"`
	RequestID       string    `bson:"request_id"`
	SenderID        string    `bson:"sender_id"`
	ReceiverID      string    `bson:"receiver_id"`
	ReceiverName    string    `bson:"receiver_name"`
	ReceiverAccount string    `bson:"receiver_account"`
	ReceiverTransit string    `bson:"receiver_transit"`
	ReceiverBank    string    `bson:"receiver_bank"`
	AmountCents     int64     `bson:"amount_cents"`
	Type            string    `bson:"type"`
	Status          string    `bson:"status"`
	Reference       string    `bson:"reference,omitempty"`
	CreatedAt       time.Time `bson:"created_at"`
}

func transactionDocumentFromEntity(transaction entities.Transaction) transactionDocument {
	return transactionDocument{
		TransactionID:   transaction.TransactionID,
		OwnerID:         transaction.OwnerID(),
		RequestID:       transaction.RequestID,
		SenderID:        transaction.SenderID,
		ReceiverID:      transaction.ReceiverID,
		ReceiverName:    transaction.Recipient.Name,
		ReceiverAccount: transaction.Recipient.AccountNumber,
		ReceiverTransit: transaction.Recipient.TransitNumber,
		ReceiverBank:    transaction.Recipient.BankName,
		AmountCents:     transaction.Amount.Cents(),
		Type:            string(transaction.Type),
		Status:          string(transaction.Status),
		Reference:       transaction.Reference,
		CreatedAt:       transaction.CreatedAt.UTC(),
	}
}

func (d transactionDocument) toEntity() entities.Transaction {
	return entities.Transaction{
		TransactionID: d.TransactionID,
		SenderID:      d.SenderID,
		ReceiverID:    d.ReceiverID,
		Recipient: entities.Recipient{
			Name:          d.ReceiverName,
			AccountNumber: d.ReceiverAccount,
			TransitNumber: d.ReceiverTransit,
			BankName:      d.ReceiverBank,
		},
		Amount:    valueobjects.MoneyFromCents(d.AmountCents),
		Type:      entities.TransactionType(d.Type),
		Status:    entities.TransactionStatus(d.Status),
		RequestID: d.RequestID,
		Reference: d.Reference,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

type outboxDocument struct {
	OutboxID     string     `bson:"_id"`
	EventType    string     `bson:"event_type"`
	PartitionKey string     `bson:"partition_key"`
	Payload      []byte     `bson:"payload"`
	Status       string     `bson:"status"`
	CreatedAt    time.Time  `bson:"created_at"`
	SentAt       *time.Time `bson:"sent_at,omitempty"`
}

func outboxDocumentFromEvent(event ports.OutboxEvent) (outboxDocument, error) {
	envelope, err := event.Envelope()
	if err != nil {
		return outboxDocument{}, err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return outboxDocument{}, err
	}
	return outboxDocument{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    event.OccurredAt.UTC(),
	}, nil
}

type idempotencyDocument struct {
	Key           string    `bson:"_id"`
	RequestHash   string    `bson:"request_hash"`
	TransactionID string    `bson:"transaction_id"`
	ExpiresAt     time.Time `bson:"expires_at"`
}

type dedupDocument struct {
	EventID     string    `bson:"_id"`
	PayloadHash string    `bson:"payload_hash"`
	ExpiresAt   time.Time `bson:"expires_at"`
}

var _ ports.AccountRepository = (*Repository)(nil)
var _ ports.TransactionRepository = (*Repository)(nil)
var _ ports.IdempotencyStore = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
var _ ports.EventDedupStore = (*Repository)(nil)
