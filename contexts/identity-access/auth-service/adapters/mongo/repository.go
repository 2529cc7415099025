package mongoadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"unity/contexts/identity-access/auth-service/domain/entities"
	domainerrors "unity/contexts/identity-access/auth-service/domain/errors"
	"unity/contexts/identity-access/auth-service/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	credentialsCollection = "auth_credentials"
	outboxCollection      = "auth_outbox"

	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
)

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
		credentialsCollection: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("ux_auth_credentials_email"),
			},
		},
		outboxCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
}

func (r *Repository) CreateCredentialWithOutbox(ctx context.Context, credential entities.Credential, event ports.OutboxEvent) error {
	envelope, err := event.Envelope()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	doc := credentialDocument{
		UserID:       credential.UserID,
		Name:         credential.Name,
		Email:        strings.ToLower(strings.TrimSpace(credential.Email)),
		PasswordHash: credential.PasswordHash,
		CreatedAt:    credential.CreatedAt.UTC(),
	}
	outbox := outboxDocument{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    event.OccurredAt.UTC(),
	}

	session, err := r.db.Client().StartSession()
	if err != nil {
		return r.logError("auth_mongo_start_session_failed", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := r.db.Collection(credentialsCollection).InsertOne(sc, doc); err != nil {
			return nil, err
		}
		_, err := r.db.Collection(outboxCollection).InsertOne(sc, outbox)
		return nil, err
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainerrors.ErrEmailAlreadyInUse
		}
		return r.logError("auth_mongo_create_credential_failed", err, "user_id", credential.UserID)
	}
	return nil
}

func (r *Repository) GetCredential(ctx context.Context, userID string) (entities.Credential, error) {
	return r.findOne(ctx, bson.M{"_id": strings.TrimSpace(userID)})
}

func (r *Repository) GetCredentialByEmail(ctx context.Context, email string) (entities.Credential, error) {
	return r.findOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (r *Repository) findOne(ctx context.Context, filter bson.M) (entities.Credential, error) {
	var doc credentialDocument
	err := r.db.Collection(credentialsCollection).FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return entities.Credential{}, domainerrors.ErrCredentialNotFound
		}
		return entities.Credential{}, r.logError("auth_mongo_get_credential_failed", err)
	}
	return entities.Credential{
		UserID:       doc.UserID,
		Name:         doc.Name,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt.UTC(),
	}, nil
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
		return nil, r.logError("auth_mongo_list_pending_outbox_failed", err, "limit", limit)
	}
	var docs []outboxDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, r.logError("auth_mongo_decode_outbox_failed", err)
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
		return r.logError("auth_mongo_mark_outbox_sent_failed", err, "outbox_id", strings.TrimSpace(outboxID))
	}
	if result.MatchedCount == 0 {
		return errors.New("outbox record not found")
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "identity-access/auth-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("auth mongo operation failed", fields...)
	return err
}

type credentialDocument struct {
	UserID       string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
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

var _ ports.CredentialRepository = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
