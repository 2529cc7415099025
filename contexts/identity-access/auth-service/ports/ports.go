package ports

import (
	"context"
	"time"

	contractsv1 "unity/contracts/gen/events/v1"
	"unity/contexts/identity-access/auth-service/domain/entities"
)

const SourceService = "auth-service"

type CredentialRepository interface {
	// CreateCredentialWithOutbox must atomically persist the credential and
	// the user.registered event; a taken email maps to ErrEmailAlreadyInUse.
	CreateCredentialWithOutbox(ctx context.Context, credential entities.Credential, event OutboxEvent) error
	GetCredential(ctx context.Context, userID string) (entities.Credential, error)
	GetCredentialByEmail(ctx context.Context, email string) (entities.Credential, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare returns ErrInvalidCredentials on mismatch.
	Compare(hash string, password string) error
}

// TokenIssuer signs and verifies session tokens. Parse rejects bad
// signatures and expired tokens; revocation is checked separately.
type TokenIssuer interface {
	Issue(session entities.Session) (string, error)
	Parse(token string) (entities.Session, error)
}

// SessionRevocations remembers logged-out session ids until they would have
// expired anyway.
type SessionRevocations interface {
	Revoke(ctx context.Context, sessionID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type OutboxEvent struct {
	EventID      string
	EventType    string
	PartitionKey string
	Data         map[string]string
	OccurredAt   time.Time
}

func (e OutboxEvent) Envelope() (EventEnvelope, error) {
	return contractsv1.NewEnvelope(
		e.EventID,
		e.EventType,
		SourceService,
		"data.user_id",
		e.PartitionKey,
		e.OccurredAt,
		e.Data,
	)
}

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

type EventEnvelope = contractsv1.Envelope

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}
