package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"unity/contexts/identity-access/auth-service/domain/entities"
	domainerrors "unity/contexts/identity-access/auth-service/domain/errors"
	"unity/contexts/identity-access/auth-service/ports"

	"github.com/google/uuid"
)

// Store is an in-memory adapter implementing credential, outbox and
// revocation ports. It is intended for tests and local development wiring.
type Store struct {
	mu sync.RWMutex

	credentials map[string]entities.Credential
	byEmail     map[string]string
	outbox      map[string]outboxRow
	revoked     map[string]time.Time
}

type outboxRow struct {
	ports.OutboxMessage
	SentAt *time.Time
}

func NewStore() *Store {
	return &Store{
		credentials: make(map[string]entities.Credential),
		byEmail:     make(map[string]string),
		outbox:      make(map[string]outboxRow),
		revoked:     make(map[string]time.Time),
	}
}

func (s *Store) CreateCredentialWithOutbox(_ context.Context, credential entities.Credential, event ports.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[credential.Email]; exists {
		return domainerrors.ErrEmailAlreadyInUse
	}
	if _, exists := s.outbox[event.EventID]; exists {
		return domainerrors.ErrIdempotencyConflict
	}
	envelope, err := event.Envelope()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	s.credentials[credential.UserID] = credential
	s.byEmail[credential.Email] = credential.UserID
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

func (s *Store) GetCredential(_ context.Context, userID string) (entities.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credential, ok := s.credentials[userID]
	if !ok {
		return entities.Credential{}, domainerrors.ErrCredentialNotFound
	}
	return credential, nil
}

func (s *Store) GetCredentialByEmail(_ context.Context, email string) (entities.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byEmail[email]
	if !ok {
		return entities.Credential{}, domainerrors.ErrCredentialNotFound
	}
	return s.credentials[userID], nil
}

func (s *Store) Revoke(_ context.Context, sessionID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revoked[sessionID] = expiresAt.UTC()
	return nil
}

func (s *Store) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.revoked[sessionID]
	if !ok {
		return false, nil
	}
	if !expiresAt.After(time.Now().UTC()) {
		delete(s.revoked, sessionID)
		return false, nil
	}
	return true, nil
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

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
