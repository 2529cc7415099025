package workers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	contractsv1 "unity/contracts/gen/events/v1"
	application "unity/contexts/finance-core/banking-service/application"
	"unity/contexts/finance-core/banking-service/application/commands"
	"unity/contexts/finance-core/banking-service/ports"
)

const UserRegisteredConsumerGroup = "banking-service.user-registered"

type UserRegisteredConsumer struct {
	Subscriber  ports.EventSubscriber
	Dedup       ports.EventDedupStore
	OpenAccount commands.OpenAccountUseCase
	Clock       ports.Clock
	DedupTTL    time.Duration
	Logger      *slog.Logger
}

type userRegisteredPayload struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

func (c UserRegisteredConsumer) Start(ctx context.Context) error {
	return c.Subscriber.Subscribe(ctx, contractsv1.EventUserRegistered, UserRegisteredConsumerGroup, c.Handle)
}

// Handle opens the account for a newly registered user. Redelivered events
// are dropped by the dedupe store and OpenAccount itself is idempotent.
func (c UserRegisteredConsumer) Handle(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)
	if event.EventType != contractsv1.EventUserRegistered {
		return nil
	}

	now := time.Now().UTC()
	if c.Clock != nil {
		now = c.Clock.Now().UTC()
	}
	alreadyProcessed, err := c.Dedup.ReserveEvent(ctx, event.EventID, hashPayload(event.Data), now.Add(c.dedupTTL()))
	if err != nil || alreadyProcessed {
		return err
	}

	var payload userRegisteredPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return err
	}
	if strings.TrimSpace(payload.UserID) == "" {
		return nil
	}

	result, err := c.OpenAccount.Execute(ctx, commands.OpenAccountCommand{
		UserID: payload.UserID,
		Name:   payload.Name,
		Email:  payload.Email,
	})
	if err != nil {
		logger.Error("open account from user.registered failed",
			"event", "banking_user_registered_failed",
			"module", "finance-core/banking-service",
			"layer", "worker",
			"event_id", event.EventID,
			"user_id", payload.UserID,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("user.registered consumed",
		"event", "banking_user_registered_consumed",
		"module", "finance-core/banking-service",
		"layer", "worker",
		"event_id", event.EventID,
		"user_id", payload.UserID,
		"created", result.Created,
	)
	return nil
}

func (c UserRegisteredConsumer) dedupTTL() time.Duration {
	if c.DedupTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return c.DedupTTL
}

func hashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
