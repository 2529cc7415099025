package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	contractsv1 "unity/contracts/gen/events/v1"
)

const defaultConfirmTimeout = 5 * time.Second

var (
	ErrPublishNacked  = errors.New("message was nacked by broker")
	ErrConfirmTimeout = errors.New("confirmation timed out")
)

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQ publishes envelopes to a durable topic exchange with publisher
// confirms. The routing key is the event type.
type RabbitMQ struct {
	conn           *amqp.Connection
	ch             Channel
	exchange       string
	confirms       chan amqp.Confirmation
	confirmTimeout time.Duration
	mu             sync.Mutex
	logger         *slog.Logger
}

func DialRabbitMQ(url string, exchange string, logger *slog.Logger) (*RabbitMQ, error) {
	if url == "" {
		return nil, errors.New("amqp url is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	publisher, err := NewRabbitMQ(ch, exchange, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	publisher.conn = conn
	return publisher, nil
}

// NewRabbitMQ declares exchange on ch and enables confirm mode.
func NewRabbitMQ(ch Channel, exchange string, logger *slog.Logger) (*RabbitMQ, error) {
	if ch == nil {
		return nil, errors.New("rabbitmq channel is required")
	}
	if exchange == "" {
		return nil, errors.New("rabbitmq exchange is required")
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}
	return &RabbitMQ{
		ch:             ch,
		exchange:       exchange,
		confirms:       ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		confirmTimeout: defaultConfirmTimeout,
		logger:         logger,
	}, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, topic string, event contractsv1.Envelope) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.ch.PublishWithContext(ctx, r.exchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Timestamp:    event.OccurredAt,
		Type:         event.EventType,
		AppId:        event.SourceService,
		Body:         body,
		Headers: amqp.Table{
			"schema_version": int32(event.SchemaVersion),
			"partition_key":  event.PartitionKey,
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	timer := time.NewTimer(r.confirmTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrConfirmTimeout
	case confirmation, ok := <-r.confirms:
		if !ok || !confirmation.Ack {
			return ErrPublishNacked
		}
	}

	if r.logger != nil {
		r.logger.Debug("event published",
			"event", "rabbitmq_publish",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"exchange", r.exchange,
			"topic", topic,
			"event_id", event.EventID,
		)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if r == nil {
		return nil
	}
	err := r.ch.Close()
	if r.conn != nil {
		err = errors.Join(err, r.conn.Close())
	}
	return err
}
