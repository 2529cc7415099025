package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractsv1 "unity/contracts/gen/events/v1"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())

	received := make(chan contractsv1.Envelope, 1)
	require.NoError(t, bus.Subscribe(ctx, "user.registered", "test", func(_ context.Context, event contractsv1.Envelope) error {
		received <- event
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), "user.registered", contractsv1.Envelope{EventID: "evt-1"}))
	require.NoError(t, bus.Publish(context.Background(), "account.opened", contractsv1.Envelope{EventID: "evt-2"}))

	select {
	case event := <-received:
		assert.Equal(t, "evt-1", event.EventID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	bus.Wait()
}

type fakeChannel struct {
	declared  string
	confirmed bool
	published []amqp.Publishing
	keys      []string
	confirms  chan amqp.Confirmation
	ack       bool
	closed    bool
}

func (f *fakeChannel) ExchangeDeclare(name, _ string, _, _, _, _ bool, _ amqp.Table) error {
	f.declared = name
	return nil
}

func (f *fakeChannel) Confirm(bool) error {
	f.confirmed = true
	return nil
}

func (f *fakeChannel) NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation {
	f.confirms = confirm
	return confirm
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.published = append(f.published, msg)
	f.keys = append(f.keys, key)
	f.confirms <- amqp.Confirmation{DeliveryTag: uint64(len(f.published)), Ack: f.ack}
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestRabbitMQPublishWaitsForConfirm(t *testing.T) {
	ch := &fakeChannel{ack: true}
	publisher, err := NewRabbitMQ(ch, "unity.events", nil)
	require.NoError(t, err)
	assert.Equal(t, "unity.events", ch.declared)
	assert.True(t, ch.confirmed)

	event := contractsv1.Envelope{EventID: "evt-1", EventType: contractsv1.EventTransferCompleted, SchemaVersion: 1, Data: json.RawMessage(`{"amount":"5.00"}`)}
	require.NoError(t, publisher.Publish(context.Background(), event.EventType, event))

	require.Len(t, ch.published, 1)
	assert.Equal(t, contractsv1.EventTransferCompleted, ch.keys[0])
	assert.Equal(t, "evt-1", ch.published[0].MessageId)

	var decoded contractsv1.Envelope
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &decoded))
	assert.JSONEq(t, `{"amount":"5.00"}`, string(decoded.Data))

	require.NoError(t, publisher.Close())
	assert.True(t, ch.closed)
}

func TestRabbitMQPublishNack(t *testing.T) {
	ch := &fakeChannel{ack: false}
	publisher, err := NewRabbitMQ(ch, "unity.events", nil)
	require.NoError(t, err)

	err = publisher.Publish(context.Background(), "x", contractsv1.Envelope{EventID: "evt"})
	assert.True(t, errors.Is(err, ErrPublishNacked))
}

type failingPublisher struct{ err error }

func (p failingPublisher) Publish(context.Context, string, contractsv1.Envelope) error { return p.err }

func TestFanoutPublishesToEveryTarget(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		bus.Wait()
	}()

	received := make(chan string, 1)
	require.NoError(t, bus.Subscribe(ctx, "funds.deposited", "test", func(_ context.Context, event contractsv1.Envelope) error {
		received <- event.EventID
		return nil
	}))

	boom := errors.New("broker down")
	err := Fanout{failingPublisher{err: boom}, nil, bus}.Publish(context.Background(), "funds.deposited", contractsv1.Envelope{EventID: "evt-9"})
	require.ErrorIs(t, err, boom)

	select {
	case id := <-received:
		assert.Equal(t, "evt-9", id)
	case <-time.After(time.Second):
		t.Fatal("bus target skipped")
	}
}
