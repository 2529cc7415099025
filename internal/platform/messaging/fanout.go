package messaging

import (
	"context"
	"errors"

	contractsv1 "unity/contracts/gen/events/v1"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, event contractsv1.Envelope) error
}

// Fanout publishes every event to each target in order. The relay leaves the
// outbox row pending when any target fails, so targets must tolerate replays.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, topic string, event contractsv1.Envelope) error {
	var errs []error
	for _, target := range f {
		if target == nil {
			continue
		}
		if err := target.Publish(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
