package ports

import contractsv1 "unity/contracts/gen/events/v1"

const SourceService = "banking-service"

// Envelope wraps the event in the shared contract so adapters store a
// payload the relay can publish unchanged.
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
