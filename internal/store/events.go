package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/noah-isme/resolve-gateway/internal/events"
)

// InsertEvent persists a domain event and returns the stored row. Store
// satisfies events.Store.
func (s *Store) InsertEvent(ctx context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.Event, error) {
	const q = `
INSERT INTO domain_events (topic, aggregate_id, payload)
VALUES ($1, $2, $3)
RETURNING id, topic, aggregate_id, payload, occurred_at`
	var ev events.Event
	row := s.Pool.QueryRow(ctx, q, topic, aggregateID, payload)
	if err := row.Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt); err != nil {
		return events.Event{}, fmt.Errorf("store: insert event: %w", err)
	}
	return ev, nil
}
