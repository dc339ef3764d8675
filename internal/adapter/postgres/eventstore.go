package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echo-agent/echochamber/internal/domain/echo"
)

// EventStore persists runtime events append-only. It backs the recent
// activity view on the admin API; the live stream goes over NATS.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts a new event into the instance_events table.
func (s *EventStore) Append(ctx context.Context, ev echo.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO instance_events (id, instance_id, event_type, state, reason, detail, tokens, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.InstanceID, string(ev.Type), string(ev.State), ev.Reason, ev.Detail, ev.Tokens, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// LoadRecent returns the newest events for the given instance, newest first.
func (s *EventStore) LoadRecent(ctx context.Context, instanceID string, limit int) ([]echo.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, instance_id, event_type, state, reason, detail, tokens, created_at
		 FROM instance_events WHERE instance_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		instanceID, limit)
	if err != nil {
		return nil, fmt.Errorf("load events for %s: %w", instanceID, err)
	}
	defer rows.Close()

	var events []echo.Event
	for rows.Next() {
		var ev echo.Event
		var typ, state string
		if err := rows.Scan(&ev.ID, &ev.InstanceID, &typ, &state, &ev.Reason, &ev.Detail, &ev.Tokens, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = echo.EventType(typ)
		ev.State = echo.State(state)
		events = append(events, ev)
	}
	return events, rows.Err()
}
