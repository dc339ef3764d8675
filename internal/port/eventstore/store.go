// Package eventstore defines the port interface for the append-only
// instance event journal.
package eventstore

import (
	"context"

	"github.com/echo-agent/echochamber/internal/domain/echo"
)

// Store is the port interface for appending and loading instance events.
// The journal backs the admin API's recent-activity view; the live stream
// goes through the message queue.
type Store interface {
	// Append persists a new event.
	Append(ctx context.Context, ev echo.Event) error

	// LoadRecent returns up to limit events for the instance, newest first.
	LoadRecent(ctx context.Context, instanceID string, limit int) ([]echo.Event, error)
}
