// Package messagequeue defines the message queue port (interface) for the
// runtime event stream.
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Close shuts down the queue connection.
	Close() error
}

// Subject suffixes for the per-instance runtime event subjects. Full
// subjects are "echo.{instance}.{suffix}".
const (
	SubjectState = "state" // lifecycle state transitions
	SubjectCycle = "cycle" // think cycle started/finished/skipped

	// SubjectWildcard matches all runtime events across instances.
	SubjectWildcard = "echo.>"
)

// Subject builds the full event subject for an instance.
func Subject(instanceID, suffix string) string {
	return "echo." + instanceID + "." + suffix
}
