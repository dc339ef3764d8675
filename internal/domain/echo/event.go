package echo

import "time"

// EventType discriminates runtime events published to the event stream.
type EventType string

const (
	EventStateChanged  EventType = "state_changed"
	EventCycleStarted  EventType = "cycle_started"
	EventCycleFinished EventType = "cycle_finished"
	EventCycleSkipped  EventType = "cycle_skipped"
	EventThinking      EventType = "thinking"
)

// Event is one observable runtime occurrence for an instance. Events are
// fire-and-forget telemetry: publishing failures never affect the cycle.
type Event struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id"`
	Type       EventType `json:"type"`
	State      State     `json:"state,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Tokens     int64     `json:"tokens,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
