package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Event type constants for WebSocket messages.
const (
	EventState    = "instance.state"
	EventCycle    = "instance.cycle"
	EventThinking = "instance.thinking"
)

// StateEvent is broadcast when an instance's lifecycle state changes.
type StateEvent struct {
	InstanceID string `json:"instance_id"`
	State      string `json:"state"`
	Reason     string `json:"reason,omitempty"`
}

// CycleEvent is broadcast when a think cycle starts, finishes, or is skipped.
type CycleEvent struct {
	InstanceID string `json:"instance_id"`
	Phase      string `json:"phase"` // "started", "finished", "skipped"
	Reason     string `json:"reason,omitempty"`
	Tokens     int64  `json:"tokens,omitempty"`
}

// ThinkingEvent carries one rendered item of an instance's thinking stream.
type ThinkingEvent struct {
	InstanceID string    `json:"instance_id"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// BroadcastEvent marshals a typed event and broadcasts it. The instance ID
// is lifted into the envelope so the hub can route by subscription.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	var instanceID string
	switch p := payload.(type) {
	case StateEvent:
		instanceID = p.InstanceID
	case CycleEvent:
		instanceID = p.InstanceID
	case ThinkingEvent:
		instanceID = p.InstanceID
	}

	h.Broadcast(ctx, Message{
		Type:       eventType,
		InstanceID: instanceID,
		Payload:    json.RawMessage(data),
	})
}
