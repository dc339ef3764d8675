// Package storage defines the port interface for per-instance persisted
// state: a key-value namespace plus the wake-up alarm.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Keys of the per-instance namespace. All values are JSON.
const (
	KeyState     = "state"     // lifecycle state string
	KeyTasks     = "tasks"     // []echo.Task
	KeyContext   = "context"   // scratchpad string
	KeyKnowledge = "knowledge" // []knowledge.Entry
	KeyMemories  = "memories"  // []memory.Entry
	KeyUsage     = "usage"     // usage.Record keyed by day
)

// Store is the persistence port. Each instance owns an isolated key space;
// all access for one instance is serialized by the owning actor, so
// implementations need no per-key locking.
type Store interface {
	Get(ctx context.Context, instanceID, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, instanceID, key string, value []byte) error
	Delete(ctx context.Context, instanceID, key string) error

	// GetAlarm returns the next scheduled wake-up, if any.
	GetAlarm(ctx context.Context, instanceID string) (at time.Time, ok bool, err error)
	SetAlarm(ctx context.Context, instanceID string, at time.Time) error
	DeleteAlarm(ctx context.Context, instanceID string) error
}

// GetJSON loads and unmarshals the value under key into out. Returns false
// without touching out when the key is absent.
func GetJSON(ctx context.Context, s Store, instanceID, key string, out any) (bool, error) {
	data, ok, err := s.Get(ctx, instanceID, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// PutJSON marshals v and stores it under key.
func PutJSON(ctx context.Context, s Store, instanceID, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Put(ctx, instanceID, key, data)
}
