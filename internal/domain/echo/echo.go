// Package echo defines the core domain entities of an Echo instance: its
// lifecycle state, identity and scheduled tasks.
package echo

import (
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle state of an instance. One value per identity,
// persisted, mutated only by the lifecycle controller.
type State string

const (
	StateIdling   State = "Idling"
	StateRunning  State = "Running"
	StateSleeping State = "Sleeping"
)

// Identity names one independently-scheduled, independently-persisted
// instance.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

const (
	// MaxTaskNameLength bounds the task's unique key.
	MaxTaskNameLength = 64
	// MaxTaskContentLength bounds the task description.
	MaxTaskContentLength = 500
)

// Task is a scheduled unit of future work, keyed by name. Tasks are created
// and maintained through tool calls and deleted once completed.
type Task struct {
	Name          string    `json:"name"`
	Content       string    `json:"content"`
	ExecutionTime time.Time `json:"execution_time"`
}

// Validate checks field bounds. Time-related rules (no past execution times)
// are enforced at the point of creation where "now" is known.
func (t *Task) Validate() error {
	if t.Name == "" {
		return errors.New("task name is required")
	}
	if len(t.Name) > MaxTaskNameLength {
		return fmt.Errorf("task name exceeds %d characters", MaxTaskNameLength)
	}
	if t.Content == "" {
		return errors.New("task content is required")
	}
	if len(t.Content) > MaxTaskContentLength {
		return fmt.Errorf("task content exceeds %d characters", MaxTaskContentLength)
	}
	if t.ExecutionTime.IsZero() {
		return errors.New("task execution time is required")
	}
	return nil
}

// DueTask returns the first task whose execution time falls before deadline,
// or nil when none is due.
func DueTask(tasks []Task, deadline time.Time) *Task {
	for i := range tasks {
		if tasks[i].ExecutionTime.Before(deadline) {
			return &tasks[i]
		}
	}
	return nil
}
