package echo

import (
	"strings"
	"testing"
	"time"
)

func TestTaskValidate(t *testing.T) {
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{"valid", Task{Name: "reply", Content: "answer the question", ExecutionTime: future}, false},
		{"empty name", Task{Content: "x", ExecutionTime: future}, true},
		{"name too long", Task{Name: strings.Repeat("a", MaxTaskNameLength+1), Content: "x", ExecutionTime: future}, true},
		{"empty content", Task{Name: "reply", ExecutionTime: future}, true},
		{"content too long", Task{Name: "reply", Content: strings.Repeat("a", MaxTaskContentLength+1), ExecutionTime: future}, true},
		{"zero time", Task{Name: "reply", Content: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDueTask(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tasks := []Task{
		{Name: "later", ExecutionTime: now.Add(time.Hour)},
		{Name: "due", ExecutionTime: now.Add(30 * time.Second)},
	}

	if got := DueTask(tasks, now.Add(time.Minute)); got == nil || got.Name != "due" {
		t.Errorf("DueTask = %v, want the due task", got)
	}
	if got := DueTask(tasks, now); got != nil {
		t.Errorf("DueTask = %v, want nil before any execution time", got)
	}
	if got := DueTask(nil, now); got != nil {
		t.Error("DueTask(nil) must be nil")
	}
}
