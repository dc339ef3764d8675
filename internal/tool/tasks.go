package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/echo-agent/echochamber/internal/domain/echo"
	"github.com/echo-agent/echochamber/internal/port/storage"
)

// loadTasks reads the instance's scheduled tasks.
func loadTasks(ctx context.Context, tc *Context) ([]echo.Task, error) {
	var tasks []echo.Task
	if _, err := storage.GetJSON(ctx, tc.Storage, tc.Instance.ID, storage.KeyTasks, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func saveTasks(ctx context.Context, tc *Context, tasks []echo.Task) error {
	return storage.PutJSON(ctx, tc.Storage, tc.Instance.ID, storage.KeyTasks, tasks)
}

// taskView is the JSON shape tasks take in tool payloads.
type taskView struct {
	Name          string `json:"name"`
	Content       string `json:"content"`
	ExecutionTime string `json:"execution_time"`
}

func toTaskViews(tasks []echo.Task) []taskView {
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, taskView{
			Name:          t.Name,
			Content:       t.Content,
			ExecutionTime: t.ExecutionTime.Format(time.RFC3339),
		})
	}
	return views
}

// CreateTask schedules a future task under a unique name.
func CreateTask() *Tool {
	return &Tool{
		Name:        "create_task",
		Description: "Schedule a task to execute at a future time. Use this to plan things you want to do later.",
		Parameters: ObjectSchema(map[string]any{
			"name":           StringSchema("Unique short name for the task (max 64 characters)."),
			"content":        StringSchema("What to do when the task executes (max 500 characters)."),
			"execution_time": StringSchema("When to execute, as an RFC 3339 timestamp."),
		}, []string{"name", "content", "execution_time"}),
		Handler: func(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
			var args struct {
				Name          string `json:"name"`
				Content       string `json:"content"`
				ExecutionTime string `json:"execution_time"`
			}
			if err := DecodeArgs(raw, &args); err != nil {
				return Fail(err.Error()), nil
			}

			at, err := time.Parse(time.RFC3339, args.ExecutionTime)
			if err != nil {
				return Fail(fmt.Sprintf("invalid execution_time: %v", err)), nil
			}

			task := echo.Task{Name: args.Name, Content: args.Content, ExecutionTime: at}
			if err := task.Validate(); err != nil {
				return Fail(err.Error()), nil
			}
			if !at.After(tc.Time()) {
				return Fail("execution_time must be in the future"), nil
			}

			tasks, err := loadTasks(ctx, tc)
			if err != nil {
				return nil, err
			}
			for _, t := range tasks {
				if t.Name == args.Name {
					return Fail(fmt.Sprintf("task '%s' already exists", args.Name)), nil
				}
			}

			tasks = append(tasks, task)
			if err := saveTasks(ctx, tc, tasks); err != nil {
				return nil, err
			}
			return struct {
				Result
				Task taskView `json:"task"`
			}{OK(), toTaskViews([]echo.Task{task})[0]}, nil
		},
	}
}

// ListTasks returns all scheduled tasks sorted by execution time.
func ListTasks() *Tool {
	return &Tool{
		Name:        "list_task",
		Description: "List all scheduled tasks, soonest first.",
		Handler: func(ctx context.Context, tc *Context, _ json.RawMessage) (any, error) {
			tasks, err := loadTasks(ctx, tc)
			if err != nil {
				return nil, err
			}
			sort.SliceStable(tasks, func(i, j int) bool {
				return tasks[i].ExecutionTime.Before(tasks[j].ExecutionTime)
			})
			return struct {
				Result
				Tasks []taskView `json:"tasks"`
			}{OK(), toTaskViews(tasks)}, nil
		},
	}
}

// UpdateTask changes a task's content, execution time, or both.
func UpdateTask() *Tool {
	return &Tool{
		Name:        "update_task",
		Description: "Update a scheduled task's content and/or execution time.",
		Parameters: ObjectSchema(map[string]any{
			"name":           StringSchema("Name of the task to update."),
			"content":        StringSchema("New content (max 500 characters). Optional."),
			"execution_time": StringSchema("New RFC 3339 execution time. Optional."),
		}, []string{"name"}),
		Handler: func(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
			var args struct {
				Name          string  `json:"name"`
				Content       *string `json:"content"`
				ExecutionTime *string `json:"execution_time"`
			}
			if err := DecodeArgs(raw, &args); err != nil {
				return Fail(err.Error()), nil
			}
			if args.Content == nil && args.ExecutionTime == nil {
				return Fail("provide content and/or execution_time to update"), nil
			}

			tasks, err := loadTasks(ctx, tc)
			if err != nil {
				return nil, err
			}

			idx := -1
			for i, t := range tasks {
				if t.Name == args.Name {
					idx = i
					break
				}
			}
			if idx < 0 {
				return Fail(fmt.Sprintf("task '%s' not found", args.Name)), nil
			}

			updated := tasks[idx]
			if args.Content != nil {
				updated.Content = *args.Content
			}
			if args.ExecutionTime != nil {
				at, err := time.Parse(time.RFC3339, *args.ExecutionTime)
				if err != nil {
					return Fail(fmt.Sprintf("invalid execution_time: %v", err)), nil
				}
				if !at.After(tc.Time()) {
					return Fail("execution_time must be in the future"), nil
				}
				updated.ExecutionTime = at
			}
			if err := updated.Validate(); err != nil {
				return Fail(err.Error()), nil
			}

			tasks[idx] = updated
			if err := saveTasks(ctx, tc, tasks); err != nil {
				return nil, err
			}
			return struct {
				Result
				Task taskView `json:"task"`
			}{OK(), toTaskViews([]echo.Task{updated})[0]}, nil
		},
	}
}

// DeleteTask removes a scheduled task.
func DeleteTask() *Tool {
	return deleteTaskTool("delete_task", "Delete a scheduled task by name.")
}

// CompleteTask marks a task done, which removes it from the schedule.
func CompleteTask() *Tool {
	return deleteTaskTool("complete_task", "Mark a scheduled task as completed. Call this after executing a due task.")
}

func deleteTaskTool(name, description string) *Tool {
	return &Tool{
		Name:        name,
		Description: description,
		Parameters: ObjectSchema(map[string]any{
			"name": StringSchema("Name of the task."),
		}, []string{"name"}),
		Handler: func(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
			var args struct {
				Name string `json:"name"`
			}
			if err := DecodeArgs(raw, &args); err != nil {
				return Fail(err.Error()), nil
			}

			tasks, err := loadTasks(ctx, tc)
			if err != nil {
				return nil, err
			}

			kept := tasks[:0]
			found := false
			for _, t := range tasks {
				if t.Name == args.Name {
					found = true
					continue
				}
				kept = append(kept, t)
			}
			if !found {
				return Fail(fmt.Sprintf("task '%s' not found", args.Name)), nil
			}

			if err := saveTasks(ctx, tc, kept); err != nil {
				return nil, err
			}
			return OK(), nil
		},
	}
}
