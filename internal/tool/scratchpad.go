package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/echo-agent/echochamber/internal/port/storage"
)

// maxContextLength bounds the scratchpad carried between think cycles.
const maxContextLength = 500

// StoreContext saves the cross-cycle scratchpad note.
func StoreContext() *Tool {
	return &Tool{
		Name:        "store_context",
		Description: "Save a short note to yourself that survives until your next thinking session. Overwrites the previous note.",
		Parameters: ObjectSchema(map[string]any{
			"context": StringSchema("The note to carry over (max 500 characters)."),
		}, []string{"context"}),
		Handler: func(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
			var args struct {
				Context string `json:"context"`
			}
			if err := DecodeArgs(raw, &args); err != nil {
				return Fail(err.Error()), nil
			}
			if len([]rune(args.Context)) > maxContextLength {
				return Fail(fmt.Sprintf("context exceeds %d characters", maxContextLength)), nil
			}

			if err := storage.PutJSON(ctx, tc.Storage, tc.Instance.ID, storage.KeyContext, args.Context); err != nil {
				return nil, err
			}
			return OK(), nil
		},
	}
}

// RecallContext loads the scratchpad note from the previous cycle.
func RecallContext() *Tool {
	return &Tool{
		Name:        "recall_context",
		Description: "Recall the note you saved for yourself in a previous thinking session.",
		Handler: func(ctx context.Context, tc *Context, _ json.RawMessage) (any, error) {
			var note string
			ok, err := storage.GetJSON(ctx, tc.Storage, tc.Instance.ID, storage.KeyContext, &note)
			if err != nil {
				return nil, err
			}
			if !ok || note == "" {
				note = "no context."
			}
			return struct {
				Result
				Context string `json:"context"`
			}{OK(), note}, nil
		},
	}
}
