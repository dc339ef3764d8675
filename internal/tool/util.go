package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// CurrentTime reports the current time, optionally in a named time zone.
func CurrentTime() *Tool {
	return &Tool{
		Name:        "get_current_time",
		Description: "Get the current date and time, optionally in a specific IANA time zone. Defaults to UTC.",
		Parameters: ObjectSchema(map[string]any{
			"timezone": StringSchema("IANA time zone name, e.g. Asia/Tokyo. Defaults to UTC."),
		}, nil),
		Handler: func(_ context.Context, tc *Context, raw json.RawMessage) (any, error) {
			var args struct {
				Timezone string `json:"timezone"`
			}
			if err := DecodeArgs(raw, &args); err != nil {
				return Fail(err.Error()), nil
			}

			loc := time.UTC
			if args.Timezone != "" {
				var err error
				loc, err = time.LoadLocation(args.Timezone)
				if err != nil {
					return Fail(fmt.Sprintf("unknown timezone %q", args.Timezone)), nil
				}
			}

			now := tc.Time().In(loc)
			return struct {
				Result
				Time     string `json:"time"`
				Timezone string `json:"timezone"`
			}{OK(), now.Format("2006-01-02 15:04:05 (Monday)"), loc.String()}, nil
		},
	}
}

// ThinkDeeply gives the model a place to reason out loud without side
// effects. The thought is logged and echoed back.
func ThinkDeeply() *Tool {
	return &Tool{
		Name:        "think_deeply",
		Description: "Pause and think something through. Has no side effects; use it to reason before acting.",
		Parameters: ObjectSchema(map[string]any{
			"thought": StringSchema("What you are thinking about."),
		}, []string{"thought"}),
		Handler: func(_ context.Context, tc *Context, raw json.RawMessage) (any, error) {
			var args struct {
				Thought string `json:"thought"`
			}
			if err := DecodeArgs(raw, &args); err != nil {
				return Fail(err.Error()), nil
			}
			if args.Thought == "" {
				return Fail("thought must not be empty"), nil
			}

			tc.Logger.Info("deep thought",
				"instance_id", tc.Instance.ID, "thought", args.Thought)
			return struct {
				Result
				Thought string `json:"thought"`
			}{OK(), args.Thought}, nil
		},
	}
}
