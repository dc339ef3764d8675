package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/echo-agent/echochamber/internal/domain/memory"
	"github.com/echo-agent/echochamber/internal/port/storage"
)

func loadMemories(ctx context.Context, tc *Context) ([]memory.Entry, error) {
	var entries []memory.Entry
	if _, err := storage.GetJSON(ctx, tc.Storage, tc.Instance.ID, storage.KeyMemories, &entries); err != nil {
		return nil, fmt.Errorf("load memories: %w", err)
	}
	return entries, nil
}

// memoryView renders a memory for the model, embedding omitted.
type memoryView struct {
	Content    string   `json:"content"`
	CreatedAt  string   `json:"created_at"`
	Valence    float64  `json:"valence"`
	Arousal    float64  `json:"arousal"`
	Labels     []string `json:"labels,omitempty"`
	Similarity float64  `json:"similarity,omitempty"`
}

// StoreMemory embeds and persists an episodic memory with optional
// emotional metadata.
func StoreMemory() *Tool {
	return &Tool{
		Name: "store_memory",
		Description: fmt.Sprintf(
			"Store an episodic memory of something you experienced or reflected on, with optional emotional context. Retrieved later by meaning, not keywords. Max %d characters.",
			memory.MaxContentLength),
		Parameters: ObjectSchema(map[string]any{
			"content": StringSchema("The memory to store."),
			"valence": map[string]any{
				"type":        "number",
				"description": "Emotional valence, -1.0 (negative) to 1.0 (positive).",
			},
			"arousal": map[string]any{
				"type":        "number",
				"description": "Emotional arousal, 0.0 (calm) to 1.0 (excited).",
			},
			"labels": map[string]any{
				"type":        "array",
				"description": "Optional emotion labels, e.g. joy, curiosity.",
				"items":       map[string]any{"type": "string"},
			},
		}, []string{"content"}),
		Handler: func(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
			var args struct {
				Content string   `json:"content"`
				Valence float64  `json:"valence"`
				Arousal float64  `json:"arousal"`
				Labels  []string `json:"labels"`
			}
			if err := DecodeArgs(raw, &args); err != nil {
				return Fail(err.Error()), nil
			}
			if args.Content == "" {
				return Fail("content must not be empty"), nil
			}
			if len([]rune(args.Content)) > memory.MaxContentLength {
				return Fail(fmt.Sprintf("content exceeds %d characters", memory.MaxContentLength)), nil
			}
			if args.Valence < -1 || args.Valence > 1 {
				return Fail("valence must be between -1.0 and 1.0"), nil
			}
			if args.Arousal < 0 || args.Arousal > 1 {
				return Fail("arousal must be between 0.0 and 1.0"), nil
			}

			vec, err := tc.Embedder.Embed(ctx, args.Content)
			if err != nil {
				return nil, fmt.Errorf("embed memory: %w", err)
			}

			entries, err := loadMemories(ctx, tc)
			if err != nil {
				return nil, err
			}

			now := tc.Time()
			updated, evicted := memory.Insert(entries, memory.Entry{
				Content:   args.Content,
				Embedding: vec,
				Emotion: memory.Emotion{
					Valence: args.Valence,
					Arousal: args.Arousal,
					Labels:  args.Labels,
				},
				CreatedAt: now,
				UpdatedAt: now,
			})
			if evicted != nil {
				tc.Logger.Info("memory evicted",
					"instance_id", tc.Instance.ID, "content", evicted.Content)
			}

			if err := storage.PutJSON(ctx, tc.Storage, tc.Instance.ID, storage.KeyMemories, updated); err != nil {
				return nil, fmt.Errorf("save memories: %w", err)
			}
			return OK(), nil
		},
	}
}

// SearchMemory retrieves memories by semantic similarity to a query.
func SearchMemory() *Tool {
	return &Tool{
		Name:        "search_memory",
		Description: "Search your episodic memories by meaning. Returns the most similar memories with their emotional context.",
		Parameters: ObjectSchema(map[string]any{
			"query": StringSchema("What to recall, in natural language."),
		}, []string{"query"}),
		Handler: func(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
			var args struct {
				Query string `json:"query"`
			}
			if err := DecodeArgs(raw, &args); err != nil {
				return Fail(err.Error()), nil
			}
			if args.Query == "" {
				return Fail("query must not be empty"), nil
			}

			entries, err := loadMemories(ctx, tc)
			if err != nil {
				return nil, err
			}
			if len(entries) == 0 {
				return struct {
					Result
					Results []memoryView `json:"results"`
				}{OK(), []memoryView{}}, nil
			}

			vec, err := tc.Embedder.Embed(ctx, args.Query)
			if err != nil {
				return nil, fmt.Errorf("embed query: %w", err)
			}

			hits := memory.Rank(entries, vec)
			views := make([]memoryView, len(hits))
			for i, h := range hits {
				views[i] = memoryView{
					Content:    h.Content,
					CreatedAt:  h.CreatedAt.Format("2006-01-02 15:04"),
					Valence:    h.Emotion.Valence,
					Arousal:    h.Emotion.Arousal,
					Labels:     h.Emotion.Labels,
					Similarity: h.Similarity,
				}
			}
			return struct {
				Result
				Results []memoryView `json:"results"`
			}{OK(), views}, nil
		},
	}
}
