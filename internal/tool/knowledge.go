package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/echo-agent/echochamber/internal/domain/knowledge"
	"github.com/echo-agent/echochamber/internal/port/storage"
)

func loadKnowledge(ctx context.Context, tc *Context) ([]knowledge.Entry, error) {
	var entries []knowledge.Entry
	if _, err := storage.GetJSON(ctx, tc.Storage, tc.Instance.ID, storage.KeyKnowledge, &entries); err != nil {
		return nil, fmt.Errorf("load knowledge: %w", err)
	}
	return entries, nil
}

func saveKnowledge(ctx context.Context, tc *Context, entries []knowledge.Entry) error {
	if err := storage.PutJSON(ctx, tc.Storage, tc.Instance.ID, storage.KeyKnowledge, entries); err != nil {
		return fmt.Errorf("save knowledge: %w", err)
	}
	return nil
}

// knowledgeView renders an entry for the model without internal bookkeeping.
type knowledgeView struct {
	Content     string   `json:"content"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags,omitempty"`
	ForgottenAt string   `json:"forgotten_at"`
}

func toKnowledgeView(e knowledge.Entry) knowledgeView {
	return knowledgeView{
		Content:     e.Content,
		Category:    string(e.Category),
		Tags:        e.Tags,
		ForgottenAt: e.ForgottenAt.Format("2006-01-02"),
	}
}

// StoreKnowledge adds an entry to the keyword knowledge collection.
func StoreKnowledge() *Tool {
	categories := make([]string, len(knowledge.ValidCategories))
	for i, c := range knowledge.ValidCategories {
		categories[i] = string(c)
	}

	return &Tool{
		Name: "store_knowledge",
		Description: fmt.Sprintf(
			"Store a piece of knowledge for later keyword retrieval. Knowledge that is never recalled is eventually forgotten; rules and preferences are retained longer. Max %d characters.",
			knowledge.MaxContentLength),
		Parameters: ObjectSchema(map[string]any{
			"content": StringSchema("The knowledge to remember."),
			"category": map[string]any{
				"type":        "string",
				"description": "Category of the knowledge: " + strings.Join(categories, ", ") + ".",
				"enum":        categories,
			},
			"tags": map[string]any{
				"type":        "array",
				"description": "Optional tags for grouping related knowledge.",
				"items":       map[string]any{"type": "string"},
			},
		}, []string{"content", "category"}),
		Handler: func(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
			var args struct {
				Content  string   `json:"content"`
				Category string   `json:"category"`
				Tags     []string `json:"tags"`
			}
			if err := DecodeArgs(raw, &args); err != nil {
				return Fail(err.Error()), nil
			}
			if args.Content == "" {
				return Fail("content must not be empty"), nil
			}
			if len([]rune(args.Content)) > knowledge.MaxContentLength {
				return Fail(fmt.Sprintf("content exceeds %d characters", knowledge.MaxContentLength)), nil
			}
			category := knowledge.Category(args.Category)
			if !category.Valid() {
				return Fail(fmt.Sprintf("unknown category %q", args.Category)), nil
			}

			entries, err := loadKnowledge(ctx, tc)
			if err != nil {
				return nil, err
			}

			updated, evicted, err := knowledge.Insert(entries, args.Content, category, args.Tags, tc.Time())
			if errors.Is(err, knowledge.ErrDuplicate) {
				return Fail("this knowledge is already stored"), nil
			}
			if err != nil {
				return nil, err
			}
			if evicted != nil {
				tc.Logger.Info("knowledge evicted",
					"instance_id", tc.Instance.ID, "content", evicted.Content)
			}

			if err := saveKnowledge(ctx, tc, updated); err != nil {
				return nil, err
			}
			return struct {
				Result
				Stored knowledgeView `json:"stored"`
			}{OK(), toKnowledgeView(updated[len(updated)-1])}, nil
		},
	}
}

// SearchKnowledge looks up stored knowledge by keyword match. Recalled
// entries are reinforced, which pushes their forgetting date out.
func SearchKnowledge() *Tool {
	return &Tool{
		Name:        "search_knowledge",
		Description: "Search your stored knowledge by keywords. Recalling knowledge reinforces it so it is retained longer.",
		Parameters: ObjectSchema(map[string]any{
			"query":    StringSchema("Keywords to search for."),
			"category": StringSchema("Optional category filter."),
		}, []string{"query"}),
		Handler: func(ctx context.Context, tc *Context, raw json.RawMessage) (any, error) {
			var args struct {
				Query    string `json:"query"`
				Category string `json:"category"`
			}
			if err := DecodeArgs(raw, &args); err != nil {
				return Fail(err.Error()), nil
			}
			if strings.TrimSpace(args.Query) == "" {
				return Fail("query must not be empty"), nil
			}
			category := knowledge.Category(args.Category)
			if args.Category != "" && !category.Valid() {
				return Fail(fmt.Sprintf("unknown category %q", args.Category)), nil
			}

			entries, err := loadKnowledge(ctx, tc)
			if err != nil {
				return nil, err
			}

			hits := knowledge.Search(entries, args.Query, category, tc.Time())
			if len(hits) > 0 {
				// Search reinforced the matched entries in place.
				if err := saveKnowledge(ctx, tc, entries); err != nil {
					return nil, err
				}
			}

			views := make([]knowledgeView, len(hits))
			for i, h := range hits {
				views[i] = toKnowledgeView(h)
			}
			return struct {
				Result
				Results []knowledgeView `json:"results"`
			}{OK(), views}, nil
		},
	}
}
