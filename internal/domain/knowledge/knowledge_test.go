package knowledge

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestRetentionDays(t *testing.T) {
	tests := []struct {
		accessCount int
		category    Category
		want        int
	}{
		{0, CategoryOther, 1},
		{1, CategoryOther, 2},
		{3, CategoryOther, 8},
		{0, CategoryRule, 5},
		{3, CategoryRule, 40},
		{0, CategoryPreference, 2},
		{2, CategoryPreference, 8},
		{9, CategoryOther, 512},
		{10, CategoryOther, 730},
		{20, CategoryOther, 730},
		{8, CategoryRule, 730},
		{100, CategoryRule, 730},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.category, tt.accessCount), func(t *testing.T) {
			if got := RetentionDays(tt.accessCount, tt.category); got != tt.want {
				t.Errorf("RetentionDays(%d, %s) = %d, want %d", tt.accessCount, tt.category, got, tt.want)
			}
		})
	}
}

func TestForgottenAt(t *testing.T) {
	got := ForgottenAt(now, 0, CategoryOther)
	if want := now.AddDate(0, 0, 1); !got.Equal(want) {
		t.Errorf("ForgottenAt = %v, want %v", got, want)
	}

	got = ForgottenAt(now, 3, CategoryRule)
	if want := now.AddDate(0, 0, 40); !got.Equal(want) {
		t.Errorf("ForgottenAt rule = %v, want %v", got, want)
	}
}

func TestInsertRejectsDuplicate(t *testing.T) {
	entries, _, err := Insert(nil, "the sky is blue", CategoryFact, nil, now)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}

	after, evicted, err := Insert(entries, "the sky is blue", CategoryOther, nil, now.Add(time.Hour))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
	if evicted != nil {
		t.Error("duplicate insert must not evict")
	}
	if len(after) != 1 {
		t.Errorf("entries mutated on duplicate: len = %d", len(after))
	}
}

func TestInsertSetsDefaults(t *testing.T) {
	entries, _, err := Insert(nil, "prefers tea over coffee", CategoryPreference, nil, now)
	if err != nil {
		t.Fatal(err)
	}

	e := entries[0]
	if e.AccessCount != 0 {
		t.Errorf("access count = %d, want 0", e.AccessCount)
	}
	if !e.LastAccessedAt.Equal(now) {
		t.Errorf("last accessed = %v, want %v", e.LastAccessedAt, now)
	}
	if want := now.AddDate(0, 0, 2); !e.ForgottenAt.Equal(want) {
		t.Errorf("forgotten at = %v, want %v", e.ForgottenAt, want)
	}
	if e.Tags == nil {
		t.Error("tags must be non-nil")
	}
}

func TestInsertEvictsLRUAtCapacity(t *testing.T) {
	for _, ascending := range []bool{true, false} {
		var entries []Entry
		for i := range MaxEntries {
			ts := i
			if !ascending {
				ts = MaxEntries - 1 - i
			}
			entries = append(entries, Entry{
				Content:        fmt.Sprintf("entry %d", i),
				Category:       CategoryOther,
				LastAccessedAt: now.Add(time.Duration(ts) * time.Minute),
			})
		}

		updated, evicted, err := Insert(entries, "fresh entry", CategoryOther, nil, now.Add(time.Hour*24))
		if err != nil {
			t.Fatal(err)
		}
		if len(updated) != MaxEntries {
			t.Errorf("len = %d, want %d", len(updated), MaxEntries)
		}
		if evicted == nil {
			t.Fatal("expected an eviction")
		}
		// The entry with the minimum LastAccessedAt must go, regardless of
		// insertion order.
		if !evicted.LastAccessedAt.Equal(now) {
			t.Errorf("evicted %q at %v, want the oldest-accessed entry", evicted.Content, evicted.LastAccessedAt)
		}
	}
}

func TestSearchRanking(t *testing.T) {
	entries := []Entry{
		{Content: "Go uses goroutines for concurrency", Category: CategoryFact, AccessCount: 0, LastAccessedAt: now},
		{Content: "goroutines are cheap green threads", Category: CategoryFact, AccessCount: 5, LastAccessedAt: now.Add(-time.Hour)},
		{Content: "channels synchronize goroutines in Go programs", Category: CategoryInsight, AccessCount: 1, LastAccessedAt: now},
		{Content: "completely unrelated", Category: CategoryOther, AccessCount: 9, LastAccessedAt: now},
	}

	results := Search(entries, "channels goroutines", "", now.Add(time.Minute))

	if len(results) != 3 {
		t.Fatalf("len = %d, want 3", len(results))
	}
	// Two token matches beat one, then access count breaks ties.
	if results[0].Content != "channels synchronize goroutines in Go programs" {
		t.Errorf("top result = %q, want the two-token match", results[0].Content)
	}
	if results[1].Content != "goroutines are cheap green threads" {
		t.Errorf("second result = %q, want the higher access count", results[1].Content)
	}
	for _, r := range results {
		if r.Content == "completely unrelated" {
			t.Error("zero-match entry returned")
		}
	}
}

func TestSearchReinforcesHits(t *testing.T) {
	entries := []Entry{
		{Content: "tokyo is in japan", Category: CategoryFact, AccessCount: 2, LastAccessedAt: now.Add(-48 * time.Hour)},
		{Content: "paris is in france", Category: CategoryFact, AccessCount: 0, LastAccessedAt: now.Add(-48 * time.Hour)},
	}

	later := now.Add(time.Hour)
	results := Search(entries, "tokyo", "", later)

	if len(results) != 1 {
		t.Fatalf("len = %d, want 1", len(results))
	}
	if entries[0].AccessCount != 3 {
		t.Errorf("access count = %d, want 3", entries[0].AccessCount)
	}
	if !entries[0].LastAccessedAt.Equal(later) {
		t.Errorf("last accessed = %v, want %v", entries[0].LastAccessedAt, later)
	}
	// Reinforcement extends the forgetting horizon: 2^3 = 8 days.
	if want := later.AddDate(0, 0, 8); !entries[0].ForgottenAt.Equal(want) {
		t.Errorf("forgotten at = %v, want %v", entries[0].ForgottenAt, want)
	}
	// The miss stays untouched.
	if entries[1].AccessCount != 0 || !entries[1].LastAccessedAt.Equal(now.Add(-48*time.Hour)) {
		t.Error("non-matching entry was mutated")
	}
}

func TestSearchCategoryFilter(t *testing.T) {
	entries := []Entry{
		{Content: "always reply in japanese", Category: CategoryRule, LastAccessedAt: now},
		{Content: "they like japanese food", Category: CategoryPreference, LastAccessedAt: now},
	}

	results := Search(entries, "japanese", CategoryRule, now)

	if len(results) != 1 {
		t.Fatalf("len = %d, want 1", len(results))
	}
	if results[0].Category != CategoryRule {
		t.Errorf("category = %s, want rule", results[0].Category)
	}
}

func TestSearchLimit(t *testing.T) {
	var entries []Entry
	for i := range 10 {
		entries = append(entries, Entry{
			Content:        fmt.Sprintf("shared keyword number %d", i),
			Category:       CategoryOther,
			LastAccessedAt: now,
		})
	}

	results := Search(entries, "keyword", "", now)

	if len(results) != SearchLimit {
		t.Errorf("len = %d, want %d", len(results), SearchLimit)
	}
}

func TestSearchCaseInsensitive(t *testing.T) {
	entries := []Entry{
		{Content: "NATS JetStream handles persistence", Category: CategoryFact, LastAccessedAt: now},
	}

	if got := Search(entries, "JETSTREAM", "", now); len(got) != 1 {
		t.Errorf("case-insensitive search returned %d results, want 1", len(got))
	}
}
