// Package knowledge provides the keyword knowledge store for Echo instances:
// a capacity-bounded collection with decay-based forgetting metadata,
// LRU eviction and match-ranked search with recall reinforcement.
package knowledge

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// Category classifies a knowledge entry for retrieval and retention.
type Category string

const (
	CategoryFact       Category = "fact"
	CategoryExperience Category = "experience"
	CategoryInsight    Category = "insight"
	CategoryPattern    Category = "pattern"
	CategoryRule       Category = "rule"
	CategoryPreference Category = "preference"
	CategoryOther      Category = "other"
)

// ValidCategories lists all accepted categories.
var ValidCategories = []Category{
	CategoryFact, CategoryExperience, CategoryInsight,
	CategoryPattern, CategoryRule, CategoryPreference, CategoryOther,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, v := range ValidCategories {
		if c == v {
			return true
		}
	}
	return false
}

const (
	// MaxEntries bounds the collection size.
	MaxEntries = 100
	// MaxContentLength bounds a single entry's content.
	MaxContentLength = 1000
	// SearchLimit is the maximum number of search results.
	SearchLimit = 5
	// MaxRetentionDays caps the forgetting horizon at two years so that
	// repeated reinforcement cannot push the date arbitrarily far out.
	MaxRetentionDays = 730
)

// ErrDuplicate is returned when storing content that already exists verbatim.
var ErrDuplicate = errors.New("knowledge already exists")

// Entry is a single remembered piece of knowledge. Content is unique within
// a collection.
type Entry struct {
	Content        string    `json:"content"`
	Category       Category  `json:"category"`
	Tags           []string  `json:"tags"`
	AccessCount    int       `json:"access_count"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	ForgottenAt    time.Time `json:"forgotten_at"`
}

// retentionMultiplier returns the category's retention correction factor.
// Rules and preferences are deliberately stickier than ordinary entries.
func retentionMultiplier(c Category) int {
	switch c {
	case CategoryRule:
		return 5
	case CategoryPreference:
		return 2
	default:
		return 1
	}
}

// RetentionDays computes how long an entry is retained from its access count
// and category: 2^accessCount days times the category multiplier, capped at
// MaxRetentionDays.
func RetentionDays(accessCount int, category Category) int {
	days := 1 << min(accessCount, 30) // 2^30 already exceeds the cap
	days *= retentionMultiplier(category)
	return min(days, MaxRetentionDays)
}

// ForgottenAt computes the scheduled-forgetting timestamp for an entry last
// touched at lastAccessedAt.
func ForgottenAt(lastAccessedAt time.Time, accessCount int, category Category) time.Time {
	return lastAccessedAt.AddDate(0, 0, RetentionDays(accessCount, category))
}

// Insert adds a new entry with the given content to entries. It fails with
// ErrDuplicate when the exact content is already present. When the collection
// is at capacity the entry with the oldest LastAccessedAt is evicted first;
// the evicted entry is returned so callers can log it.
func Insert(entries []Entry, content string, category Category, tags []string, now time.Time) (updated []Entry, evicted *Entry, err error) {
	for i := range entries {
		if entries[i].Content == content {
			return entries, nil, ErrDuplicate
		}
	}

	if len(entries) >= MaxEntries {
		lru := 0
		for i := range entries {
			if entries[i].LastAccessedAt.Before(entries[lru].LastAccessedAt) {
				lru = i
			}
		}
		ev := entries[lru]
		evicted = &ev
		entries = append(entries[:lru], entries[lru+1:]...)
	}

	if tags == nil {
		tags = []string{}
	}
	entries = append(entries, Entry{
		Content:        content,
		Category:       category,
		Tags:           tags,
		AccessCount:    0,
		LastAccessedAt: now,
		ForgottenAt:    ForgottenAt(now, 0, category),
	})
	return entries, evicted, nil
}

// Search ranks entries against query and returns up to SearchLimit hits.
// The query is lowercased and split on whitespace; an entry matches when at
// least one token is a case-insensitive substring of its content and its
// category matches the optional filter. Results are ordered by match count,
// then access count, then recency of access.
//
// Every returned entry is reinforced in place: access count incremented,
// last-accessed set to now and the forgetting date recomputed. The caller is
// expected to persist entries afterwards.
func Search(entries []Entry, query string, category Category, now time.Time) []Entry {
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	if len(tokens) == 0 {
		return nil
	}

	type ranked struct {
		idx     int
		matches int
	}
	var hits []ranked
	for i := range entries {
		if category != "" && entries[i].Category != category {
			continue
		}
		content := strings.ToLower(entries[i].Content)
		matches := 0
		for _, tok := range tokens {
			if strings.Contains(content, tok) {
				matches++
			}
		}
		if matches > 0 {
			hits = append(hits, ranked{idx: i, matches: matches})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		ea, eb := &entries[hits[a].idx], &entries[hits[b].idx]
		if hits[a].matches != hits[b].matches {
			return hits[a].matches > hits[b].matches
		}
		if ea.AccessCount != eb.AccessCount {
			return ea.AccessCount > eb.AccessCount
		}
		return ea.LastAccessedAt.After(eb.LastAccessedAt)
	})

	if len(hits) > SearchLimit {
		hits = hits[:SearchLimit]
	}

	results := make([]Entry, 0, len(hits))
	for _, h := range hits {
		e := &entries[h.idx]
		e.AccessCount++
		e.LastAccessedAt = now
		e.ForgottenAt = ForgottenAt(now, e.AccessCount, e.Category)
		results = append(results, *e)
	}
	return results
}
