// Package tiered implements a two-level (L1 + L2) cache adapter. The
// runtime uses it for chat identity lookups when a remote tier is available.
package tiered

import (
	"context"
	"time"

	"github.com/echo-agent/echochamber/internal/port/cache"
)

// Cache combines an in-process L1 with a remote L2. Reads check L1 first
// and backfill it on an L2 hit. Writes go to L2 first so L1 never holds a
// value the remote tier rejected.
type Cache struct {
	l1          cache.Cache
	l2          cache.Cache
	backfillTTL time.Duration
}

// New creates a tiered cache. backfillTTL bounds how long L2 backfill
// entries live in L1.
func New(l1, l2 cache.Cache, backfillTTL time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, backfillTTL: backfillTTL}
}

// Get checks L1, then L2, backfilling L1 on an L2 hit.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		_ = c.l1.Set(ctx, key, val, c.backfillTTL)
		return val, true, nil
	}

	return nil, false, nil
}

// Set writes to L2 first, then L1.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.l1.Set(ctx, key, value, ttl)
}

// Delete removes from both tiers. L1 is cleared even when the L2 delete
// fails so a stale local entry cannot outlive the error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	return c.l2.Delete(ctx, key)
}
