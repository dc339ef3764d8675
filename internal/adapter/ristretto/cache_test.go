package ristretto

import (
	"context"
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c, err := New(1 << 20)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "bot:echo-1", []byte(`{"id":"42"}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	c.Wait()

	got, ok, err := c.Get(ctx, "bot:echo-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(got) != `{"id":"42"}` {
		t.Errorf("got %s", got)
	}
}

func TestCacheMiss(t *testing.T) {
	c, err := New(1 << 20)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	defer c.Close()

	_, ok, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}
}

func TestCacheDelete(t *testing.T) {
	c, err := New(1 << 20)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	c.Wait()
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, ok, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected miss after delete")
	}
}
