package cache

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewTTLCache[string](time.Hour, 10).WithClock(func() time.Time { return now })
	ctx := context.Background()

	c.Set(ctx, "a", "value")
	if v, ok := c.Get(ctx, "a"); !ok || v != "value" {
		t.Fatalf("Expected hit with 'value', got %q, %v", v, ok)
	}

	now = now.Add(59 * time.Minute)
	if _, ok := c.Get(ctx, "a"); !ok {
		t.Error("Expected entry to be alive before TTL")
	}

	now = now.Add(time.Minute)
	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("Expected entry to expire at TTL")
	}
	if c.Len() != 0 {
		t.Errorf("Expected expired entry to be dropped, got len %d", c.Len())
	}
}

func TestTTLCacheEvictsOldestFirst(t *testing.T) {
	c := NewTTLCache[int](0, 3)
	ctx := context.Background()

	c.Set(ctx, "a", 1)
	c.Set(ctx, "b", 2)
	c.Set(ctx, "c", 3)
	c.Set(ctx, "d", 4)

	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("Expected oldest entry to be evicted")
	}
	for _, key := range []string{"b", "c", "d"} {
		if _, ok := c.Get(ctx, key); !ok {
			t.Errorf("Expected %s to be present", key)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Expected len 3, got %d", c.Len())
	}
}

func TestTTLCacheOverwriteRefreshesPosition(t *testing.T) {
	c := NewTTLCache[int](0, 2)
	ctx := context.Background()

	c.Set(ctx, "a", 1)
	c.Set(ctx, "b", 2)
	c.Set(ctx, "a", 10)
	c.Set(ctx, "c", 3)

	if v, ok := c.Get(ctx, "a"); !ok || v != 10 {
		t.Errorf("Expected rewritten entry to survive with 10, got %d, %v", v, ok)
	}
	if _, ok := c.Get(ctx, "b"); ok {
		t.Error("Expected b to be evicted")
	}
}

func TestRedisStoreKey(t *testing.T) {
	s := NewRedisStore[string](nil, "llm", time.Hour)

	key1 := s.Key("prompt one")
	key2 := s.Key("prompt one")
	key3 := s.Key("prompt two")

	if key1 != key2 {
		t.Errorf("Expected consistent keys, got %s != %s", key1, key2)
	}
	if key1 == key3 {
		t.Errorf("Expected different keys for different input, got %s", key1)
	}
	if !strings.HasPrefix(key1, "llm:") {
		t.Errorf("Expected key to start with llm:, got %s", key1)
	}
}
