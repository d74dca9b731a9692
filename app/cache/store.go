package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Store is a keyed cache with per-entry expiry. Backend failures surface as misses.
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Set(ctx context.Context, key string, value V)
	Len() int
}

var _ Store[string] = (*TTLCache[string])(nil)

type entry[V any] struct {
	key      string
	value    V
	storedAt time.Time
}

// TTLCache is a bounded in-memory Store. When full, the oldest insertion is evicted first.
type TTLCache[V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	order    *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

func NewTTLCache[V any](ttl time.Duration, capacity int) *TTLCache[V] {
	return &TTLCache[V]{
		ttl:      ttl,
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (c *TTLCache[V]) WithClock(now func() time.Time) *TTLCache[V] {
	c.now = now
	return c
}

func (c *TTLCache[V]) Get(_ context.Context, key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}

	e := el.Value.(*entry[V])
	if c.ttl > 0 && c.now().Sub(e.storedAt) >= c.ttl {
		c.order.Remove(el)
		delete(c.items, key)
		return zero, false
	}

	return e.value, true
}

func (c *TTLCache[V]) Set(_ context.Context, key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}

	for c.capacity > 0 && c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry[V]).key)
	}

	c.items[key] = c.order.PushBack(&entry[V]{key: key, value: value, storedAt: c.now()})
}

func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
