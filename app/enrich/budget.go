package enrich

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Budget is an adaptive concurrency limit for remote model calls.
// Rate-limit signals shrink it by one down to the floor; after a quiet cooldown it grows back by one
// per cooldown up to the ceiling.
type Budget struct {
	mu            sync.Mutex
	limit         int
	floor         int
	ceiling       int
	inFlight      int
	cooldown      time.Duration
	lastRateLimit time.Time
	changed       chan struct{}
	now           func() time.Time
}

func NewBudget(initial, floor, ceiling int) *Budget {
	if floor < 1 {
		floor = 1
	}
	if ceiling < floor {
		ceiling = floor
	}
	initial = max(floor, min(initial, ceiling))

	return &Budget{
		limit:    initial,
		floor:    floor,
		ceiling:  ceiling,
		cooldown: 60 * time.Second,
		changed:  make(chan struct{}),
		now:      time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (b *Budget) WithClock(now func() time.Time) *Budget {
	b.now = now
	return b
}

// Acquire blocks until a slot is free or ctx is done.
func (b *Budget) Acquire(ctx context.Context) error {
	for {
		b.mu.Lock()
		if b.inFlight < b.limit {
			b.inFlight++
			b.mu.Unlock()
			return nil
		}
		wait := b.changed
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

func (b *Budget) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inFlight > 0 {
		b.inFlight--
	}
	b.broadcast()
}

func (b *Budget) RecordRateLimited() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastRateLimit = b.now()
	if b.limit > b.floor {
		b.limit--
		slog.Warn("Enrichment budget reduced", "limit", b.limit)
	}
}

// MaybeGrow raises the limit by one when the cooldown has passed since the last rate-limit
// signal. Each growth step restarts the cooldown.
func (b *Budget) MaybeGrow() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lastRateLimit.IsZero() || b.limit >= b.ceiling {
		return
	}

	now := b.now()
	if now.Sub(b.lastRateLimit) < b.cooldown {
		return
	}

	b.limit++
	b.lastRateLimit = now
	if b.limit == b.ceiling {
		b.lastRateLimit = time.Time{}
	}
	slog.Info("Enrichment budget increased", "limit", b.limit)
	b.broadcast()
}

func (b *Budget) Limit() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit
}

func (b *Budget) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}

func (b *Budget) broadcast() {
	close(b.changed)
	b.changed = make(chan struct{})
}
