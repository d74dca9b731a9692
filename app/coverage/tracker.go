package coverage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/bankwatch/app/database"
	"github.com/lysyi3m/bankwatch/app/news"
)

// Tracker records which date range has been fetched per entity and when it was last refreshed.
type Tracker struct {
	store database.CoverageRepository
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	now   func() time.Time
}

func NewTracker(store database.CoverageRepository) *Tracker {
	return &Tracker{
		store: store,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) entityLock(entity string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[entity]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[entity] = lock
	}
	return lock
}

// Get returns the stored coverage, or nil when the entity was never fetched.
func (t *Tracker) Get(ctx context.Context, entity string) (*database.Coverage, error) {
	return t.store.GetCoverage(ctx, entity)
}

// GetGapRanges returns the parts of [from, to] that still need fetching, in date order.
// A request inside the covered range is served from storage while the last refresh is younger
// than freshness. A zero freshness treats every record as stale.
func (t *Tracker) GetGapRanges(ctx context.Context, entity string, from, to time.Time, freshness time.Duration) ([]news.DateRange, error) {
	request := news.NewDateRange(from, to)
	if !request.Valid() {
		return nil, fmt.Errorf("invalid date range %s", request)
	}

	lock := t.entityLock(entity)
	lock.Lock()
	defer lock.Unlock()

	record, err := t.store.GetCoverage(ctx, entity)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return []news.DateRange{request}, nil
	}

	covered := news.NewDateRange(record.CoveredFrom, record.CoveredTo)
	fresh := freshness > 0 && t.now().Sub(record.LastRefresh) < freshness

	if covered.Covers(request) {
		if fresh {
			return nil, nil
		}
		return []news.DateRange{request}, nil
	}

	var gaps []news.DateRange
	if request.From.Before(covered.From) {
		end := covered.From.AddDate(0, 0, -1)
		if request.To.Before(end) {
			end = request.To
		}
		gaps = append(gaps, news.DateRange{From: request.From, To: end})
	}
	if request.To.After(covered.To) {
		start := covered.To.AddDate(0, 0, 1)
		if request.From.After(start) {
			start = request.From
		}
		gaps = append(gaps, news.DateRange{From: start, To: request.To})
	}

	return gaps, nil
}

// Commit widens the covered range to include [from, to] and stamps the refresh time.
// Commits for one entity are serialized.
func (t *Tracker) Commit(ctx context.Context, entity string, from, to time.Time) error {
	request := news.NewDateRange(from, to)
	if !request.Valid() {
		return fmt.Errorf("invalid date range %s", request)
	}

	lock := t.entityLock(entity)
	lock.Lock()
	defer lock.Unlock()

	record, err := t.store.GetCoverage(ctx, entity)
	if err != nil {
		return err
	}

	next := database.Coverage{
		Entity:      entity,
		CoveredFrom: request.From,
		CoveredTo:   request.To,
		LastRefresh: t.now().UTC(),
	}
	if record != nil {
		if record.CoveredFrom.Before(next.CoveredFrom) {
			next.CoveredFrom = news.Day(record.CoveredFrom)
		}
		if record.CoveredTo.After(next.CoveredTo) {
			next.CoveredTo = news.Day(record.CoveredTo)
		}
	}

	if err := t.store.UpsertCoverage(ctx, next); err != nil {
		return fmt.Errorf("failed to commit coverage for %s: %w", entity, err)
	}

	slog.Debug("Coverage committed",
		"entity", entity,
		"from", news.FormatDate(next.CoveredFrom),
		"to", news.FormatDate(next.CoveredTo))
	return nil
}
