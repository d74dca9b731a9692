package coverage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/bankwatch/app/database"
	"github.com/lysyi3m/bankwatch/app/news"
)

type memoryStore struct {
	mu      sync.Mutex
	records map[string]database.Coverage
	writes  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]database.Coverage)}
}

func (s *memoryStore) GetCoverage(ctx context.Context, entity string) (*database.Coverage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.records[entity]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *memoryStore) UpsertCoverage(ctx context.Context, c database.Coverage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[c.Entity] = c
	s.writes++
	return nil
}

func d(s string) time.Time {
	t, err := news.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func rangesEqual(got []news.DateRange, want ...string) bool {
	if len(got)*2 != len(want) {
		return false
	}
	for i, r := range got {
		if news.FormatDate(r.From) != want[2*i] || news.FormatDate(r.To) != want[2*i+1] {
			return false
		}
	}
	return true
}

func TestGetGapRanges(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	tests := []struct {
		name      string
		record    *database.Coverage
		from, to  string
		freshness time.Duration
		want      []string
	}{
		{
			name: "no record",
			from: "2024-03-01", to: "2024-03-10",
			freshness: time.Hour,
			want:      []string{"2024-03-01", "2024-03-10"},
		},
		{
			name:   "inside and fresh",
			record: &database.Coverage{CoveredFrom: d("2024-03-01"), CoveredTo: d("2024-03-10"), LastRefresh: now.Add(-30 * time.Minute)},
			from:   "2024-03-03", to: "2024-03-08",
			freshness: time.Hour,
			want:      nil,
		},
		{
			name:   "inside and stale",
			record: &database.Coverage{CoveredFrom: d("2024-03-01"), CoveredTo: d("2024-03-10"), LastRefresh: now.Add(-2 * time.Hour)},
			from:   "2024-03-03", to: "2024-03-08",
			freshness: time.Hour,
			want:      []string{"2024-03-03", "2024-03-08"},
		},
		{
			name:   "zero freshness is always stale",
			record: &database.Coverage{CoveredFrom: d("2024-03-01"), CoveredTo: d("2024-03-10"), LastRefresh: now},
			from:   "2024-03-03", to: "2024-03-08",
			freshness: 0,
			want:      []string{"2024-03-03", "2024-03-08"},
		},
		{
			name:   "gaps on both sides",
			record: &database.Coverage{CoveredFrom: d("2024-03-05"), CoveredTo: d("2024-03-07"), LastRefresh: now},
			from:   "2024-03-01", to: "2024-03-10",
			freshness: time.Hour,
			want:      []string{"2024-03-01", "2024-03-04", "2024-03-08", "2024-03-10"},
		},
		{
			name:   "gap after only",
			record: &database.Coverage{CoveredFrom: d("2024-03-01"), CoveredTo: d("2024-03-07"), LastRefresh: now},
			from:   "2024-03-03", to: "2024-03-10",
			freshness: time.Hour,
			want:      []string{"2024-03-08", "2024-03-10"},
		},
		{
			name:   "request entirely before covered",
			record: &database.Coverage{CoveredFrom: d("2024-03-05"), CoveredTo: d("2024-03-07"), LastRefresh: now},
			from:   "2024-02-01", to: "2024-02-10",
			freshness: time.Hour,
			want:      []string{"2024-02-01", "2024-02-10"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			if tt.record != nil {
				tt.record.Entity = "ВТБ"
				store.records["ВТБ"] = *tt.record
			}
			tracker := NewTracker(store).WithClock(func() time.Time { return now })

			gaps, err := tracker.GetGapRanges(ctx, "ВТБ", d(tt.from), d(tt.to), tt.freshness)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if !rangesEqual(gaps, tt.want...) {
				t.Errorf("Expected gaps %v, got %v", tt.want, gaps)
			}
		})
	}
}

func TestGetGapRangesRejectsInvertedRange(t *testing.T) {
	tracker := NewTracker(newMemoryStore())
	if _, err := tracker.GetGapRanges(context.Background(), "ВТБ", d("2024-03-10"), d("2024-03-01"), time.Hour); err == nil {
		t.Error("Expected error for inverted range")
	}
}

func TestCommitWidensCoverage(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	tracker := NewTracker(store).WithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := tracker.Commit(ctx, "ВТБ", d("2024-03-05"), d("2024-03-07")); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := tracker.Commit(ctx, "ВТБ", d("2024-03-01"), d("2024-03-06")); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	record := store.records["ВТБ"]
	if news.FormatDate(record.CoveredFrom) != "2024-03-01" || news.FormatDate(record.CoveredTo) != "2024-03-07" {
		t.Errorf("Expected coverage 2024-03-01..2024-03-07, got %s..%s",
			news.FormatDate(record.CoveredFrom), news.FormatDate(record.CoveredTo))
	}
	if !record.LastRefresh.Equal(now) {
		t.Errorf("Expected last refresh %v, got %v", now, record.LastRefresh)
	}

	gaps, err := tracker.GetGapRanges(ctx, "ВТБ", d("2024-03-02"), d("2024-03-06"), time.Hour)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(gaps) != 0 {
		t.Errorf("Expected no gaps after commit, got %v", gaps)
	}
}

func TestCommitIdempotent(t *testing.T) {
	store := newMemoryStore()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker(store).WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := tracker.Commit(ctx, "ВТБ", d("2024-03-01"), d("2024-03-07")); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
	}

	record := store.records["ВТБ"]
	if news.FormatDate(record.CoveredFrom) != "2024-03-01" || news.FormatDate(record.CoveredTo) != "2024-03-07" {
		t.Errorf("Expected coverage 2024-03-01..2024-03-07, got %s..%s",
			news.FormatDate(record.CoveredFrom), news.FormatDate(record.CoveredTo))
	}
	if !record.LastRefresh.Equal(now) {
		t.Errorf("Expected last refresh %v, got %v", now, record.LastRefresh)
	}

	gaps, err := tracker.GetGapRanges(ctx, "ВТБ", d("2024-03-01"), d("2024-03-07"), time.Hour)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(gaps) != 0 {
		t.Errorf("Expected no gaps after repeated commits, got %v", gaps)
	}
}

func TestCommitConcurrentEntities(t *testing.T) {
	store := newMemoryStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(day int) {
			defer wg.Done()
			date := time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)
			for _, entity := range []string{"ВТБ", "Альфа"} {
				if err := tracker.Commit(ctx, entity, date, date); err != nil {
					t.Errorf("Commit failed for %s: %v", entity, err)
				}
			}
		}(i)
	}
	wg.Wait()

	for _, entity := range []string{"ВТБ", "Альфа"} {
		record := store.records[entity]
		if news.FormatDate(record.CoveredFrom) != "2024-03-01" || news.FormatDate(record.CoveredTo) != "2024-03-20" {
			t.Errorf("Expected %s coverage to span all commits, got %s..%s", entity,
				news.FormatDate(record.CoveredFrom), news.FormatDate(record.CoveredTo))
		}
	}
}
