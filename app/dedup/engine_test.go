package dedup

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/bankwatch/app/cache"
	"github.com/lysyi3m/bankwatch/app/enrich"
	"github.com/lysyi3m/bankwatch/app/news"
)

type fakeJudge struct {
	mu         sync.Mutex
	duplicates map[string]bool
	err        error
	calls      int
}

func newFakeJudge(pairs ...[2]string) *fakeJudge {
	j := &fakeJudge{duplicates: make(map[string]bool)}
	for _, p := range pairs {
		j.duplicates[p[0]+"|"+p[1]] = true
		j.duplicates[p[1]+"|"+p[0]] = true
	}
	return j
}

func (j *fakeJudge) IsDuplicate(ctx context.Context, a, b news.EnrichedItem, threshold float64) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls++
	if j.err != nil {
		return false, j.err
	}
	return j.duplicates[a.Summary+"|"+b.Summary], nil
}

func (j *fakeJudge) callCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.calls
}

func day(s string) time.Time {
	t, err := news.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func item(summary, link, date string, informativeness int) news.EnrichedItem {
	return news.EnrichedItem{
		Entity:          "Сбербанк",
		Summary:         summary,
		EventType:       "штраф",
		EventDate:       day(date),
		Date:            day(date),
		Entities:        []string{"Сбербанк", "ЦБ"},
		Link:            link,
		Category:        news.CategoryGeneric,
		Informativeness: informativeness,
		SummaryHash:     news.ContentHash(summary),
	}
}

func summaries(items []news.EnrichedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Summary
	}
	return out
}

func newTestEngine(judge DuplicateJudge) *Engine {
	return NewEngine(judge, cache.NewTTLCache[bool](time.Hour, 100), 4)
}

func TestDeduplicateClustersTransitively(t *testing.T) {
	items := []news.EnrichedItem{
		item("A", "https://tass.ru/a", "2024-03-05", 50),
		item("B", "https://rbc.ru/b", "2024-03-06", 80),
		item("C", "https://rbc.ru/c", "2024-03-05", 40),
		item("D", "https://lenta.ru/d", "2024-03-07", 90),
	}
	judge := newFakeJudge([2]string{"A", "B"}, [2]string{"B", "D"})
	engine := newTestEngine(judge)

	unique, err := engine.Deduplicate(context.Background(), items, OnDemandThreshold)
	if err != nil {
		t.Fatalf("Deduplicate failed: %v", err)
	}

	got := summaries(unique)
	if len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Errorf("Expected [A C] with trusted representative first, got %v", got)
	}
}

func TestDeduplicateRepresentativeRanking(t *testing.T) {
	important := item("B", "https://rbc.ru/b", "2024-03-05", 50)
	important.Category = news.CategoryRisk
	recent := item("C", "https://rbc.ru/c", "2024-03-06", 50)

	tests := []struct {
		name  string
		items []news.EnrichedItem
		want  string
	}{
		{
			name:  "informativeness wins without trusted source",
			items: []news.EnrichedItem{item("A", "https://rbc.ru/a", "2024-03-05", 40), item("B", "https://rbc.ru/b", "2024-03-05", 60)},
			want:  "B",
		},
		{
			name:  "important category breaks informativeness tie",
			items: []news.EnrichedItem{item("A", "https://rbc.ru/a", "2024-03-05", 50), important},
			want:  "B",
		},
		{
			name:  "most recent date breaks remaining tie",
			items: []news.EnrichedItem{item("A", "https://rbc.ru/a", "2024-03-05", 50), recent},
			want:  "C",
		},
		{
			name:  "lowest index on full tie",
			items: []news.EnrichedItem{item("A", "https://rbc.ru/a", "2024-03-05", 50), item("B", "https://rbc.ru/b", "2024-03-05", 50)},
			want:  "A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			judge := newFakeJudge([2]string{tt.items[0].Summary, tt.items[1].Summary})
			unique, err := newTestEngine(judge).Deduplicate(context.Background(), tt.items, OnDemandThreshold)
			if err != nil {
				t.Fatalf("Deduplicate failed: %v", err)
			}
			if len(unique) != 1 || unique[0].Summary != tt.want {
				t.Errorf("Expected representative %s, got %v", tt.want, summaries(unique))
			}
		})
	}
}

func TestDeduplicateFastRejectAndDateWindow(t *testing.T) {
	a := item("A", "https://rbc.ru/a", "2024-03-05", 50)
	b := item("B", "https://rbc.ru/b", "2024-03-05", 50)
	b.Entities = []string{"ВТБ"}
	c := item("C", "https://rbc.ru/c", "2024-03-10", 50)

	judge := newFakeJudge([2]string{"A", "B"}, [2]string{"A", "C"})
	unique, err := newTestEngine(judge).Deduplicate(context.Background(), []news.EnrichedItem{a, b, c}, OnDemandThreshold)
	if err != nil {
		t.Fatalf("Deduplicate failed: %v", err)
	}

	if len(unique) != 3 {
		t.Errorf("Expected all items to survive, got %v", summaries(unique))
	}
	if judge.callCount() != 0 {
		t.Errorf("Expected no classifier calls, got %d", judge.callCount())
	}
}

func TestDeduplicateGenericTypesSkipFastReject(t *testing.T) {
	a := item("A", "https://rbc.ru/a", "2024-03-05", 50)
	a.EventType = news.EventTypeGeneric
	b := item("B", "https://rbc.ru/b", "2024-03-05", 50)
	b.Entities = []string{"ВТБ"}

	judge := newFakeJudge([2]string{"A", "B"})
	unique, err := newTestEngine(judge).Deduplicate(context.Background(), []news.EnrichedItem{a, b}, OnDemandThreshold)
	if err != nil {
		t.Fatalf("Deduplicate failed: %v", err)
	}

	if len(unique) != 1 {
		t.Errorf("Expected generic pair to reach the classifier and merge, got %v", summaries(unique))
	}
}

func TestDeduplicateHashShortcut(t *testing.T) {
	a := item("Одинаковое резюме", "https://rbc.ru/a", "2024-03-05", 50)
	b := item("Одинаковое резюме", "https://lenta.ru/b", "2024-03-05", 60)

	judge := newFakeJudge()
	unique, err := newTestEngine(judge).Deduplicate(context.Background(), []news.EnrichedItem{a, b}, OnDemandThreshold)
	if err != nil {
		t.Fatalf("Deduplicate failed: %v", err)
	}

	if len(unique) != 1 || unique[0].Link != "https://lenta.ru/b" {
		t.Errorf("Expected the more informative copy, got %+v", unique)
	}
	if judge.callCount() != 0 {
		t.Errorf("Expected no classifier calls, got %d", judge.callCount())
	}
}

func TestDeduplicateHashShortcutIgnoresMentions(t *testing.T) {
	a := item("Банк оштрафован", "https://rbc.ru/a", "2024-03-05", 50)
	a.Entities = []string{"Сбер"}
	b := item("Банк оштрафован", "https://lenta.ru/b", "2024-03-05", 50)
	b.Entities = []string{"Центробанк"}

	judge := newFakeJudge()
	unique, err := newTestEngine(judge).Deduplicate(context.Background(), []news.EnrichedItem{a, b}, OnDemandThreshold)
	if err != nil {
		t.Fatalf("Deduplicate failed: %v", err)
	}

	if len(unique) != 1 {
		t.Errorf("Expected identical summaries to merge, got %v", summaries(unique))
	}
	if judge.callCount() != 0 {
		t.Errorf("Expected no classifier calls, got %d", judge.callCount())
	}
}

func TestDeduplicateFineReportedThreeTimes(t *testing.T) {
	vtb := item("ВТБ оштрафован", "https://rbc.ru/vtb", "2024-03-05", 70)
	vtb.Entities = []string{"ВТБ", "ЦБ"}
	office := item("Сбербанк открыл офис", "https://rbc.ru/office", "2024-03-05", 30)
	office.EventType = news.EventTypeGeneric

	items := []news.EnrichedItem{
		item("ЦБ оштрафовал Сбербанк", "https://rbc.ru/x1", "2024-03-05", 60),
		item("Сбербанк получил штраф", "https://interfax.ru/x2", "2024-03-05", 40),
		vtb,
		item("Штраф для Сбербанка", "https://lenta.ru/x3", "2024-03-06", 80),
		office,
	}
	judge := newFakeJudge(
		[2]string{"ЦБ оштрафовал Сбербанк", "Сбербанк получил штраф"},
		[2]string{"ЦБ оштрафовал Сбербанк", "Штраф для Сбербанка"},
		[2]string{"Сбербанк получил штраф", "Штраф для Сбербанка"},
	)

	unique, err := newTestEngine(judge).Deduplicate(context.Background(), items, OnDemandThreshold)
	if err != nil {
		t.Fatalf("Deduplicate failed: %v", err)
	}

	got := summaries(unique)
	if len(got) != 3 {
		t.Fatalf("Expected 3 unique items, got %v", got)
	}
	if got[0] != "Сбербанк получил штраф" {
		t.Errorf("Expected the trusted copy to represent the fine, got '%s'", got[0])
	}
	if got[1] != "ВТБ оштрафован" || got[2] != "Сбербанк открыл офис" {
		t.Errorf("Expected unrelated items to survive in order, got %v", got[1:])
	}
}

func TestDeduplicateCachesVerdicts(t *testing.T) {
	items := []news.EnrichedItem{
		item("A", "https://rbc.ru/a", "2024-03-05", 50),
		item("B", "https://rbc.ru/b", "2024-03-05", 50),
	}
	judge := newFakeJudge([2]string{"A", "B"})
	engine := newTestEngine(judge)

	for i := 0; i < 2; i++ {
		if _, err := engine.Deduplicate(context.Background(), items, OnDemandThreshold); err != nil {
			t.Fatalf("Deduplicate failed: %v", err)
		}
	}

	if judge.callCount() != 1 {
		t.Errorf("Expected 1 classifier call, got %d", judge.callCount())
	}
}

func TestDeduplicateFatalVerdictNotCached(t *testing.T) {
	items := []news.EnrichedItem{
		item("A", "https://rbc.ru/a", "2024-03-05", 50),
		item("B", "https://rbc.ru/b", "2024-03-05", 50),
	}
	judge := newFakeJudge([2]string{"A", "B"})
	judge.err = fmt.Errorf("%w: gave up after 10 attempts", enrich.ErrFatal)
	engine := newTestEngine(judge)

	unique, err := engine.Deduplicate(context.Background(), items, OnDemandThreshold)
	if err != nil {
		t.Fatalf("Deduplicate failed: %v", err)
	}
	if len(unique) != 2 {
		t.Errorf("Expected failed pair to count as distinct, got %v", summaries(unique))
	}

	judge.err = nil
	unique, err = engine.Deduplicate(context.Background(), items, OnDemandThreshold)
	if err != nil {
		t.Fatalf("Deduplicate failed: %v", err)
	}
	if len(unique) != 1 || judge.callCount() != 2 {
		t.Errorf("Expected the pair to be judged again, got %d items after %d calls", len(unique), judge.callCount())
	}
}

func TestDeduplicateCancelled(t *testing.T) {
	items := []news.EnrichedItem{
		item("A", "https://rbc.ru/a", "2024-03-05", 50),
		item("B", "https://rbc.ru/b", "2024-03-05", 50),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestEngine(newFakeJudge()).Deduplicate(ctx, items, OnDemandThreshold); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestDedupAgainst(t *testing.T) {
	stored := []news.EnrichedItem{item("S", "https://tass.ru/s", "2024-03-04", 50)}
	fresh := []news.EnrichedItem{
		item("F1", "https://rbc.ru/f1", "2024-03-05", 90),
		item("F2", "https://rbc.ru/f2", "2024-03-05", 50),
		item("F3", "https://lenta.ru/f3", "2024-03-05", 70),
	}
	judge := newFakeJudge([2]string{"F1", "S"}, [2]string{"F2", "F3"})

	survivors, err := newTestEngine(judge).DedupAgainst(context.Background(), fresh, stored, MonitoringThreshold)
	if err != nil {
		t.Fatalf("DedupAgainst failed: %v", err)
	}

	got := summaries(survivors)
	if len(got) != 1 || got[0] != "F3" {
		t.Errorf("Expected [F3], got %v", got)
	}
	for _, s := range survivors {
		if s.FromStorage {
			t.Errorf("Expected only fresh items, got stored %s", s.Summary)
		}
	}
}

func TestJudgmentKeySymmetric(t *testing.T) {
	if judgmentKey("a", "b") != judgmentKey("b", "a") {
		t.Error("Expected judgment key to ignore argument order")
	}
	if judgmentKey("a", "b") == judgmentKey("a", "c") {
		t.Error("Expected different pairs to get different keys")
	}
}

func TestCapPerEvent(t *testing.T) {
	important := item("C", "https://rbc.ru/c", "2024-03-05", 50)
	important.Category = news.CategoryImportant
	items := []news.EnrichedItem{
		item("A", "https://rbc.ru/a", "2024-03-05", 50),
		item("B", "https://interfax.ru/b", "2024-03-05", 10),
		important,
		item("D", "https://rbc.ru/d", "2024-03-06", 10),
	}

	capped := CapPerEvent(items, DefaultPerEvent)

	got := summaries(capped)
	if len(got) != 3 || got[0] != "B" || got[1] != "C" || got[2] != "D" {
		t.Errorf("Expected [B C D], got %v", got)
	}
}
