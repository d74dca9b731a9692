package dedup

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/lysyi3m/bankwatch/app/cache"
	"github.com/lysyi3m/bankwatch/app/enrich"
	"github.com/lysyi3m/bankwatch/app/news"
)

const (
	// Thresholds for the lexical fallback when a verdict cannot be parsed.
	OnDemandThreshold   = 0.7
	MonitoringThreshold = 0.85

	JudgmentCacheSize = 20000
	JudgmentCacheTTL  = 24 * time.Hour

	dateWindowDays = 3
)

type DuplicateJudge interface {
	IsDuplicate(ctx context.Context, a, b news.EnrichedItem, threshold float64) (bool, error)
}

// Engine collapses enriched items describing the same event into one representative each.
type Engine struct {
	judge    DuplicateJudge
	verdicts cache.Store[bool]
	pairs    *semaphore.Weighted
}

func NewEngine(judge DuplicateJudge, verdicts cache.Store[bool], pairConcurrency int) *Engine {
	if pairConcurrency <= 0 {
		pairConcurrency = 15
	}
	if verdicts == nil {
		verdicts = cache.NewTTLCache[bool](JudgmentCacheTTL, JudgmentCacheSize)
	}
	return &Engine{
		judge:    judge,
		verdicts: verdicts,
		pairs:    semaphore.NewWeighted(int64(pairConcurrency)),
	}
}

type pair struct {
	i, j int
}

// Deduplicate returns one representative per cluster of duplicates, ordered by the first member of
// each cluster. Only context cancellation is reported as an error.
func (e *Engine) Deduplicate(ctx context.Context, items []news.EnrichedItem, threshold float64) ([]news.EnrichedItem, error) {
	if len(items) <= 1 {
		return items, nil
	}

	clusters, err := e.clusters(ctx, items, threshold)
	if err != nil {
		return nil, err
	}

	unique := make([]news.EnrichedItem, 0, len(clusters))
	for _, members := range clusters {
		unique = append(unique, items[representative(items, members)])
	}

	slog.Info("Deduplication completed", "items", len(items), "unique", len(unique))
	return unique, nil
}

// DedupAgainst drops fresh items that duplicate each other or anything in existing, and returns the
// surviving fresh items.
func (e *Engine) DedupAgainst(ctx context.Context, fresh, existing []news.EnrichedItem, threshold float64) ([]news.EnrichedItem, error) {
	if len(fresh) == 0 {
		return nil, nil
	}

	combined := make([]news.EnrichedItem, 0, len(fresh)+len(existing))
	for _, item := range fresh {
		item.FromStorage = false
		combined = append(combined, item)
	}
	for _, item := range existing {
		item.FromStorage = true
		combined = append(combined, item)
	}

	clusters, err := e.clusters(ctx, combined, threshold)
	if err != nil {
		return nil, err
	}

	var survivors []news.EnrichedItem
	for _, members := range clusters {
		stored := false
		for _, idx := range members {
			if combined[idx].FromStorage {
				stored = true
				break
			}
		}
		if stored {
			continue
		}
		survivors = append(survivors, combined[representative(combined, members)])
	}

	slog.Info("Deduplicated against stored items", "fresh", len(fresh), "stored", len(existing), "survivors", len(survivors))
	return survivors, nil
}

func (e *Engine) clusters(ctx context.Context, items []news.EnrichedItem, threshold float64) ([][]int, error) {
	pairs := candidatePairs(items)
	verdicts := make([]bool, len(pairs))

	var calls int
	var mu sync.Mutex

	g := new(errgroup.Group)
	for k, p := range pairs {
		a, b := items[p.i], items[p.j]

		if duplicate, decided := shortcut(a, b); decided {
			verdicts[k] = duplicate
			continue
		}

		key := judgmentKey(a.SummaryHash, b.SummaryHash)
		if duplicate, ok := e.verdicts.Get(ctx, key); ok {
			verdicts[k] = duplicate
			continue
		}

		g.Go(func() error {
			if err := e.pairs.Acquire(ctx, 1); err != nil {
				return err
			}
			defer e.pairs.Release(1)

			mu.Lock()
			calls++
			mu.Unlock()

			duplicate, err := e.judge.IsDuplicate(ctx, a, b, threshold)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("Duplicate judgment failed, treating pair as distinct",
					"fatal", errors.Is(err, enrich.ErrFatal), "error", err)
				return nil
			}

			verdicts[k] = duplicate
			e.verdicts.Set(ctx, key, duplicate)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("Candidate pairs judged", "items", len(items), "pairs", len(pairs), "classifier_calls", calls)

	graph := make(map[int][]int)
	for k, p := range pairs {
		if verdicts[k] {
			graph[p.i] = append(graph[p.i], p.j)
			graph[p.j] = append(graph[p.j], p.i)
		}
	}

	return components(len(items), graph), nil
}

// candidatePairs pairs items within the date window inside each event-type group and the
// catch-all group. Pairs of two stored items are skipped.
func candidatePairs(items []news.EnrichedItem) []pair {
	var order []string
	groups := make(map[string][]int)
	for idx, item := range items {
		eventType := news.NormalizeEventType(item.EventType)
		if !news.Groupable(eventType) {
			continue
		}
		if _, ok := groups[eventType]; !ok {
			order = append(order, eventType)
		}
		groups[eventType] = append(groups[eventType], idx)
	}

	all := make([]int, len(items))
	for idx := range items {
		all[idx] = idx
	}

	seen := make(map[pair]bool)
	var pairs []pair
	collect := func(members []int) {
		for x := 0; x < len(members); x++ {
			for y := x + 1; y < len(members); y++ {
				p := pair{i: members[x], j: members[y]}
				if seen[p] {
					continue
				}
				a, b := items[p.i], items[p.j]
				if a.FromStorage && b.FromStorage {
					continue
				}
				if news.DaysBetween(eventDate(a), eventDate(b)) > dateWindowDays {
					continue
				}
				seen[p] = true
				pairs = append(pairs, p)
			}
		}
	}

	for _, eventType := range order {
		collect(groups[eventType])
	}
	collect(all)

	return pairs
}

// shortcut decides a pair without the classifier where possible. Identical summaries on the same
// event date are duplicates whatever their mentions.
func shortcut(a, b news.EnrichedItem) (duplicate bool, decided bool) {
	if a.SummaryHash != "" && a.SummaryHash == b.SummaryHash && eventDate(a).Equal(eventDate(b)) {
		return true, true
	}
	typeA := news.NormalizeEventType(a.EventType)
	typeB := news.NormalizeEventType(b.EventType)
	if !news.IsGenericType(typeA) && !news.IsGenericType(typeB) && !news.MentionsShared(a.Entities, b.Entities) {
		return false, true
	}
	return false, false
}

// judgmentKey is symmetric in its arguments.
func judgmentKey(a, b string) string {
	hashes := []string{a, b}
	sort.Strings(hashes)
	sum := md5.Sum([]byte(hashes[0] + "|" + hashes[1]))
	return hex.EncodeToString(sum[:])
}

func eventDate(item news.EnrichedItem) time.Time {
	if !item.EventDate.IsZero() {
		return item.EventDate
	}
	return item.Date
}

// components returns connected components in order of their smallest index, members ascending.
func components(n int, graph map[int][]int) [][]int {
	visited := make([]bool, n)
	var result [][]int
	for start := 0; start < n; start++ {
		if visited[start] {
			continue
		}
		var members []int
		stack := []int{start}
		for len(stack) > 0 {
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[node] {
				continue
			}
			visited[node] = true
			members = append(members, node)
			stack = append(stack, graph[node]...)
		}
		sort.Ints(members)
		result = append(result, members)
	}
	return result
}

// representative picks the trusted, most informative, important and most recent member, lowest
// index on ties.
func representative(items []news.EnrichedItem, members []int) int {
	best := members[0]
	for _, idx := range members[1:] {
		if better(items[idx], items[best]) {
			best = idx
		}
	}
	return best
}

func better(a, b news.EnrichedItem) bool {
	if ta, tb := trusted(a), trusted(b); ta != tb {
		return ta
	}
	if a.Informativeness != b.Informativeness {
		return a.Informativeness > b.Informativeness
	}
	if ia, ib := news.IsImportant(a.Category), news.IsImportant(b.Category); ia != ib {
		return ia
	}
	return a.Date.After(b.Date)
}

func trusted(item news.EnrichedItem) bool {
	return news.IsTrustedSource(item.Link) || news.IsTrustedSource(item.Source)
}
