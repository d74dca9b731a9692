package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/bankwatch/app/coverage"
	"github.com/lysyi3m/bankwatch/app/database"
	"github.com/lysyi3m/bankwatch/app/news"
	"github.com/lysyi3m/bankwatch/app/producer"
)

var (
	// ErrAllProducersFailed is returned when no producer could be read for a request.
	ErrAllProducersFailed = errors.New("all producers failed")
	// ErrPartialFetch is returned by FetchGaps when some gaps were fetched and others failed.
	ErrPartialFetch = errors.New("some gaps failed")
)

const monitoringCoveragePrefix = "monitoring:"

// DefaultRejectedHold bounds how long a producer that rejected credentials stays excluded when no
// pass resets it.
const DefaultRejectedHold = 15 * time.Minute

type Coordinator struct {
	mu        sync.RWMutex
	producers []producer.Producer
	coverage  *coverage.Tracker
	rawItems  database.RawItemRepository
	timeout   time.Duration
	freshness time.Duration

	// rejected maps producer names to when they answered 401 or 403.
	rejected     map[string]time.Time
	rejectedHold time.Duration
	now          func() time.Time
}

func NewCoordinator(producers []producer.Producer, tracker *coverage.Tracker, rawItems database.RawItemRepository, timeout, freshness time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Coordinator{
		producers: producers,
		coverage:  tracker,
		rawItems:  rawItems,
		timeout:   timeout,
		freshness: freshness,

		rejected:     make(map[string]time.Time),
		rejectedHold: DefaultRejectedHold,
		now:          time.Now,
	}
}

// ResetPass readmits producers excluded for rejected credentials.
func (c *Coordinator) ResetPass() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected = make(map[string]time.Time)
}

// active returns the producers not excluded for rejected credentials.
func (c *Coordinator) active() []producer.Producer {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	var active []producer.Producer
	for _, p := range c.producers {
		if at, ok := c.rejected[p.Name()]; ok && now.Sub(at) < c.rejectedHold {
			continue
		}
		active = append(active, p)
	}
	return active
}

func (c *Coordinator) reject(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rejected[name]; !ok {
		slog.Error("Producer rejected credentials, excluding it until next pass", "producer", name, "error", err)
	}
	c.rejected[name] = c.now()
}

func (c *Coordinator) ProducerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.producers)
}

// SetProducers replaces the producer set. Fetches already running keep the previous set.
func (c *Coordinator) SetProducers(producers []producer.Producer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.producers = producers
}

// Fetch queries every producer concurrently and merges their items by canonical link, first seen
// wins. A failing producer is logged and contributes nothing; the error is returned only when every
// producer failed. A producer that rejects credentials is skipped until ResetPass.
func (c *Coordinator) Fetch(ctx context.Context, entity news.Entity, r news.DateRange, topic string, monitoring bool) ([]news.RawItem, error) {
	if c.ProducerCount() == 0 {
		return nil, nil
	}

	producers := c.active()
	if len(producers) == 0 {
		return nil, fmt.Errorf("%w for %s %s: every producer rejected credentials", ErrAllProducersFailed, entity.Name, r)
	}

	results := make([][]news.RawItem, len(producers))
	var failed int
	var mu sync.Mutex

	g := new(errgroup.Group)
	for i, p := range producers {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			start := time.Now()
			items, err := p.Fetch(pctx, producer.Query{Entity: entity, Range: r, Topic: topic})
			if err != nil {
				slog.Warn("Producer failed", "producer", p.Name(), "entity", entity.Name, "range", r.String(), "error", err)
				if errors.Is(err, producer.ErrUnauthorized) {
					c.reject(p.Name(), err)
				}
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}

			slog.Debug("Producer finished", "producer", p.Name(), "entity", entity.Name, "items", len(items), "duration", time.Since(start))
			results[i] = items
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed == len(producers) {
		return nil, fmt.Errorf("%w for %s %s", ErrAllProducersFailed, entity.Name, r)
	}

	seen := make(map[string]bool)
	var merged []news.RawItem
	for _, items := range results {
		for _, item := range items {
			key := CanonicalLink(item.Link)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			item.Topic = topic
			item.Monitoring = monitoring
			merged = append(merged, item)
		}
	}

	slog.Info("Fan-out completed",
		"entity", entity.Name,
		"range", r.String(),
		"producers", len(producers),
		"failed", failed,
		"items", len(merged))

	return merged, nil
}

// GapResult summarizes an incremental on-demand fetch.
type GapResult struct {
	Gaps    []news.DateRange
	Fetched int
	Stored  int
}

// FetchGaps fetches only the parts of r not yet covered and persists the raw items. The request is
// committed to coverage only when every gap was fetched. When some gaps failed the items of the
// others are still stored and ErrPartialFetch is returned with the result.
func (c *Coordinator) FetchGaps(ctx context.Context, entity news.Entity, r news.DateRange, topic string) (GapResult, error) {
	gaps, err := c.coverage.GetGapRanges(ctx, entity.Name, r.From, r.To, c.freshness)
	if err != nil {
		return GapResult{}, fmt.Errorf("failed to compute gaps: %w", err)
	}

	result := GapResult{Gaps: gaps}
	if len(gaps) == 0 {
		slog.Debug("Range already covered", "entity", entity.Name, "range", r.String())
		return result, nil
	}

	var failed []news.DateRange
	var lastErr error
	for _, gap := range gaps {
		items, err := c.Fetch(ctx, entity, gap, topic, false)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			failed = append(failed, gap)
			lastErr = err
			continue
		}

		stored, err := c.rawItems.InsertRawItems(ctx, items)
		if err != nil {
			return result, fmt.Errorf("failed to store raw items: %w", err)
		}
		result.Fetched += len(items)
		result.Stored += stored
	}

	if len(failed) == len(gaps) {
		return result, lastErr
	}
	if len(failed) > 0 {
		slog.Warn("Coverage not committed, some gaps failed", "entity", entity.Name, "range", r.String(), "failed", len(failed))
		return result, fmt.Errorf("%w for %s: %d of %d (first %s): %w", ErrPartialFetch, entity.Name, len(failed), len(gaps), failed[0], lastErr)
	}

	if err := c.coverage.Commit(ctx, entity.Name, r.From, r.To); err != nil {
		return result, err
	}

	return result, nil
}

// FetchWindow fetches the trailing window ending at to for monitoring. Freshness is never consulted
// and monitoring coverage is tracked apart from on-demand coverage.
func (c *Coordinator) FetchWindow(ctx context.Context, entity news.Entity, from, to time.Time) ([]news.RawItem, error) {
	r := news.NewDateRange(from, to)
	items, err := c.Fetch(ctx, entity, r, "", true)
	if err != nil {
		return nil, err
	}

	if err := c.coverage.Commit(ctx, monitoringCoveragePrefix+entity.Name, r.From, r.To); err != nil {
		slog.Warn("Failed to commit monitoring coverage", "entity", entity.Name, "error", err)
	}

	return items, nil
}

var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "fbclid", "yclid"}

// CanonicalLink lowercases scheme and host, drops fragments, tracking parameters and trailing slashes.
func CanonicalLink(link string) string {
	link = strings.TrimSpace(link)
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return link
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""

	query := u.Query()
	for _, param := range trackingParams {
		query.Del(param)
	}
	u.RawQuery = query.Encode()
	u.Path = strings.TrimRight(u.Path, "/")

	return u.String()
}
