package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/bankwatch/app/database"
	"github.com/lysyi3m/bankwatch/app/dedup"
	"github.com/lysyi3m/bankwatch/app/fanout"
	"github.com/lysyi3m/bankwatch/app/news"
)

var ErrInvalidRange = errors.New("invalid date range")

type EntityLookup interface {
	GetEntity(name string) (news.Entity, error)
}

type GapFetcher interface {
	FetchGaps(ctx context.Context, entity news.Entity, r news.DateRange, topic string) (fanout.GapResult, error)
}

type Enricher interface {
	EnrichAll(ctx context.Context, entity news.Entity, raws []news.RawItem, topic string) ([]news.EnrichedItem, error)
}

type Deduplicator interface {
	Deduplicate(ctx context.Context, items []news.EnrichedItem, threshold float64) ([]news.EnrichedItem, error)
}

// Result is the answer to an on-demand request.
type Result struct {
	Entity string              `json:"entity"`
	Range  news.DateRange      `json:"range"`
	Topic  string              `json:"topic,omitempty"`
	Items  []news.EnrichedItem `json:"items"`
	// Stale is set when fetching failed, fully or for some gaps, so the items may be incomplete.
	Stale bool `json:"stale"`
	// Cached is set when the range was covered and fresh, so nothing was fetched.
	Cached   bool          `json:"cached"`
	Gaps     int           `json:"gaps"`
	Fetched  int           `json:"fetched"`
	Duration time.Duration `json:"duration"`
}

// NewsService runs the on-demand flow: incremental fetch, enrichment, dedup and per-event capping.
type NewsService struct {
	entities EntityLookup
	fetcher  GapFetcher
	rawItems database.RawItemRepository
	enriched database.EnrichedItemRepository
	analyzer Enricher
	dedup    Deduplicator
	perEvent int
}

func NewNewsService(entities EntityLookup, fetcher GapFetcher, rawItems database.RawItemRepository, enriched database.EnrichedItemRepository, analyzer Enricher, deduplicator Deduplicator) *NewsService {
	return &NewsService{
		entities: entities,
		fetcher:  fetcher,
		rawItems: rawItems,
		enriched: enriched,
		analyzer: analyzer,
		dedup:    deduplicator,
		perEvent: dedup.DefaultPerEvent,
	}
}

// Fetch returns unique analyzed items for entityName in r. An empty result is not an error. When
// fetching fails the stored items are returned with Stale set.
func (s *NewsService) Fetch(ctx context.Context, entityName string, r news.DateRange, topic string) (*Result, error) {
	start := time.Now()

	if !r.Valid() {
		return nil, fmt.Errorf("%w %s", ErrInvalidRange, r)
	}

	entity, err := s.entities.GetEntity(entityName)
	if err != nil {
		return nil, err
	}

	result := &Result{Entity: entity.Name, Range: r, Topic: topic}
	defer func() { result.Duration = time.Since(start) }()

	gaps, err := s.fetcher.FetchGaps(ctx, entity, r, topic)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, fanout.ErrPartialFetch) {
			slog.Warn("Fetch failed, serving stored items", "entity", entity.Name, "range", r.String(), "error", err)
			return s.stale(ctx, result)
		}
		slog.Warn("Fetch partially failed, serving what was fetched", "entity", entity.Name, "range", r.String(), "error", err)
		result.Stale = true
	}
	result.Gaps = len(gaps.Gaps)
	result.Fetched = gaps.Fetched

	if len(gaps.Gaps) == 0 {
		stored, err := s.enriched.GetEnrichedItems(ctx, entity.Name, r, topic, false)
		if err != nil {
			return nil, err
		}
		if len(stored) > 0 {
			result.Items = stored
			result.Cached = true
			slog.Info("Served from storage", "entity", entity.Name, "range", r.String(), "items", len(stored))
			return result, nil
		}
	}

	raws, err := s.rawItems.GetRawItems(ctx, entity.Name, r, false)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		result.Items = []news.EnrichedItem{}
		return result, nil
	}

	enriched, err := s.analyzer.EnrichAll(ctx, entity, raws, topic)
	if err != nil {
		return nil, err
	}

	unique, err := s.dedup.Deduplicate(ctx, enriched, dedup.OnDemandThreshold)
	if err != nil {
		return nil, err
	}
	unique = dedup.CapPerEvent(unique, s.perEvent)

	if _, err := s.enriched.InsertEnrichedItems(ctx, unique); err != nil {
		slog.Error("Failed to store enriched items", "entity", entity.Name, "error", err)
	}

	if unique == nil {
		unique = []news.EnrichedItem{}
	}
	result.Items = unique

	slog.Info("On-demand fetch completed",
		"entity", entity.Name,
		"range", r.String(),
		"topic", topic,
		"gaps", result.Gaps,
		"raw", len(raws),
		"enriched", len(enriched),
		"unique", len(unique),
		"duration", time.Since(start))

	return result, nil
}

func (s *NewsService) stale(ctx context.Context, result *Result) (*Result, error) {
	stored, err := s.enriched.GetEnrichedItems(ctx, result.Entity, result.Range, result.Topic, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored items: %w", err)
	}
	if stored == nil {
		stored = []news.EnrichedItem{}
	}
	result.Items = stored
	result.Stale = true
	return result, nil
}
