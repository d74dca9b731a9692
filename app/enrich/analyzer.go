package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/bankwatch/app/news"
)

var irrelevantIndicators = []string{"отсутствуют релевантные события", "нет событий", "отсутствует информация"}

// Analyzer turns raw mentions into enriched items using four classification prompts per item.
type Analyzer struct {
	classifier Classifier
	maxAge     time.Duration
	workers    int
	now        func() time.Time
}

func NewAnalyzer(classifier Classifier) *Analyzer {
	return &Analyzer{
		classifier: classifier,
		maxAge:     30 * 24 * time.Hour,
		workers:    20,
		now:        time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	a.now = now
	return a
}

// Enrich returns nil without error when the item is filtered out as irrelevant.
func (a *Analyzer) Enrich(ctx context.Context, entity news.Entity, raw news.RawItem, topic string) (*news.EnrichedItem, error) {
	if strings.TrimSpace(raw.Text) == "" || raw.Date.IsZero() {
		slog.Debug("Item skipped: missing text or date", "entity", entity.Name, "link", raw.Link)
		return nil, nil
	}
	if !news.TopicRelevant(raw.Text, topic) {
		slog.Debug("Item skipped: topic not found", "entity", entity.Name, "topic", topic, "link", raw.Link)
		return nil, nil
	}
	if !news.MatchesAliases(raw.Text, entity.SearchTerms()) {
		slog.Debug("Item skipped: entity not mentioned", "entity", entity.Name, "link", raw.Link)
		return nil, nil
	}
	if !news.HasFinancialKeyword(raw.Text) {
		slog.Debug("Item skipped: no financial terms", "entity", entity.Name, "link", raw.Link)
		return nil, nil
	}
	if raw.Date.Before(news.Day(a.now()).Add(-a.maxAge)) {
		slog.Debug("Item skipped: too old", "entity", entity.Name, "date", news.FormatDate(raw.Date), "link", raw.Link)
		return nil, nil
	}

	prompts := []string{
		relevancePrompt(entity.Name, topic, raw.Text),
		summaryPrompt(entity.Name, raw.Text, news.FormatDate(raw.Date)),
		categoryPrompt(entity.Name, raw.Text),
		sentimentPrompt(entity.Name, raw.Text),
	}
	responses := make([]string, len(prompts))

	g, gctx := errgroup.WithContext(ctx)
	for i, prompt := range prompts {
		g.Go(func() error {
			response, err := a.classifier.Classify(gctx, prompt)
			if err != nil {
				return err
			}
			responses[i] = response
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to classify item %s: %w", raw.Link, err)
	}

	relevant, err := ParseRelevance(responses[0])
	if err != nil || !relevant {
		slog.Debug("Item skipped: not relevant", "entity", entity.Name, "link", raw.Link, "response", responses[0])
		return nil, nil
	}

	summary, err := ParseSummary(responses[1])
	if err != nil {
		slog.Warn("Item skipped: unparsable summary", "entity", entity.Name, "link", raw.Link, "error", err)
		return nil, nil
	}

	normalizedSummary := news.NormalizeText(summary.Text)
	for _, indicator := range irrelevantIndicators {
		if strings.Contains(normalizedSummary, indicator) {
			slog.Debug("Item skipped: summary reports no events", "entity", entity.Name, "link", raw.Link)
			return nil, nil
		}
	}

	text := summary.Text
	if !news.MatchesAliases(text, entity.SearchTerms()) {
		text = entity.Name + ": " + text
	}

	category, err := ParseCategory(responses[2])
	if err != nil {
		slog.Warn("Unparsable category, using generic", "entity", entity.Name, "link", raw.Link, "error", err)
		category = news.CategoryGeneric
	}

	sentiment, err := ParseSentiment(responses[3])
	if err != nil {
		slog.Warn("Unparsable sentiment, using neutral", "entity", entity.Name, "link", raw.Link, "error", err)
		sentiment = Sentiment{Label: news.SentimentNeutral}
	}

	eventDate, err := news.ParseDate(summary.EventDate)
	if err != nil {
		eventDate = raw.Date
	}

	entities := summary.Entities
	if len(entities) == 0 {
		entities = Keywords(raw.Text, 3)
	}

	regNumber := raw.RegNumber
	if regNumber == "" {
		regNumber = entity.RegNumber
	}

	return &news.EnrichedItem{
		Entity:          entity.Name,
		RegNumber:       regNumber,
		Text:            raw.Text,
		Summary:         text,
		EventType:       news.NormalizeEventType(summary.EventType),
		EventDate:       eventDate,
		Entities:        entities,
		Date:            raw.Date,
		Link:            raw.Link,
		Source:          raw.Source,
		Category:        category,
		Sentiment:       sentiment.Label,
		Informativeness: news.Informativeness(raw.Text),
		SummaryHash:     news.ContentHash(text),
		Topic:           topic,
		Monitoring:      raw.Monitoring,
	}, nil
}

// EnrichAll enriches items concurrently and keeps input order. Per-item failures are logged and
// the item dropped; only cancellation of ctx is returned.
func (a *Analyzer) EnrichAll(ctx context.Context, entity news.Entity, raws []news.RawItem, topic string) ([]news.EnrichedItem, error) {
	results := make([]*news.EnrichedItem, len(raws))
	var failed int
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(a.workers)
	for i, raw := range raws {
		g.Go(func() error {
			item, err := a.Enrich(ctx, entity, raw, topic)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Warn("Failed to enrich item", "entity", entity.Name, "link", raw.Link, "error", err)
				}
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			results[i] = item
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var items []news.EnrichedItem
	for _, item := range results {
		if item != nil {
			items = append(items, *item)
		}
	}

	slog.Info("Items enriched", "entity", entity.Name, "input", len(raws), "enriched", len(items), "failed", failed)
	return items, nil
}
