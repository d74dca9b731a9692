package database

import (
	"context"
	"time"

	"github.com/lysyi3m/bankwatch/app/news"
)

type RawItemRepository interface {
	InsertRawItems(ctx context.Context, items []news.RawItem) (int, error)
	GetExistingLinks(ctx context.Context, entity string, monitoring bool, links []string) (map[string]bool, error)
	GetRawItems(ctx context.Context, entity string, r news.DateRange, monitoring bool) ([]news.RawItem, error)
}

type EnrichedItemRepository interface {
	InsertEnrichedItems(ctx context.Context, items []news.EnrichedItem) (int, error)
	GetEnrichedItems(ctx context.Context, entity string, r news.DateRange, topic string, monitoring bool) ([]news.EnrichedItem, error)
	GetEnrichedSince(ctx context.Context, entity string, since time.Time, monitoring bool) ([]news.EnrichedItem, error)
	GetLatestEnrichedItems(ctx context.Context, entity string, limit int) ([]news.EnrichedItem, error)
	GetEnrichedCount(ctx context.Context, entity string) (int, error)
}

type CoverageRepository interface {
	GetCoverage(ctx context.Context, entity string) (*Coverage, error)
	UpsertCoverage(ctx context.Context, c Coverage) error
}

type SubscriptionRepository interface {
	Subscribe(ctx context.Context, subscriberID, entity string) (bool, error)
	Unsubscribe(ctx context.Context, subscriberID, entity string) (bool, error)
	GetSubscriptions(ctx context.Context, subscriberID string) ([]Subscription, error)
	GetSubscribersByEntity(ctx context.Context, entity string) ([]string, error)
	GetSubscribers(ctx context.Context) ([]string, error)
	GetActiveEntities(ctx context.Context, since time.Time) ([]string, error)
	MarkNotified(ctx context.Context, subscriberID string, at time.Time) error
}
