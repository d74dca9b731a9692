package api

import (
	"context"

	"github.com/lysyi3m/bankwatch/app/database"
	"github.com/lysyi3m/bankwatch/app/enrich"
	"github.com/lysyi3m/bankwatch/app/feed"
	"github.com/lysyi3m/bankwatch/app/monitor"
	"github.com/lysyi3m/bankwatch/app/news"
	"github.com/lysyi3m/bankwatch/app/registry"
	"github.com/lysyi3m/bankwatch/app/tasks"
)

type GeneratorInterface interface {
	Run(entity news.Entity, items []news.EnrichedItem) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type EntityRegistry interface {
	GetEntity(name string) (news.Entity, error)
	GetEntities() []news.Entity
	GetEntityCount() int
	GetSourceCount() int
}

var _ EntityRegistry = (*registry.Registry)(nil)

type CoverageReader interface {
	Get(ctx context.Context, entity string) (*database.Coverage, error)
}

// MonitorInterface is nil when scheduled monitoring is disabled.
type MonitorInterface interface {
	Status() monitor.Status
	Digests() *monitor.DigestCache
}

var _ MonitorInterface = (*monitor.Scheduler)(nil)

type BudgetReporter interface {
	Limit() int
	InFlight() int
}

var _ BudgetReporter = (*enrich.Budget)(nil)

type Handler struct {
	registry      EntityRegistry
	coverage      CoverageReader
	enriched      database.EnrichedItemRepository
	subscriptions database.SubscriptionRepository
	fetcher       tasks.NewsFetcher
	generator     GeneratorInterface
	scheduler     tasks.TaskSchedulerInterface
	monitor       MonitorInterface
	budget        BudgetReporter
	cacheHealth   func(ctx context.Context) map[string]interface{}
	version       string
	feedItems     int
}
