package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/bankwatch/app/database"
	"github.com/lysyi3m/bankwatch/app/feed"
	"github.com/lysyi3m/bankwatch/app/monitor"
	"github.com/lysyi3m/bankwatch/app/news"
	"github.com/lysyi3m/bankwatch/app/registry"
	"github.com/lysyi3m/bankwatch/app/service"
	"github.com/lysyi3m/bankwatch/app/tasks"
)

const (
	defaultFeedItems = 50
	defaultNewsDays  = 7
	maxNewsDays      = 365
)

func NewHandler(entities EntityRegistry, coverage CoverageReader, enriched database.EnrichedItemRepository,
	subscriptions database.SubscriptionRepository, fetcher tasks.NewsFetcher,
	scheduler tasks.TaskSchedulerInterface, baseURL, version string) *Handler {
	return &Handler{
		registry:      entities,
		coverage:      coverage,
		enriched:      enriched,
		subscriptions: subscriptions,
		fetcher:       fetcher,
		generator:     feed.NewGenerator(baseURL, version),
		scheduler:     scheduler,
		version:       version,
		feedItems:     defaultFeedItems,
	}
}

// WithMonitor exposes the monitoring scheduler status and digests.
func (h *Handler) WithMonitor(m MonitorInterface) *Handler {
	h.monitor = m
	return h
}

func (h *Handler) WithBudget(b BudgetReporter) *Handler {
	h.budget = b
	return h
}

// WithCacheHealth adds the shared cache state to the health report.
func (h *Handler) WithCacheHealth(fn func(ctx context.Context) map[string]interface{}) *Handler {
	h.cacheHealth = fn
	return h
}

func (h *Handler) GetFeed(c *gin.Context) {
	entity, ok := h.lookupEntity(c)
	if !ok {
		return
	}

	items, err := h.enriched.GetLatestEnrichedItems(c.Request.Context(), entity.Name, h.feedItems)
	if err != nil {
		slog.Error("Database error", "operation", "get_latest_items", "entity", entity.Name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(entity, items)
	if err != nil {
		slog.Error("RSS generation error", "entity", entity.Name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"entities":  h.registry.GetEntityCount(),
		"sources":   h.registry.GetSourceCount(),
	}

	if h.budget != nil {
		health["llm_budget"] = map[string]int{
			"limit":     h.budget.Limit(),
			"in_flight": h.budget.InFlight(),
		}
	}

	if h.cacheHealth != nil {
		health["cache"] = h.cacheHealth(c.Request.Context())
	}

	if h.monitor != nil {
		monitorStatus := h.monitor.Status()
		health["monitor"] = monitorStatus.Health
		if monitorStatus.Health != monitor.HealthHealthy {
			health["status"] = monitorStatus.Health
		}
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIListEntities(c *gin.Context) {
	entities := h.registry.GetEntities()

	result := make([]map[string]interface{}, 0, len(entities))
	for _, entity := range entities {
		info := map[string]interface{}{
			"name":       entity.Name,
			"aliases":    entity.Aliases,
			"reg_number": entity.RegNumber,
		}
		if count, err := h.enriched.GetEnrichedCount(c.Request.Context(), entity.Name); err == nil {
			info["item_count"] = count
		}
		result = append(result, info)
	}

	c.JSON(http.StatusOK, gin.H{
		"entities": result,
		"total":    len(result),
	})
}

func (h *Handler) APIGetCoverage(c *gin.Context) {
	entity, ok := h.lookupEntity(c)
	if !ok {
		return
	}

	coverage, err := h.coverage.Get(c.Request.Context(), entity.Name)
	if err != nil {
		slog.Error("Database error", "operation", "get_coverage", "entity", entity.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if coverage == nil {
		c.JSON(http.StatusOK, gin.H{"entity": entity.Name, "covered": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entity":       entity.Name,
		"covered":      true,
		"from":         news.FormatDate(coverage.CoveredFrom),
		"to":           news.FormatDate(coverage.CoveredTo),
		"last_refresh": coverage.LastRefresh.Format(time.RFC3339),
	})
}

func (h *Handler) APIGetNews(c *gin.Context) {
	dr, ok := parseRange(c)
	if !ok {
		return
	}

	result, err := h.fetcher.Fetch(c.Request.Context(), c.Param("entity"), dr, c.Query("topic"))
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrEntityNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Entity not found"})
		case errors.Is(err, service.ErrInvalidRange):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			slog.Error("On-demand fetch failed", "entity", c.Param("entity"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Fetch failed", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) APIEnqueueFetch(c *gin.Context) {
	entity, ok := h.lookupEntity(c)
	if !ok {
		return
	}

	dr, ok := parseRange(c)
	if !ok {
		return
	}

	task := tasks.NewFetchNewsTask(entity.Name, dr, c.Query("topic"), h.fetcher)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing fetch task", "entity", entity.Name, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue fetch task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task": gin.H{
			"id":      task.GetID(),
			"type":    task.GetType(),
			"subject": task.GetSubject(),
		},
	})
}

func (h *Handler) APIGetTask(c *gin.Context) {
	status, ok := h.scheduler.GetTaskStatus(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) APIListSubscriptions(c *gin.Context) {
	subscriberID := c.Param("id")

	subs, err := h.subscriptions.GetSubscriptions(c.Request.Context(), subscriberID)
	if err != nil {
		slog.Error("Database error", "operation", "get_subscriptions", "subscriber", subscriberID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	result := make([]gin.H, 0, len(subs))
	for _, sub := range subs {
		entry := gin.H{
			"entity":     sub.Entity,
			"created_at": sub.CreatedAt.Format(time.RFC3339),
		}
		if sub.LastNotified.Unix() > 0 {
			entry["last_notified"] = sub.LastNotified.Format(time.RFC3339)
		}
		result = append(result, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"subscriber":    subscriberID,
		"subscriptions": result,
		"total":         len(result),
	})
}

func (h *Handler) APISubscribe(c *gin.Context) {
	entity, ok := h.lookupEntity(c)
	if !ok {
		return
	}
	subscriberID := c.Param("id")

	created, err := h.subscriptions.Subscribe(c.Request.Context(), subscriberID, entity.Name)
	if err != nil {
		slog.Error("Database error", "operation", "subscribe", "subscriber", subscriberID, "entity", entity.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	slog.Info("Subscription updated", "subscriber", subscriberID, "entity", entity.Name, "created", created)
	c.JSON(status, gin.H{"subscriber": subscriberID, "entity": entity.Name, "created": created})
}

func (h *Handler) APIUnsubscribe(c *gin.Context) {
	subscriberID := c.Param("id")
	entity := c.Param("entity")

	removed, err := h.subscriptions.Unsubscribe(c.Request.Context(), subscriberID, entity)
	if err != nil {
		slog.Error("Database error", "operation", "unsubscribe", "subscriber", subscriberID, "entity", entity, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriber": subscriberID, "entity": entity, "removed": true})
}

func (h *Handler) APIListDigests(c *gin.Context) {
	if !h.requireMonitor(c) {
		return
	}
	digests := h.monitor.Digests().List(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"digests": digests, "total": len(digests)})
}

func (h *Handler) APIGetDigest(c *gin.Context) {
	if !h.requireMonitor(c) {
		return
	}
	digest, ok := h.monitor.Digests().Get(c.Param("id"), c.Param("pass"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Digest not found"})
		return
	}
	c.JSON(http.StatusOK, digest)
}

func (h *Handler) APIMonitorStatus(c *gin.Context) {
	if !h.requireMonitor(c) {
		return
	}
	c.JSON(http.StatusOK, h.monitor.Status())
}

func (h *Handler) requireMonitor(c *gin.Context) bool {
	if h.monitor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Monitoring is disabled"})
		return false
	}
	return true
}

func (h *Handler) lookupEntity(c *gin.Context) (news.Entity, bool) {
	entity, err := h.registry.GetEntity(c.Param("entity"))
	if err != nil {
		if errors.Is(err, registry.ErrEntityNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Entity not found"})
		} else {
			slog.Error("Registry lookup failed", "entity", c.Param("entity"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Registry error"})
		}
		return news.Entity{}, false
	}
	return entity, true
}

// parseRange reads from/to query parameters. Missing values default to the last week ending today.
func parseRange(c *gin.Context) (news.DateRange, bool) {
	to := news.Day(time.Now())
	if value := c.Query("to"); value != "" {
		parsed, err := news.ParseDate(value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'to' date", "details": err.Error()})
			return news.DateRange{}, false
		}
		to = parsed
	}

	from := to.AddDate(0, 0, -(defaultNewsDays - 1))
	if value := c.Query("from"); value != "" {
		parsed, err := news.ParseDate(value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'from' date", "details": err.Error()})
			return news.DateRange{}, false
		}
		from = parsed
	}

	dr := news.NewDateRange(from, to)
	if !dr.Valid() || dr.Days() > maxNewsDays {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date range", "range": dr.String()})
		return news.DateRange{}, false
	}
	return dr, true
}
