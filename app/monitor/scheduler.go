package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/bankwatch/app/database"
	"github.com/lysyi3m/bankwatch/app/dedup"
	"github.com/lysyi3m/bankwatch/app/news"
)

type EntityLookup interface {
	GetEntity(name string) (news.Entity, error)
}

type WindowFetcher interface {
	FetchWindow(ctx context.Context, entity news.Entity, from, to time.Time) ([]news.RawItem, error)
}

type Enricher interface {
	EnrichAll(ctx context.Context, entity news.Entity, raws []news.RawItem, topic string) ([]news.EnrichedItem, error)
}

type Deduplicator interface {
	Deduplicate(ctx context.Context, items []news.EnrichedItem, threshold float64) ([]news.EnrichedItem, error)
	DedupAgainst(ctx context.Context, fresh, existing []news.EnrichedItem, threshold float64) ([]news.EnrichedItem, error)
}

// Notifier delivers a digest text. actionRef identifies the digest for a follow-up view action and
// is empty for plain notices.
type Notifier interface {
	Send(ctx context.Context, subscriberID, text, actionRef string) error
}

// PassResetter holds state that lasts for one pass, such as backends that rejected credentials.
type PassResetter interface {
	ResetPass()
}

type Config struct {
	Hours         []int
	Location      *time.Location
	Window        time.Duration
	BatchSize     int
	Parallel      int
	EntityDelay   time.Duration
	BatchDelay    time.Duration
	ActiveWindow  time.Duration
	RecoveryDelay time.Duration
	PerEvent      int
}

func (c Config) withDefaults() Config {
	if len(c.Hours) == 0 {
		c.Hours = DefaultCheckpointHours
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Window <= 0 {
		c.Window = 12 * time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Parallel <= 0 {
		c.Parallel = 2
	}
	if c.ActiveWindow <= 0 {
		c.ActiveWindow = 30 * 24 * time.Hour
	}
	if c.RecoveryDelay <= 0 {
		c.RecoveryDelay = 60 * time.Second
	}
	if c.PerEvent <= 0 {
		c.PerEvent = dedup.DefaultPerEvent
	}
	return c
}

// PassReport summarizes one monitoring pass.
type PassReport struct {
	PassID    string
	Started   time.Time
	Entities  int
	Processed int
	Failed    int
	NewItems  int
	Notified  int
}

// Scheduler runs monitoring passes at fixed daily checkpoints and sends digests to subscribers.
type Scheduler struct {
	cfg           Config
	entities      EntityLookup
	subscriptions database.SubscriptionRepository
	rawItems      database.RawItemRepository
	enriched      database.EnrichedItemRepository
	fetcher       WindowFetcher
	analyzer      Enricher
	dedup         Deduplicator
	notifier      Notifier
	resetters     []PassResetter
	digests       *DigestCache
	status        statusTracker
	now           func() time.Time
	wait          func(ctx context.Context, d time.Duration) error
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

func NewScheduler(config Config, entities EntityLookup, subscriptions database.SubscriptionRepository,
	rawItems database.RawItemRepository, enriched database.EnrichedItemRepository, fetcher WindowFetcher,
	analyzer Enricher, deduplicator Deduplicator, notifier Notifier, digests *DigestCache) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if digests == nil {
		digests = NewDigestCache(DefaultDigestsPerSubscriber)
	}

	s := &Scheduler{
		cfg:           config.withDefaults(),
		entities:      entities,
		subscriptions: subscriptions,
		rawItems:      rawItems,
		enriched:      enriched,
		fetcher:       fetcher,
		analyzer:      analyzer,
		dedup:         deduplicator,
		notifier:      notifier,
		digests:       digests,
		now:           time.Now,
		wait:          sleep,
		ctx:           ctx,
		cancel:        cancel,
	}
	s.status.update(func(st *Status) { st.State = StateWaiting })
	return s
}

// WithClock replaces the time source and the delay function. Used by tests.
func (s *Scheduler) WithClock(now func() time.Time, wait func(ctx context.Context, d time.Duration) error) *Scheduler {
	s.now = now
	s.wait = wait
	return s
}

// WithPassResetters registers state to reset at the start of every pass.
func (s *Scheduler) WithPassResetters(resetters ...PassResetter) *Scheduler {
	s.resetters = append(s.resetters, resetters...)
	return s
}

func (s *Scheduler) Digests() *DigestCache {
	return s.digests
}

func (s *Scheduler) Status() Status {
	return s.status.snapshot()
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(s.ctx)
	}()

	slog.Info("Monitoring scheduler started", "checkpoints", s.cfg.Hours, "location", s.cfg.Location.String())
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	slog.Info("Monitoring scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		next := NextCheckpoint(s.now(), s.cfg.Hours, s.cfg.Location)
		s.setState(StateWaiting)
		s.status.update(func(st *Status) { st.NextCheckpoint = next })

		slog.Info("Waiting for next checkpoint", "at", next)
		if err := s.wait(ctx, next.Sub(s.now())); err != nil {
			return
		}

		if _, err := s.safePass(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("Monitoring pass failed", "error", err, "retry_in", s.cfg.RecoveryDelay.String())
			if err := s.wait(ctx, s.cfg.RecoveryDelay); err != nil {
				return
			}
		}
	}
}

func (s *Scheduler) safePass(ctx context.Context) (report *PassReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in monitoring pass: %v", r)
			slog.Error("Recovered from panic", "panic", r, "stack", string(debug.Stack()))
		}
		if err != nil {
			message := err.Error()
			s.status.update(func(st *Status) { st.LastError = message })
		}
	}()
	return s.RunPass(ctx)
}

// RunPass processes every active entity and notifies subscribers.
func (s *Scheduler) RunPass(ctx context.Context) (*PassReport, error) {
	report := &PassReport{PassID: uuid.NewString(), Started: s.now()}
	s.setState(StateRunning)
	defer s.setState(StateWaiting)

	for _, r := range s.resetters {
		r.ResetPass()
	}

	s.status.update(func(st *Status) {
		st.LastPassID = report.PassID
		st.LastPassStarted = report.Started
		st.LastError = ""
		st.EntitiesProcessed = 0
		st.EntitiesFailed = 0
		st.NewItems = 0
		st.Notified = 0
	})

	active, err := s.subscriptions.GetActiveEntities(ctx, report.Started.Add(-s.cfg.ActiveWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load active entities: %w", err)
	}
	report.Entities = len(active)

	if len(active) == 0 {
		slog.Info("No active entities, skipping pass", "pass_id", report.PassID)
		s.status.update(func(st *Status) {
			st.LastPassFinished = s.now()
			st.Passes++
		})
		return report, nil
	}

	slog.Info("Monitoring pass started", "pass_id", report.PassID, "entities", len(active))
	if err := s.processAll(ctx, active, report); err != nil {
		return nil, err
	}

	s.setState(StateNotifying)
	notified, err := s.notifyAll(ctx, report.PassID)
	if err != nil {
		return nil, err
	}
	report.Notified = notified

	s.status.update(func(st *Status) {
		st.LastPassFinished = s.now()
		st.Passes++
		st.Notified = notified
	})

	slog.Info("Monitoring pass completed",
		"pass_id", report.PassID,
		"entities", report.Entities,
		"processed", report.Processed,
		"failed", report.Failed,
		"new_items", report.NewItems,
		"notified", report.Notified,
		"duration", s.now().Sub(report.Started))

	return report, nil
}

func (s *Scheduler) processAll(ctx context.Context, entities []string, report *PassReport) error {
	var processed, failed, newItems atomic.Int64

	for start := 0; start < len(entities); start += s.cfg.BatchSize {
		batch := entities[start:min(start+s.cfg.BatchSize, len(entities))]

		g := new(errgroup.Group)
		g.SetLimit(s.cfg.Parallel)
		for _, name := range batch {
			g.Go(func() error {
				stored, err := s.ProcessEntity(ctx, name)
				if err != nil {
					failed.Add(1)
					s.status.update(func(st *Status) { st.EntitiesFailed++ })
					slog.Error("Failed to process entity", "entity", name, "error", err)
				} else {
					processed.Add(1)
					newItems.Add(int64(stored))
					s.status.update(func(st *Status) {
						st.EntitiesProcessed++
						st.NewItems += stored
					})
				}
				return s.wait(ctx, s.cfg.EntityDelay)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if start+s.cfg.BatchSize < len(entities) {
			slog.Debug("Batch completed", "offset", start, "size", len(batch))
			if err := s.wait(ctx, s.cfg.BatchDelay); err != nil {
				return err
			}
		}
	}

	report.Processed = int(processed.Load())
	report.Failed = int(failed.Load())
	report.NewItems = int(newItems.Load())
	return nil
}

// ProcessEntity fetches the trailing window for one entity, enriches new mentions and stores those
// not duplicating anything stored within the active window. It returns the number of stored items.
func (s *Scheduler) ProcessEntity(ctx context.Context, name string) (int, error) {
	entity, err := s.entities.GetEntity(name)
	if err != nil {
		return 0, err
	}

	now := s.now()
	items, err := s.fetcher.FetchWindow(ctx, entity, now.Add(-s.cfg.Window), now)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch window: %w", err)
	}

	links := make([]string, 0, len(items))
	for _, item := range items {
		links = append(links, item.Link)
	}
	existing, err := s.rawItems.GetExistingLinks(ctx, entity.Name, true, links)
	if err != nil {
		return 0, err
	}

	var fresh []news.RawItem
	for _, item := range items {
		if !existing[item.Link] {
			fresh = append(fresh, item)
		}
	}
	if len(fresh) == 0 {
		slog.Debug("No new mentions", "entity", entity.Name, "fetched", len(items))
		return 0, nil
	}

	if _, err := s.rawItems.InsertRawItems(ctx, fresh); err != nil {
		return 0, err
	}

	enriched, err := s.analyzer.EnrichAll(ctx, entity, fresh, "")
	if err != nil {
		return 0, err
	}
	if len(enriched) == 0 {
		return 0, nil
	}

	unique, err := s.dedup.Deduplicate(ctx, enriched, dedup.MonitoringThreshold)
	if err != nil {
		return 0, err
	}
	unique = dedup.CapPerEvent(unique, s.cfg.PerEvent)

	stored, err := s.enriched.GetEnrichedSince(ctx, entity.Name, now.Add(-s.cfg.ActiveWindow), true)
	if err != nil {
		return 0, err
	}

	survivors, err := s.dedup.DedupAgainst(ctx, unique, stored, dedup.MonitoringThreshold)
	if err != nil {
		return 0, err
	}

	inserted, err := s.enriched.InsertEnrichedItems(ctx, survivors)
	if err != nil {
		return 0, err
	}

	slog.Info("Entity processed",
		"entity", entity.Name,
		"fetched", len(items),
		"new", len(fresh),
		"enriched", len(enriched),
		"stored", inserted)

	return inserted, nil
}

func (s *Scheduler) notifyAll(ctx context.Context, passID string) (int, error) {
	subscribers, err := s.subscriptions.GetSubscribers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load subscribers: %w", err)
	}

	notified := 0
	for _, subscriberID := range subscribers {
		if err := ctx.Err(); err != nil {
			return notified, err
		}

		sent, err := s.notify(ctx, passID, subscriberID)
		if err != nil {
			slog.Error("Failed to notify subscriber", "subscriber", subscriberID, "error", err)
			continue
		}
		if sent {
			notified++
		}
	}

	return notified, nil
}

// notify reports whether a digest with new items was delivered.
func (s *Scheduler) notify(ctx context.Context, passID, subscriberID string) (bool, error) {
	subs, err := s.subscriptions.GetSubscriptions(ctx, subscriberID)
	if err != nil {
		return false, err
	}
	if len(subs) == 0 {
		return false, nil
	}

	digest := &Digest{PassID: passID, SubscriberID: subscriberID, CreatedAt: s.now()}
	for _, sub := range subs {
		items, err := s.enriched.GetEnrichedSince(ctx, sub.Entity, sub.LastNotified, true)
		if err != nil {
			return false, err
		}

		entry := EntityDigest{Entity: sub.Entity, Count: len(items), Items: items}
		for _, item := range items {
			if item.Sentiment == news.SentimentNegative {
				entry.Negative++
			}
		}
		digest.Entities = append(digest.Entities, entry)
		digest.Total += entry.Count
	}

	if digest.Total == 0 {
		if err := s.notifier.Send(ctx, subscriberID, nothingNewText, ""); err != nil {
			return false, fmt.Errorf("failed to send notice: %w", err)
		}
		return false, nil
	}

	s.digests.Add(digest)

	if err := s.notifier.Send(ctx, subscriberID, digest.Text(s.cfg.Location), passID); err != nil {
		return false, fmt.Errorf("failed to send digest: %w", err)
	}

	if err := s.subscriptions.MarkNotified(ctx, subscriberID, digest.CreatedAt); err != nil {
		return true, fmt.Errorf("failed to update last notification: %w", err)
	}

	slog.Info("Digest sent", "subscriber", subscriberID, "pass_id", passID, "items", digest.Total)
	return true, nil
}

func (s *Scheduler) setState(state State) {
	s.status.update(func(st *Status) { st.State = state })
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
