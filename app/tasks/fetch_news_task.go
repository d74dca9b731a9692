package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/bankwatch/app/news"
	"github.com/lysyi3m/bankwatch/app/service"
)

var errStaleResult = errors.New("fetch failed, only stored items available")

type NewsFetcher interface {
	Fetch(ctx context.Context, entityName string, r news.DateRange, topic string) (*service.Result, error)
}

// FetchNewsTask runs an on-demand fetch in the background so later requests are served from storage.
type FetchNewsTask struct {
	Task
	Range   news.DateRange
	Topic   string
	fetcher NewsFetcher
}

func NewFetchNewsTask(entityName string, r news.DateRange, topic string, fetcher NewsFetcher) *FetchNewsTask {
	return &FetchNewsTask{
		Task:    NewTask(TaskTypeFetchNews, EntitySubject(entityName, r, topic)),
		Range:   r,
		Topic:   topic,
		fetcher: fetcher,
	}
}

func (t *FetchNewsTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.fetcher.Fetch(ctx, t.Subject.Entity, t.Range, t.Topic)
	if err != nil {
		return fmt.Errorf("failed to fetch news: %w", err)
	}
	if result.Stale {
		return errStaleResult
	}
	t.setOutcome(fmt.Sprintf("%d items, %d gaps fetched", len(result.Items), result.Gaps))

	slog.Info("Task completed",
		"type", "FetchNews",
		"entity", t.Subject.Entity,
		"range", t.Range.String(),
		"topic", t.Topic,
		"gaps", result.Gaps,
		"items", len(result.Items),
		"duration", t.GetDuration())

	return nil
}
