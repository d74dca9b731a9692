package producer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/bankwatch/app/news"
	"github.com/lysyi3m/bankwatch/app/registry"
)

var _ Producer = (*RSSProducer)(nil)

// RSSProducer reads an RSS or Atom feed and keeps entries that mention the entity.
type RSSProducer struct {
	source    *registry.Source
	client    *http.Client
	parser    *gofeed.Parser
	userAgent string
}

func NewRSSProducer(source *registry.Source, client *http.Client, userAgent string) *RSSProducer {
	return &RSSProducer{
		source:    source,
		client:    client,
		parser:    gofeed.NewParser(),
		userAgent: userAgent,
	}
}

func (p *RSSProducer) Name() string {
	return p.source.Name
}

func (p *RSSProducer) Fetch(ctx context.Context, q Query) ([]news.RawItem, error) {
	data, err := fetch(ctx, p.client, expandURL(p.source.URL, q), p.userAgent, time.Duration(p.source.Settings.Timeout)*time.Second)
	if err != nil {
		return nil, err
	}

	feed, err := p.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	terms := q.Entity.SearchTerms()
	var items []news.RawItem
	for _, entry := range feed.Items {
		var published *time.Time
		switch {
		case entry.PublishedParsed != nil:
			published = entry.PublishedParsed
		case entry.UpdatedParsed != nil:
			published = entry.UpdatedParsed
		default:
			continue
		}

		date := news.Day(published.UTC())
		if !q.Range.Contains(date) {
			continue
		}

		text := joinText(entry.Title, entry.Description, entry.Content)
		if text == "" || !news.MatchesAliases(text, terms) {
			continue
		}

		items = append(items, news.RawItem{
			Entity:    q.Entity.Name,
			RegNumber: q.Entity.RegNumber,
			Source:    p.source.Name,
			Text:      text,
			Date:      date,
			Link:      entry.Link,
		})
	}

	slog.Debug("Feed read", "source", p.source.Name, "entity", q.Entity.Name, "entries", len(feed.Items), "matched", len(items))
	return items, nil
}
