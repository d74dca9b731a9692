package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/bankwatch/app/news"
	"github.com/lysyi3m/bankwatch/app/registry"
)

const (
	maxQueryLength  = 500
	defaultEndpoint = "https://newsapi.org/v2/everything"
)

var _ Producer = (*NewsAPIProducer)(nil)

// NewsAPIProducer queries a newsapi.org style "everything" search endpoint.
type NewsAPIProducer struct {
	source    *registry.Source
	client    *http.Client
	endpoint  string
	apiKey    string
	userAgent string
}

func NewNewsAPIProducer(source *registry.Source, client *http.Client, apiKey, userAgent string) *NewsAPIProducer {
	endpoint := source.URL
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	return &NewsAPIProducer{
		source:    source,
		client:    client,
		endpoint:  endpoint,
		apiKey:    apiKey,
		userAgent: userAgent,
	}
}

func (p *NewsAPIProducer) Name() string {
	return p.source.Name
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

func (p *NewsAPIProducer) Fetch(ctx context.Context, q Query) ([]news.RawItem, error) {
	batches := BatchTerms(q.Entity.SearchTerms(), maxQueryLength)
	results := make([][]news.RawItem, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			items, err := p.search(gctx, q, batch)
			if err != nil {
				return err
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var items []news.RawItem
	for _, batch := range results {
		for _, item := range batch {
			if seen[item.Text] {
				continue
			}
			seen[item.Text] = true
			items = append(items, item)
		}
	}
	return items, nil
}

func (p *NewsAPIProducer) search(ctx context.Context, q Query, terms []string) ([]news.RawItem, error) {
	query := strings.Join(quoteAll(terms), " OR ")
	if q.Topic != "" {
		query = fmt.Sprintf(`(%s) AND "%s"`, query, q.Topic)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("from", news.FormatDate(q.Range.From))
	params.Set("to", news.FormatDate(q.Range.To))
	params.Set("language", "ru")
	params.Set("sortBy", "publishedAt")
	params.Set("apiKey", p.apiKey)

	target := p.endpoint
	if strings.Contains(target, "?") {
		target += "&" + params.Encode()
	} else {
		target += "?" + params.Encode()
	}

	data, err := fetch(ctx, p.client, target, p.userAgent, time.Duration(p.source.Settings.Timeout)*time.Second)
	if err != nil {
		return nil, err
	}

	var resp newsAPIResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	if resp.Status != "" && resp.Status != "ok" {
		return nil, fmt.Errorf("search API error %s: %s", resp.Code, resp.Message)
	}

	var items []news.RawItem
	for _, article := range resp.Articles {
		text := joinText(article.Title, article.Description)
		if text == "" || article.URL == "" {
			continue
		}

		date, err := news.ParseDate(article.PublishedAt)
		if err != nil {
			slog.Debug("Skipping article with bad date", "source", p.source.Name, "published_at", article.PublishedAt)
			continue
		}
		if !q.Range.Contains(date) {
			continue
		}

		items = append(items, news.RawItem{
			Entity:    q.Entity.Name,
			RegNumber: q.Entity.RegNumber,
			Source:    p.source.Name,
			Text:      text,
			Date:      date,
			Link:      article.URL,
		})
	}

	return items, nil
}

// BatchTerms groups terms so that each batch's normalized length, one separator per term,
// stays within limit. A single oversized term gets a batch of its own.
func BatchTerms(terms []string, limit int) [][]string {
	var batches [][]string
	var current []string
	length := 0

	for _, term := range terms {
		size := len([]rune(news.NormalizeText(term))) + 1
		if len(current) > 0 && length+size > limit {
			batches = append(batches, current)
			current = nil
			length = 0
		}
		current = append(current, term)
		length += size
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}

	return batches
}
