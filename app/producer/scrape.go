package producer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/readeck/go-readability"
	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/bankwatch/app/news"
	"github.com/lysyi3m/bankwatch/app/registry"
)

var _ Producer = (*ScrapeProducer)(nil)

// ScrapeProducer reads news listing pages with CSS selectors and optionally pulls
// the article body of every matching entry.
type ScrapeProducer struct {
	source    *registry.Source
	client    *http.Client
	userAgent string
}

func NewScrapeProducer(source *registry.Source, client *http.Client, userAgent string) *ScrapeProducer {
	return &ScrapeProducer{
		source:    source,
		client:    client,
		userAgent: userAgent,
	}
}

func (p *ScrapeProducer) Name() string {
	return p.source.Name
}

type listingEntry struct {
	title string
	link  string
	date  time.Time
}

func (p *ScrapeProducer) Fetch(ctx context.Context, q Query) ([]news.RawItem, error) {
	terms := q.Entity.SearchTerms()
	pageURL := expandURL(p.source.URL, q)

	var items []news.RawItem
	for page := 0; page < p.source.Settings.MaxPages && pageURL != ""; page++ {
		entries, next, err := p.readListing(ctx, pageURL)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			slog.Warn("Failed to read listing page", "source", p.source.Name, "url", pageURL, "error", err)
			break
		}

		for _, entry := range entries {
			if entry.date.IsZero() || !q.Range.Contains(entry.date) {
				continue
			}

			text := entry.title
			if p.source.Settings.ExtractContent {
				body, err := p.extractArticle(ctx, entry.link)
				if err != nil {
					slog.Debug("Article extraction failed, using title", "source", p.source.Name, "link", entry.link, "error", err)
				} else {
					text = joinText(entry.title, body)
				}
			}

			if !news.MatchesAliases(text, terms) {
				continue
			}

			items = append(items, news.RawItem{
				Entity:    q.Entity.Name,
				RegNumber: q.Entity.RegNumber,
				Source:    p.source.Name,
				Text:      text,
				Date:      entry.date,
				Link:      entry.link,
			})
		}

		pageURL = next
	}

	return items, nil
}

func (p *ScrapeProducer) readListing(ctx context.Context, pageURL string) ([]listingEntry, string, error) {
	data, err := fetch(ctx, p.client, pageURL, p.userAgent, p.timeout())
	if err != nil {
		return nil, "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse listing page: %w", err)
	}

	base, _ := url.Parse(pageURL)
	sel := p.source.Selectors

	var entries []listingEntry
	doc.Find(sel.Item).Each(func(_ int, s *goquery.Selection) {
		linkNode := s
		if sel.Link != "" {
			linkNode = s.Find(sel.Link).First()
		}
		href, _ := linkNode.Attr("href")
		link := resolveLink(base, href)
		if link == "" {
			return
		}

		title := strings.TrimSpace(linkNode.Text())
		if sel.Title != "" {
			title = strings.TrimSpace(s.Find(sel.Title).First().Text())
		}
		if title == "" {
			return
		}

		entries = append(entries, listingEntry{
			title: htmlText(title),
			link:  link,
			date:  p.entryDate(s),
		})
	})

	var next string
	if sel.NextPage != "" {
		if href, ok := doc.Find(sel.NextPage).First().Attr("href"); ok {
			next = resolveLink(base, href)
		}
	}

	return entries, next, nil
}

func (p *ScrapeProducer) entryDate(s *goquery.Selection) time.Time {
	sel := p.source.Selectors
	if sel.Date == "" {
		return time.Time{}
	}

	node := s.Find(sel.Date).First()
	value := strings.TrimSpace(node.Text())
	if sel.DateAttr != "" {
		value, _ = node.Attr(sel.DateAttr)
		value = strings.TrimSpace(value)
	}
	if value == "" {
		return time.Time{}
	}

	if t, err := time.Parse(sel.DateLayout, value); err == nil {
		return news.Day(t)
	}
	if t, err := news.ParseDate(value); err == nil {
		return t
	}

	slog.Debug("Unrecognized listing date", "source", p.source.Name, "value", value)
	return time.Time{}
}

func (p *ScrapeProducer) extractArticle(ctx context.Context, link string) (string, error) {
	data, err := fetch(ctx, p.client, link, p.userAgent, p.timeout())
	if err != nil {
		return "", err
	}

	pageURL, _ := url.Parse(link)
	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	if article.Content == "" {
		return "", fmt.Errorf("no content extracted from %s", link)
	}

	return htmlText(article.Content), nil
}

func (p *ScrapeProducer) timeout() time.Duration {
	return time.Duration(p.source.Settings.Timeout) * time.Second
}
