package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/bankwatch/app/news"
)

// ErrUnauthorized is returned when a source rejects the request with 401 or 403.
var ErrUnauthorized = errors.New("source rejected credentials")

// Query describes one fetch for one entity.
type Query struct {
	Entity news.Entity
	Range  news.DateRange
	Topic  string
}

// Producer is one independent news source. Fetch returns an empty slice when nothing matched and
// an error only when the source itself could not be read.
type Producer interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]news.RawItem, error)
}

// expandURL fills {query}, {reg_number} and {name} placeholders of a source URL.
func expandURL(template string, q Query) string {
	return strings.NewReplacer(
		"{query}", url.QueryEscape(strings.Join(quoteAll(q.Entity.SearchTerms()), " OR ")),
		"{reg_number}", url.PathEscape(q.Entity.RegNumber),
		"{name}", url.QueryEscape(q.Entity.Name),
	).Replace(template)
}

func quoteAll(terms []string) []string {
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + term + `"`
	}
	return quoted
}

func fetch(ctx context.Context, client *http.Client, target, userAgent string, timeout time.Duration) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %d %s", ErrUnauthorized, resp.StatusCode, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

// htmlText strips markup and collapses whitespace.
func htmlText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func joinText(parts ...string) string {
	var kept []string
	seen := make(map[string]bool)
	for _, part := range parts {
		part = htmlText(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		kept = append(kept, part)
	}
	return strings.Join(kept, " ")
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
