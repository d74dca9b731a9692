package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/bankwatch/app/news"
)

const titleLength = 120

// Generator renders stored analyzed items of one entity as an RSS 2.0 channel.
type Generator struct {
	baseURL string
	version string
	now     func() time.Time
}

func NewGenerator(baseURL, version string) *Generator {
	return &Generator{
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
		now:     time.Now,
	}
}

// Run expects items ordered newest first.
func (g *Generator) Run(entity news.Entity, items []news.EnrichedItem) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	selfLink := fmt.Sprintf("%s/feeds/%s", g.baseURL, entity.Name)

	g.writeElement(&buf, "title", fmt.Sprintf("Новости: %s", entity.Name), 4)
	g.writeElement(&buf, "link", selfLink, 4)
	g.writeElement(&buf, "description", fmt.Sprintf("Уникальные события по %s (рег. номер %s)", entity.Name, entity.RegNumber), 4)
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))

	lastBuildDate := g.now()
	if len(items) > 0 && !items[0].Date.IsZero() {
		lastBuildDate = items[0].Date
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("bankwatch/%s", g.version), 4)
	g.writeElement(&buf, "language", "ru", 4)

	for _, item := range items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, item news.EnrichedItem) {
	buf.WriteString("    <item>\n")

	if item.Link != "" {
		buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", isURL(item.Link)))
		xml.EscapeText(buf, []byte(item.Link))
		buf.WriteString("</guid>\n")
	}

	g.writeElement(buf, "title", truncate(item.Summary, titleLength), 6)
	g.writeElement(buf, "link", item.Link, 6)

	description := item.Summary
	if item.Text != "" && item.Text != item.Summary {
		description += "\n\n" + item.Text
	}
	g.writeElement(buf, "description", description, 6)

	if !item.Date.IsZero() {
		g.writeElement(buf, "pubDate", item.Date.Format(time.RFC1123Z), 6)
	}

	for _, category := range []string{item.Category, item.EventType, item.Sentiment} {
		g.writeElement(buf, "category", category, 6)
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
