package registry

import "github.com/lysyi3m/bankwatch/app/news"

type SourceType string

const (
	SourceTypeRSS     SourceType = "rss"
	SourceTypeScrape  SourceType = "scrape"
	SourceTypeNewsAPI SourceType = "newsapi"
)

type EntitiesFile struct {
	Entities []news.Entity `yaml:"entities"`
}

// Source configuration types

type Source struct {
	Name      string          // Derived from filename (without .yml extension)
	Type      SourceType      `yaml:"type"`
	URL       string          `yaml:"url"`
	Settings  SourceSettings  `yaml:"settings"`
	Selectors SourceSelectors `yaml:"selectors"`
}

type SourceSettings struct {
	Enabled        bool `yaml:"enabled"`
	Timeout        int  `yaml:"timeout"`         // seconds
	MaxPages       int  `yaml:"max_pages"`       // scrape only
	ExtractContent bool `yaml:"extract_content"` // fetch article pages through readability
}

// SourceSelectors locate listing entries on scraped pages.
type SourceSelectors struct {
	Item       string `yaml:"item"`
	Link       string `yaml:"link"`
	Title      string `yaml:"title"`
	Date       string `yaml:"date"`
	DateAttr   string `yaml:"date_attr"`
	DateLayout string `yaml:"date_layout"`
	NextPage   string `yaml:"next_page"`
}
