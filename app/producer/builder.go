package producer

import (
	"log/slog"
	"net/http"

	"github.com/lysyi3m/bankwatch/app/registry"
)

// Build creates one producer per enabled source. Search API sources are skipped without an API key.
func Build(sources []*registry.Source, client *http.Client, userAgent, newsAPIKey string) []Producer {
	var producers []Producer
	for _, source := range sources {
		switch source.Type {
		case registry.SourceTypeRSS:
			producers = append(producers, NewRSSProducer(source, client, userAgent))
		case registry.SourceTypeScrape:
			producers = append(producers, NewScrapeProducer(source, client, userAgent))
		case registry.SourceTypeNewsAPI:
			if newsAPIKey == "" {
				slog.Warn("Search API key not set, skipping source", "source", source.Name)
				continue
			}
			producers = append(producers, NewNewsAPIProducer(source, client, newsAPIKey, userAgent))
		default:
			slog.Warn("Unknown source type, skipping", "source", source.Name, "type", source.Type)
		}
	}
	return producers
}
