package dedup

import (
	"sort"

	"github.com/lysyi3m/bankwatch/app/news"
)

const DefaultPerEvent = 2

type eventKey struct {
	eventType string
	date      string
}

// CapPerEvent keeps at most limit items per (event type, event date), preferring trusted, more
// informative and important items. Input order is preserved.
func CapPerEvent(items []news.EnrichedItem, limit int) []news.EnrichedItem {
	if limit <= 0 || len(items) <= limit {
		return items
	}

	groups := make(map[eventKey][]int)
	for idx, item := range items {
		key := eventKey{eventType: news.NormalizeEventType(item.EventType), date: news.FormatDate(eventDate(item))}
		groups[key] = append(groups[key], idx)
	}

	keep := make([]bool, len(items))
	for _, members := range groups {
		sort.SliceStable(members, func(x, y int) bool {
			return ranksHigher(items[members[x]], items[members[y]])
		})
		for _, idx := range members[:min(limit, len(members))] {
			keep[idx] = true
		}
	}

	capped := make([]news.EnrichedItem, 0, len(items))
	for idx, item := range items {
		if keep[idx] {
			capped = append(capped, item)
		}
	}
	return capped
}

func ranksHigher(a, b news.EnrichedItem) bool {
	if ta, tb := trusted(a), trusted(b); ta != tb {
		return ta
	}
	if a.Informativeness != b.Informativeness {
		return a.Informativeness > b.Informativeness
	}
	ia, ib := news.IsImportant(a.Category), news.IsImportant(b.Category)
	return ia && !ib
}
