package news

import (
	"time"
)

// Entity is a tracked financial institution.
type Entity struct {
	Name      string   `yaml:"name" json:"name"`
	Aliases   []string `yaml:"aliases" json:"aliases"`
	RegNumber string   `yaml:"reg_number" json:"reg_number"`
}

// SearchTerms returns the entity name followed by its aliases.
func (e Entity) SearchTerms() []string {
	terms := make([]string, 0, len(e.Aliases)+1)
	terms = append(terms, e.Name)
	for _, alias := range e.Aliases {
		if alias != "" && alias != e.Name {
			terms = append(terms, alias)
		}
	}
	return terms
}

type RawItem struct {
	Entity     string    `json:"entity"`
	RegNumber  string    `json:"reg_number"`
	Source     string    `json:"source"`
	Text       string    `json:"text"`
	Date       time.Time `json:"date"` // calendar date, UTC midnight
	Link       string    `json:"link"`
	Topic      string    `json:"topic"`
	Monitoring bool      `json:"monitoring"`
}

type EnrichedItem struct {
	Entity          string    `json:"entity"`
	RegNumber       string    `json:"reg_number"`
	Text            string    `json:"text"`
	Summary         string    `json:"summary"`
	EventType       string    `json:"event_type"`
	EventDate       time.Time `json:"event_date"`
	Entities        []string  `json:"entities"`
	Date            time.Time `json:"date"`
	Link            string    `json:"link"`
	Source          string    `json:"source"`
	Category        string    `json:"category"`
	Sentiment       string    `json:"sentiment"`
	Informativeness int       `json:"informativeness"`
	SummaryHash     string    `json:"summary_hash"`
	Topic           string    `json:"topic"`
	Monitoring      bool      `json:"monitoring"`

	// FromStorage marks items loaded from storage to dedup fresh items against.
	FromStorage bool `json:"-"`
}

// Categories returned by the category prompt.
const (
	CategoryAdvert    = "Реклама"
	CategoryImportant = "Важная"
	CategoryRisk      = "Риск"
	CategoryGeneric   = "Обычная"
)

// Sentiments returned by the sentiment prompt.
const (
	SentimentPositive = "Позитивная"
	SentimentNegative = "Негативная"
	SentimentNeutral  = "Нейтральная"
)

// Event types that never form their own dedup group.
const (
	EventTypeAdvert  = "реклама"
	EventTypeGeneric = "обычная"
	EventTypeUnknown = "неизвестно"
)

// IsImportant reports whether the category outranks others in representative selection.
func IsImportant(category string) bool {
	return category == CategoryImportant || category == CategoryRisk
}
