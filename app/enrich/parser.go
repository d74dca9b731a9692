package enrich

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/lysyi3m/bankwatch/app/news"
)

// Summary is the structured block returned by the summary prompt.
type Summary struct {
	Text      string
	EventType string
	EventDate string
	Entities  []string
}

type Sentiment struct {
	Label       string
	Explanation string
}

// Verdict is a parsed duplicate judgment. Confidence is 0-100 when the reply carries one.
type Verdict struct {
	Duplicate  bool
	Confidence int
}

var (
	summaryPattern    = regexp.MustCompile(`(?is)(?:Выжимка|Summary):\s*(.*?)\s*(?:Тип события|Event type):\s*(.*?)\s*(?:Дата события|Event date):\s*(.*?)\s*(?:Ключевые сущности|Key entities):\s*(.*)`)
	sentimentPattern  = regexp.MustCompile(`(?is)^(?:Тональность|Sentiment):\s*([\p{L}]+)\.?\s*(?:(?:Объяснение|Explanation):\s*(.*))?$`)
	confidencePattern = regexp.MustCompile(`(?i)(?:Доверие|Confidence):\s*(\d+)`)
	entityPrefix      = regexp.MustCompile(`^(?:[0-9]+\.\s*|-\s*)`)
)

func ParseRelevance(response string) (bool, error) {
	word := firstWord(response)
	switch word {
	case "да", "yes":
		return true, nil
	case "нет", "no":
		return false, nil
	}
	return false, &ParseError{Kind: "relevance", Response: response}
}

func ParseSummary(response string) (Summary, error) {
	m := summaryPattern.FindStringSubmatch(response)
	if m == nil {
		return Summary{}, &ParseError{Kind: "summary", Response: response}
	}

	s := Summary{
		Text:      trimQuotes(m[1]),
		EventType: strings.TrimSpace(m[2]),
		EventDate: trimQuotes(m[3]),
		Entities:  ParseEntities(m[4]),
	}
	if s.Text == "" {
		return Summary{}, &ParseError{Kind: "summary", Response: response}
	}
	return s, nil
}

// ParseEntities splits a comma or semicolon separated list, dropping list markers and
// mentions of two characters or fewer.
func ParseEntities(value string) []string {
	var entities []string
	for _, part := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ';' }) {
		part = strings.TrimSpace(part)
		part = strings.TrimSpace(entityPrefix.ReplaceAllString(part, ""))
		part = strings.TrimRight(part, ".")
		if len([]rune(part)) > 2 {
			entities = append(entities, part)
		}
	}
	return entities
}

var categories = map[string]string{
	"реклама":       news.CategoryAdvert,
	"важная":        news.CategoryImportant,
	"риск":          news.CategoryRisk,
	"обычная":       news.CategoryGeneric,
	"advertisement": news.CategoryAdvert,
	"important":     news.CategoryImportant,
	"risk":          news.CategoryRisk,
	"generic":       news.CategoryGeneric,
}

// ParseCategory accepts the bare label or a "Category: label" reply.
func ParseCategory(response string) (string, error) {
	value := response
	if i := strings.Index(value, ":"); i >= 0 {
		value = value[i+1:]
	}
	if category, ok := categories[firstWord(value)]; ok {
		return category, nil
	}
	return "", &ParseError{Kind: "category", Response: response}
}

var sentiments = map[string]string{
	"позитивная":  news.SentimentPositive,
	"негативная":  news.SentimentNegative,
	"нейтральная": news.SentimentNeutral,
	"positive":    news.SentimentPositive,
	"negative":    news.SentimentNegative,
	"neutral":     news.SentimentNeutral,
}

func ParseSentiment(response string) (Sentiment, error) {
	m := sentimentPattern.FindStringSubmatch(strings.TrimSpace(response))
	if m == nil {
		return Sentiment{}, &ParseError{Kind: "sentiment", Response: response}
	}

	label, ok := sentiments[strings.ToLower(m[1])]
	if !ok {
		return Sentiment{}, &ParseError{Kind: "sentiment", Response: response}
	}
	return Sentiment{Label: label, Explanation: strings.TrimSpace(m[2])}, nil
}

// ParseVerdict reads "Решение: Дубликат/Не дубликат" and "Доверие: N".
// A reply without any decision token is a ParseError.
func ParseVerdict(response string) (Verdict, error) {
	lowered := strings.ToLower(response)

	var v Verdict
	switch {
	case strings.Contains(lowered, "не дубликат"), strings.Contains(lowered, "not duplicate"), strings.Contains(lowered, "not a duplicate"):
		v.Duplicate = false
	case strings.Contains(lowered, "дубликат"), strings.Contains(lowered, "duplicate"):
		v.Duplicate = true
	default:
		return Verdict{}, &ParseError{Kind: "verdict", Response: response}
	}

	if m := confidencePattern.FindStringSubmatch(response); m != nil {
		v.Confidence, _ = strconv.Atoi(m[1])
		v.Confidence = min(v.Confidence, 100)
	}
	return v, nil
}

func firstWord(value string) string {
	fields := strings.FieldsFunc(strings.ToLower(value), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func trimQuotes(value string) string {
	return strings.Trim(strings.TrimSpace(value), `'"«»`)
}
