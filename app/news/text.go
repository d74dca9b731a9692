package news

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var lower = cases.Lower(language.Und)

// NormalizeText lowercases text, replaces punctuation with spaces and collapses whitespace.
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}
	text = lower.String(norm.NFKC.String(text))

	var b strings.Builder
	b.Grow(len(text))
	space := true
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// MatchesAliases reports whether every word of at least one alias occurs in text.
func MatchesAliases(text string, aliases []string) bool {
	normalized := NormalizeText(text)
	if normalized == "" {
		return false
	}
	for _, alias := range aliases {
		words := strings.Fields(NormalizeText(alias))
		if len(words) == 0 {
			continue
		}
		matched := true
		for _, word := range words {
			if !strings.Contains(normalized, word) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// Informativeness scores text by its number of distinct words.
func Informativeness(text string) int {
	words := strings.Fields(NormalizeText(text))
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	return len(unique) * 5
}

func ContentHash(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

var topicKeywords = map[string][]string{
	"ипотека":         {"ипотек", "ипотечн", "жилье", "недвижимость", "кредит на жилье"},
	"кредит":          {"кредит", "заем", "ссуд", "потребительский кредит", "автокредит"},
	"санкции":         {"санкци", "ограничен", "блокиров", "запрет"},
	"технологии":      {"технолог", "it", "айти", "инновац", "цифров", "онлайн", "мобильн", "приложен"},
	"финансы":         {"финанс", "капитал", "актив", "прибыль", "убыток", "рентабельность"},
	"открытие офисов": {"офис", "отделен", "филиал", "точка", "банкомат", "атм"},
	"штраф":           {"штраф", "взыскан", "нарушен", "санкци", "пени", "неустойка"},
	"жалоба клиента":  {"жалоб", "претензи", "недовольств", "обман", "мошенничеств", "суд", "исковое"},
}

// TopicRelevant reports whether text mentions topic directly or through its keyword stems.
// An empty topic matches everything.
func TopicRelevant(text, topic string) bool {
	normalizedTopic := NormalizeText(topic)
	if normalizedTopic == "" {
		return true
	}
	normalized := NormalizeText(text)
	if strings.Contains(normalized, normalizedTopic) {
		return true
	}
	keywords, ok := topicKeywords[normalizedTopic]
	if !ok {
		return false
	}
	for _, keyword := range keywords {
		if strings.Contains(normalized, keyword) {
			return true
		}
	}
	return false
}

var financialKeywords = []string{
	"банк", "кредит", "ипотек", "вклад", "ставка", "санкци", "штраф", "цб", "финанс",
	"инвестиц", "акция", "облигаци", "платеж", "перевод", "карта", "счет", "офис",
	"банкомат", "приложени", "онлайн", "мобильный", "прибыль", "убыток", "риск",
	"регулятор", "лицензи", "страхован", "вкладчик", "заемщик", "кредитор", "депозит",
}

func HasFinancialKeyword(text string) bool {
	normalized := NormalizeText(text)
	for _, keyword := range financialKeywords {
		if strings.Contains(normalized, keyword) {
			return true
		}
	}
	return false
}

// MentionsShared reports whether any mention in a is contained in a mention of b or vice versa,
// ignoring case.
func MentionsShared(a, b []string) bool {
	for _, x := range a {
		x = strings.TrimSpace(lower.String(x))
		if x == "" {
			continue
		}
		for _, y := range b {
			y = strings.TrimSpace(lower.String(y))
			if y == "" {
				continue
			}
			if strings.Contains(x, y) || strings.Contains(y, x) {
				return true
			}
		}
	}
	return false
}

var trustedSources = []string{"tass.ru", "interfax.ru", "kommersant.ru", "vedomosti.ru"}

// IsTrustedSource matches the host of a link or a bare source domain against the trusted list.
func IsTrustedSource(source string) bool {
	host := source
	if u, err := url.Parse(source); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, trusted := range trustedSources {
		if host == trusted || strings.HasSuffix(host, "."+trusted) {
			return true
		}
	}
	return false
}
