package news

import (
	"strings"
	"unicode"
)

var eventTypeMapping = map[string]string{
	"санкции":                  "санкции",
	"судебное разбирательство": "санкции",
	"обжалование":              "санкции",
	"апелляция":                "санкции",
	"оспаривание санкций":      "санкции",
	"жалоба в суд":             "санкции",

	"ипотека":                  "ипотека",
	"семейная ипотека":         "ипотека",
	"it ипотека":               "ипотека",
	"цифровая ипотека":         "ипотека",
	"льготная ипотека":         "ипотека",
	"рефинансирование ипотеки": "ипотека",
	"ипотечное кредитование":   "ипотека",

	"кредитование":                "кредитование",
	"выдача кредита":              "кредитование",
	"дополнительное кредитование": "кредитование",
	"реструктуризация кредита":    "кредитование",
	"кредитный лимит":             "кредитование",
	"кредитные лимиты":            "кредитование",

	"запуск продукта":        "запуск продукта",
	"новый продукт":          "запуск продукта",
	"вывод на рынок":         "запуск продукта",
	"релиз продукта":         "запуск продукта",
	"инвестиционный продукт": "запуск продукта",
	"биржевой фонд":          "запуск продукта",
	"конкурс":                "запуск продукта",
	"розыгрыш":               "запуск продукта",
	"акция":                  "запуск продукта",

	"трансформация it архитектуры": "трансформация it-архитектуры",
	"реинжиниринг it ландшафта":    "трансформация it-архитектуры",
	"цифровая трансформация":       "трансформация it-архитектуры",
	"миграция на новую платформу":  "трансформация it-архитектуры",
	"обновление core системы":      "трансформация it-архитектуры",

	"прогноз ключевой ставки":   "прогноз ключевой ставки",
	"прогноз по ставке":         "прогноз ключевой ставки",
	"аналитика ключевой ставки": "прогноз ключевой ставки",
	"ключевая ставка":           "прогноз ключевой ставки",
	"ставка цб":                 "прогноз ключевой ставки",
	"монетарная политика":       "прогноз ключевой ставки",

	"поддержка предпринимателей":  "поддержка предпринимателей",
	"кредитование малого бизнеса": "поддержка предпринимателей",
	"мсп":                         "поддержка предпринимателей",
	"ип":                          "поддержка предпринимателей",

	"обследование операций": "обследование операций",
	"проверка цб":           "обследование операций",
	"аудит банка":           "обследование операций",
	"надзорное мероприятие": "обследование операций",

	"смена руководства":  "смена руководства",
	"кадровые изменения": "смена руководства",
	"назначение":         "смена руководства",
	"уход ceo":           "смена руководства",
	"новый ceo":          "смена руководства",

	"инвестиции":           "инвестиции",
	"допэмиссия":           "инвестиции",
	"привлечение капитала": "инвестиции",
	"размещение акций":     "инвестиции",
	"спо":                  "инвестиции",

	"налоги":                  "налоги",
	"налоговое регулирование": "налоги",
	"материальная выгода":     "налоги",
	"налогообложение физлиц":  "налоги",

	"регистрация компании":       "регистрация компании",
	"жалоба клиента":             "жалоба клиента",
	"штраф":                      "штраф",
	"взыскание":                  "штраф",
	"административный штраф":     "штраф",
	"недвижимость":               "недвижимость",
	"денежно кредитная политика": "денежно-кредитная политика",
	"рейтинг":                    "рейтинг",
	"рейтинговое действие":       "рейтинг",
}

// NormalizeEventType lowercases, strips punctuation and maps known synonyms onto a canonical type.
// Hyphens become spaces so "денежно-кредитная политика" hits its mapping.
func NormalizeEventType(eventType string) string {
	var b strings.Builder
	for _, r := range lower.String(strings.TrimSpace(eventType)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		case r == '-':
			b.WriteRune(' ')
		}
	}
	normalized := strings.Join(strings.Fields(b.String()), " ")
	if mapped, ok := eventTypeMapping[normalized]; ok {
		return mapped
	}
	return normalized
}

// Groupable reports whether items of this normalized type get a dedup group of their own.
func Groupable(eventType string) bool {
	switch eventType {
	case "", EventTypeAdvert, EventTypeGeneric, EventTypeUnknown:
		return false
	}
	return true
}

// IsGenericType reports whether a type disables the shared-mention fast reject.
func IsGenericType(eventType string) bool {
	return eventType == EventTypeAdvert || eventType == EventTypeGeneric
}
