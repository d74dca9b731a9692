package enrich

import (
	"fmt"
	"strings"

	"github.com/lysyi3m/bankwatch/app/news"
)

func relevancePrompt(entity, topic, text string) string {
	topicClause, topicContext := "", ""
	if topic != "" {
		topicClause = fmt.Sprintf(" и теме \"%s\"", topic)
		topicContext = " и " + topic
	}
	return fmt.Sprintf(
		"Относится ли новость к банку (АО, ПАО, ООО, КБ) '%[1]s'%[2]s? Текст: '%[3]s'. "+
			"Контекст: '%[1]s' - это банк, предоставляющий финансовые услуги (вклады, ипотека, кредиты, недвижимость, санкции, "+
			"технологии, финансы, регуляторы, IPO, инфраструктура, установка банкоматов, открытие офисов%[4]s). "+
			"Исключи новости, где вместо банка '%[1]s' упоминаются другие организации с похожими названиями. "+
			"Банк может фигурировать в разных финансовых контекстах (рейтинги, сделки, строительство). "+
			"Ответь одним словом: Да/Нет",
		entity, topicClause, text, topicContext)
}

func summaryPrompt(entity, text, date string) string {
	return fmt.Sprintf(
		"Составь выжимку новости для банка '%[1]s' на основе текста: '%[2]s', которая будет содержать важные события и изменения в банке. "+
			"Укажи тип события, дату события и ключевые сущности (упоминая '%[1]s' и связанные организации, через запятую).\n"+
			"Примеры:\n"+
			"- Текст: 'Банк снизил ставки по ипотеке до 7%% с 28 июля.' Выжимка: '%[1]s снизил ставки по ипотеке до 7%% с 28 июля.' "+
			"Тип события: ипотека. Дата события: 2025-07-28. Ключевые сущности: %[1]s.\n"+
			"- Текст: 'ЦБ оштрафовал банк на 1 млн руб за нарушения.' Выжимка: 'ЦБ оштрафовал %[1]s на 1 млн руб за нарушения.' "+
			"Тип события: штраф. Дата события: %[3]s. Ключевые сущности: %[1]s, ЦБ.\n"+
			"- Текст: 'Компания запустила новый сервис.' Выжимка: 'Отсутствуют релевантные события, связанные с банком.' "+
			"Тип события: нет. Дата события: %[3]s. Ключевые сущности: компания.\n"+
			"Формат:\n"+
			"Выжимка: [текст]\n"+
			"Тип события: [тип]\n"+
			"Дата события: [ГГГГ-ММ-ДД]\n"+
			"Ключевые сущности: [сущности]",
		entity, text, date)
}

func categoryPrompt(entity, text string) string {
	return fmt.Sprintf(
		"Определи категорию новости для банка '%s': '%s'. "+
			"Ответь одним словом: Реклама, Важная, Риск, Обычная. "+
			"Реклама - продукты (вклады, ипотека, кредиты, недвижимость); Важная - IPO, смена руководства, технологии, санкции, установка банкоматов; "+
			"Риск - штрафы, санкции, убытки, жалобы клиентов; Обычная - остальные.",
		entity, text)
}

func sentimentPrompt(entity, text string) string {
	return fmt.Sprintf(
		"Определи тональность новости для банка '%s' на основе текста: '%s'. "+
			"Ответь в формате: 'Тональность: [Позитивная/Негативная/Нейтральная]. Объяснение: [краткое объяснение (до 20 слов)]'.\n"+
			"- Позитивная: прибыль, рост, новые продукты, технологии, награды, расширение услуг, успешные сделки.\n"+
			"- Негативная: санкции, штрафы, убытки, клиентские жалобы, проблемы с услугами, скандалы, закрытие филиалов.\n"+
			"- Нейтральная: статистика, открытие филиалов, регуляторные изменения без явных последствий.\n"+
			"Если новость связана с клиентскими претензиями или проблемами, считай её Негативной, если нет явного положительного разрешения.",
		entity, text)
}

func duplicatePrompt(a, b news.EnrichedItem) string {
	var sb strings.Builder
	sb.WriteString("Ты - эксперт по анализу финансовых новостей. Определи, являются ли две выжимки ОДНИМ И ТЕМ ЖЕ СОБЫТИЕМ. ")
	sb.WriteString("Даже если типы событий немного отличаются, но описывается одно и то же событие, считай дубликатом.\n")
	sb.WriteString("КРИТЕРИИ ДЛЯ ДУБЛИКАТОВ:\n")
	sb.WriteString("1. Одно и то же конкретное событие (один и тот же штраф ЦБ, одна и та же сделка, одно и то же решение суда).\n")
	sb.WriteString("2. Совпадают ключевые сущности и дата события.\n")
	sb.WriteString("3. Схожесть по смыслу превышает 70% (учитывай синонимы и перефразировки, но фокус на фактах).\n")
	sb.WriteString("КРИТЕРИИ ДЛЯ НЕ ДУБЛИКАТОВ:\n")
	sb.WriteString("1. Разные события, даже если они по одной теме.\n")
	sb.WriteString("2. Отличаются ключевые сущности или факты.\n")
	sb.WriteString("3. Разница в датах превышает 3 дня.\n")
	sb.WriteString("ВАЖНО: если есть неуверенность, считай НЕ дубликатом.\n")
	fmt.Fprintf(&sb, "Выжимка 1: '%s'\n", a.Summary)
	fmt.Fprintf(&sb, "Выжимка 2: '%s'\n", b.Summary)
	fmt.Fprintf(&sb, "Ключевые сущности 1: %s\n", strings.Join(a.Entities, ", "))
	fmt.Fprintf(&sb, "Ключевые сущности 2: %s\n", strings.Join(b.Entities, ", "))
	fmt.Fprintf(&sb, "Дата события 1: %s\n", news.FormatDate(a.EventDate))
	fmt.Fprintf(&sb, "Дата события 2: %s\n", news.FormatDate(b.EventDate))
	fmt.Fprintf(&sb, "Тип события 1: %s\n", a.EventType)
	fmt.Fprintf(&sb, "Тип события 2: %s\n", b.EventType)
	sb.WriteString("Дай ответ в формате:\n")
	sb.WriteString("Решение: [Дубликат/Не дубликат]\n")
	sb.WriteString("Доверие: [0-100]\n")
	sb.WriteString("Обоснование: [краткое объяснение]")
	return sb.String()
}
