package news

import (
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func NewDateRange(from, to time.Time) DateRange {
	return DateRange{From: Day(from), To: Day(to)}
}

func (r DateRange) Valid() bool {
	return !r.From.After(r.To)
}

func (r DateRange) Contains(d time.Time) bool {
	d = Day(d)
	return !d.Before(r.From) && !d.After(r.To)
}

// Covers reports whether other lies entirely inside r.
func (r DateRange) Covers(other DateRange) bool {
	return !other.From.Before(r.From) && !other.To.After(r.To)
}

func (r DateRange) Days() int {
	return DaysBetween(r.From, r.To) + 1
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", FormatDate(r.From), FormatDate(r.To))
}

// Day truncates t to its calendar date, keeping the wall-clock date of t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

var dateLayouts = []string{
	DateLayout,
	"02.01.2006",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
}

// ParseDate accepts the date formats seen across producers and returns the calendar date.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return Day(t), nil
		}
	}
	if len(value) >= 10 {
		if t, err := time.Parse(DateLayout, value[:10]); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date '%s'", value)
}

// DaysBetween returns the absolute number of calendar days between a and b.
func DaysBetween(a, b time.Time) int {
	diff := Day(a).Sub(Day(b))
	if diff < 0 {
		diff = -diff
	}
	return int(diff / (24 * time.Hour))
}
