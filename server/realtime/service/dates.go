package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DateParser resolves date and time mentions inside Spanish free text.
// Relative vocabulary (hoy, mañana, weekdays, "en N días") is handled
// here; explicit formats (25/12/2026, 2026-12-25) are delegated to
// dateparse with day-first preference.
type DateParser struct {
	now func() time.Time
}

func NewDateParser() *DateParser {
	return &DateParser{now: time.Now}
}

// NewDateParserAt pins "now" for deterministic parsing.
func NewDateParserAt(now func() time.Time) *DateParser {
	return &DateParser{now: now}
}

var (
	relativeDaysRe  = regexp.MustCompile(`en\s+(\d{1,3})\s+d[ií]as?`)
	relativeWeeksRe = regexp.MustCompile(`en\s+(\d{1,2})\s+semanas?`)
	dayOfMonthRe    = regexp.MustCompile(`(?:el\s+)?(\d{1,2})\s+de\s+(enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|octubre|noviembre|diciembre)(?:\s+de[l]?\s+(\d{4}))?`)
	slashDateRe     = regexp.MustCompile(`\b(\d{1,2}/\d{1,2}(?:/\d{2,4})?)\b`)
	isoDateRe       = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	clockTimeRe     = regexp.MustCompile(`a\s+las?\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm|h|hrs|horas)?`)
	todayRe         = regexp.MustCompile(`\bhoy\b`)
)

var spanishMonths = map[string]time.Month{
	"enero": time.January, "febrero": time.February, "marzo": time.March,
	"abril": time.April, "mayo": time.May, "junio": time.June,
	"julio": time.July, "agosto": time.August, "septiembre": time.September,
	"octubre": time.October, "noviembre": time.November, "diciembre": time.December,
}

type weekdayRule struct {
	pattern *regexp.Regexp
	day     time.Weekday
}

var spanishWeekdays = []weekdayRule{
	{regexp.MustCompile(`\blunes\b`), time.Monday},
	{regexp.MustCompile(`\bmartes\b`), time.Tuesday},
	{regexp.MustCompile(`\bmi[eé]rcoles\b`), time.Wednesday},
	{regexp.MustCompile(`\bjueves\b`), time.Thursday},
	{regexp.MustCompile(`\bviernes\b`), time.Friday},
	{regexp.MustCompile(`\bs[aá]bado\b`), time.Saturday},
	{regexp.MustCompile(`\bdomingo\b`), time.Sunday},
}

// ParseDate scans text for the first resolvable date mention. It returns
// false when no mention resolves; it never guesses a default.
func (p *DateParser) ParseDate(text string) (time.Time, bool) {
	lowered := strings.ToLower(text)
	today := p.midnight(p.now())

	if strings.Contains(lowered, "pasado mañana") || strings.Contains(lowered, "pasado manana") {
		return today.AddDate(0, 0, 2), true
	}
	if strings.Contains(lowered, "mañana") || strings.Contains(lowered, "manana") {
		return today.AddDate(0, 0, 1), true
	}
	if todayRe.MatchString(lowered) {
		return today, true
	}

	if m := relativeDaysRe.FindStringSubmatch(lowered); m != nil {
		n, _ := strconv.Atoi(m[1])
		return today.AddDate(0, 0, n), true
	}
	if m := relativeWeeksRe.FindStringSubmatch(lowered); m != nil {
		n, _ := strconv.Atoi(m[1])
		return today.AddDate(0, 0, n*7), true
	}

	for _, rule := range spanishWeekdays {
		if rule.pattern.MatchString(lowered) {
			return nextWeekday(today, rule.day), true
		}
	}

	if m := dayOfMonthRe.FindStringSubmatch(lowered); m != nil {
		day, _ := strconv.Atoi(m[1])
		month := spanishMonths[m[2]]
		year := today.Year()
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		}
		candidate := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		if m[3] == "" && candidate.Before(today) {
			candidate = candidate.AddDate(1, 0, 0)
		}
		if candidate.Day() == day {
			return candidate, true
		}
	}

	if m := isoDateRe.FindStringSubmatch(lowered); m != nil {
		if parsed, err := dateparse.ParseIn(m[1], time.UTC); err == nil {
			return p.midnight(parsed), true
		}
	}
	if m := slashDateRe.FindStringSubmatch(lowered); m != nil {
		token := m[1]
		if strings.Count(token, "/") == 1 {
			token = fmt.Sprintf("%s/%d", token, today.Year())
		}
		if parsed, err := dateparse.ParseIn(token, time.UTC, dateparse.PreferMonthFirst(false)); err == nil {
			return p.midnight(parsed), true
		}
	}

	return time.Time{}, false
}

// ParseTime extracts an "a las HH(:MM)" mention as "HH:MM".
func (p *DateParser) ParseTime(text string) (string, bool) {
	m := clockTimeRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return "", false
	}
	hour, _ := strconv.Atoi(m[1])
	if hour > 23 {
		return "", false
	}
	switch {
	case m[3] == "pm" && hour < 12:
		hour += 12
	case m[3] == "am" && hour == 12:
		hour = 0
	}
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
		if minute > 59 {
			return "", false
		}
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

func (p *DateParser) midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nextWeekday(from time.Time, target time.Weekday) time.Time {
	delta := (int(target) - int(from.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return from.AddDate(0, 0, delta)
}
