// Package fiscal computes the household's Saturday-aligned accounting periods.
//
// A fiscal week runs Saturday 00:00 through Friday 23:59:59.999. A fiscal
// month starts on the first Saturday of a calendar month and ends the day
// before the next month's first Saturday. All arithmetic is done on the
// wall-clock date components of the input's location; nothing is normalized
// to UTC.
package fiscal

import (
	"fmt"
	"strings"
	"time"
)

// Range is an inclusive time interval.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls within the range, both ends inclusive.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// MonthPeriod is a fiscal month.
type MonthPeriod struct {
	Range
	WeeksInPeriod int `json:"weeks_in_period"`
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 of t's calendar day in t's location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// addDays moves by calendar days, keeping the wall-clock time.
func addDays(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+n, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// daysBetween counts calendar days from a to b.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// firstSaturday returns the first Saturday on or after the 1st of the month.
func firstSaturday(year int, month time.Month, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	offset := (int(time.Saturday) - int(first.Weekday()) + 7) % 7
	return addDays(first, offset)
}

// WeekRange returns the fiscal week containing date.
func WeekRange(date time.Time) Range {
	today := StartOfDay(date)
	diff := 0
	if wd := today.Weekday(); wd != time.Saturday {
		diff = int(wd) + 1
	}
	start := addDays(today, -diff)
	return Range{Start: start, End: EndOfDay(addDays(start, 6))}
}

// MonthRange returns the fiscal month containing date. A date on the
// anchor Saturday itself opens the new period.
func MonthRange(date time.Time) MonthPeriod {
	today := StartOfDay(date)
	loc := today.Location()
	anchor := firstSaturday(today.Year(), today.Month(), loc)

	var start, end time.Time
	if today.Before(anchor) {
		prev := time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, loc)
		start = firstSaturday(prev.Year(), prev.Month(), loc)
		end = EndOfDay(addDays(anchor, -1))
	} else {
		next := time.Date(today.Year(), today.Month()+1, 1, 0, 0, 0, 0, loc)
		start = anchor
		end = EndOfDay(addDays(firstSaturday(next.Year(), next.Month(), loc), -1))
	}

	days := daysBetween(start, end) + 1
	return MonthPeriod{
		Range:         Range{Start: start, End: end},
		WeeksInPeriod: (days + 6) / 7,
	}
}

// WeekNumber returns which week of the period weekStart opens, counting from 1.
func WeekNumber(period MonthPeriod, weekStart time.Time) int {
	days := daysBetween(period.Start, weekStart)
	if days < 0 {
		// floor division for weeks that begin before the period
		return (days-6)/7 + 1
	}
	return days/7 + 1
}

// MaxWeeks is the largest week index a fiscal month can hold.
const MaxWeeks = 5

// WeekOfPeriod returns week n (1-based) of the period, clamped to the
// period's end. ok is false when n is outside 1..MaxWeeks.
func WeekOfPeriod(period MonthPeriod, n int) (r Range, ok bool) {
	if n < 1 || n > MaxWeeks {
		return Range{}, false
	}
	start := addDays(period.Start, (n-1)*7)
	end := EndOfDay(addDays(start, 6))
	if end.After(period.End) {
		end = period.End
	}
	return Range{Start: start, End: end}, true
}

var referenceLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
}

// ParseReference parses a reference date in one of the ISO forms accepted by
// the API. Forms without a zone are read in loc.
func ParseReference(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range referenceLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse reference date %q: unsupported format", s)
}
