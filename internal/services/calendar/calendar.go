// Package calendar picks the trading day whose snapshot serves as a comparison baseline.
package calendar

import "github.com/vadiminshakov/fundwatch/pkg/date"

// maxLookback bounds the backward search; a week is enough to cross any weekend.
const maxLookback = 10

// Calendar is a weekend-aware trading calendar with an optional holiday set.
// It is immutable after construction and safe for concurrent use.
type Calendar struct {
	holidays map[date.Date]struct{}
}

// New creates a calendar treating the given dates as market holidays.
func New(holidays ...date.Date) *Calendar {
	c := &Calendar{holidays: make(map[date.Date]struct{}, len(holidays))}
	for _, h := range holidays {
		c.holidays[h] = struct{}{}
	}
	return c
}

// IsBusinessDay reports whether d is neither a weekend day nor a holiday.
func (c *Calendar) IsBusinessDay(d date.Date) bool {
	if d.IsWeekend() {
		return false
	}
	_, holiday := c.holidays[d]
	return !holiday
}

// PreviousBusinessDay returns the latest business day strictly before d.
// When holidays block the whole search window it returns the nearest earlier
// weekday, so the result is never a Saturday or a Sunday.
func (c *Calendar) PreviousBusinessDay(d date.Date) date.Date {
	var fallback date.Date
	for i := 1; i <= maxLookback; i++ {
		candidate := d.Add(-i)
		if candidate.IsWeekend() {
			continue
		}
		if fallback.IsZero() {
			fallback = candidate
		}
		if c.IsBusinessDay(candidate) {
			return candidate
		}
	}

	return fallback
}

// PreviousBusinessDays returns the n business days before d, most recent first.
func (c *Calendar) PreviousBusinessDays(d date.Date, n int) []date.Date {
	days := make([]date.Date, 0, n)
	for range n {
		d = c.PreviousBusinessDay(d)
		days = append(days, d)
	}
	return days
}
