// Package countdown derives the dashboard metrics: school days
// remaining, periods remaining, calendar days remaining, and the next
// break. Every function takes its reference date or instant explicitly.
package countdown

import (
	"time"

	"schooldays/internal/calendar"
	"schooldays/internal/dateutil"
	"schooldays/internal/model"
	"schooldays/internal/schedule"
)

// Calculator combines the calendar snapshot with the schedule resolver.
type Calculator struct {
	snap     *calendar.Snapshot
	resolver *schedule.Resolver
}

func NewCalculator(snap *calendar.Snapshot, resolver *schedule.Resolver) *Calculator {
	return &Calculator{snap: snap, resolver: resolver}
}

// SchoolDaysRemaining counts school days strictly after base. base
// itself is excluded whether or not it is a school day.
func (c *Calculator) SchoolDaysRemaining(base time.Time) int {
	day := dateutil.Midnight(base)
	n := 0
	for d := range c.snap.SchoolDays() {
		if d.After(day) {
			n++
		}
	}
	return n
}

// PeriodsRemainingAt counts the counting periods on instant's calendar
// date whose end is strictly after instant.
func (c *Calculator) PeriodsRemainingAt(instant time.Time) int {
	n := 0
	for _, p := range c.resolver.PeriodsForDate(instant) {
		if p.Counts && p.EndAt.After(instant) {
			n++
		}
	}
	return n
}

// CalendarDaysRemaining counts calendar days strictly after base through
// the last day inclusive; zero once base reaches the last day.
func (c *Calculator) CalendarDaysRemaining(base time.Time) int {
	day := dateutil.Midnight(base)
	if !day.Before(c.snap.LastDay) {
		return 0
	}
	n := 0
	for range dateutil.Range(day.AddDate(0, 0, 1), c.snap.LastDay) {
		n++
	}
	return n
}

// NextBreak scans forward from max(from, firstDay) to the last day for
// the first non-attendance date and returns its break span. Nil when no
// non-attendance date remains in range.
func (c *Calculator) NextBreak(from time.Time) *model.Break {
	start := dateutil.Midnight(from)
	if start.Before(c.snap.FirstDay) {
		start = c.snap.FirstDay
	}
	for d := range dateutil.Range(start, c.snap.LastDay) {
		if b, ok := c.snap.BreakFrom(d); ok {
			return &b
		}
	}
	return nil
}
