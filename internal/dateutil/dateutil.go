// Package dateutil holds the small date helpers shared across the
// calendar, schedule, and countdown packages. All helpers operate on
// local-midnight dates; clock times live in model.Clock.
package dateutil

import (
	"fmt"
	"iter"
	"time"
)

const dateKeyLayout = "2006-01-02"

// ParseDateKey parses a YYYY-MM-DD key into a local-midnight date.
func ParseDateKey(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateKeyLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date key %q: %w", s, err)
	}
	return t, nil
}

// DateKey formats a date as YYYY-MM-DD using its local calendar fields.
func DateKey(t time.Time) string {
	return Midnight(t).Format(dateKeyLayout)
}

// Midnight normalizes t to 00:00:00 on its calendar date, preserving the
// location so DST transitions keep calendar-day semantics.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Range yields every midnight-normalized date from start to end inclusive,
// stepping one calendar day. Both ends are normalized first, so callers may
// pass non-midnight inputs. The sequence is restartable.
func Range(start, end time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		s := Midnight(start)
		e := Midnight(end)
		for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
			if !yield(d) {
				return
			}
		}
	}
}

// IsWeekday reports whether t falls on Monday through Friday.
func IsWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// FormatLong renders a date as "Monday, Aug 5, 2025". Day numbers are
// not zero-padded.
func FormatLong(t time.Time) string {
	return t.Format("Monday, Jan 2, 2006")
}

// FormatShort renders a date as "Aug 5".
func FormatShort(t time.Time) string {
	return t.Format("Jan 2")
}

// Pluralize renders "<n> <singular>" when n == 1, else "<n> <plural>".
func Pluralize(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
