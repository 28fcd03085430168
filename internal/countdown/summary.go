package countdown

import (
	"fmt"
	"strings"
	"time"

	"schooldays/internal/dateutil"
	"schooldays/internal/model"
)

// Chip is one period entry on the dashboard, colored by its relation to
// the reference instant.
type Chip struct {
	ID      string    `json:"id"`
	Label   string    `json:"label"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	// State is "past", "now", "upcoming", or "" for neutral preview chips.
	State string `json:"state,omitempty"`
}

// Summary is the complete dashboard view-model for one base date.
type Summary struct {
	Date    string `json:"date"`
	Preview bool   `json:"preview"`

	Topline          string `json:"topline"`
	SchoolDaysLeft   int    `json:"school_days_left"`
	PeriodsLeft      int    `json:"periods_left"`
	CalendarDaysLeft int    `json:"calendar_days_left"`

	Status     string       `json:"status"`
	StatusLine string       `json:"status_line"`
	NextBreak  *model.Break `json:"next_break,omitempty"`
	BreakLine  string       `json:"break_line"`
	YearRange  string       `json:"year_range"`

	Chips  []Chip   `json:"chips"`
	Badges []string `json:"badges,omitempty"`
}

// Summarize builds the dashboard view for a base date. now is the real
// clock instant used for chip coloring and "periods left today"; when
// base is a different calendar date than now, the view is a preview:
// chips render neutral and the period metric becomes the count of
// counting periods on that day.
func (c *Calculator) Summarize(base, now time.Time) Summary {
	day := dateutil.Midnight(base)
	preview := !dateutil.SameDate(day, now)

	// For previews the reference instant pins to that midnight so no
	// chip looks started or finished.
	ref := now
	if preview {
		ref = day
	}

	status := c.snap.DayStatus(day)
	daysLeft := c.SchoolDaysRemaining(day)

	var periodsLeft int
	if preview {
		for _, p := range c.resolver.PeriodsForDate(day) {
			if p.Counts {
				periodsLeft++
			}
		}
	} else if status.IsSchoolDay() {
		periodsLeft = c.PeriodsRemainingAt(now)
	}

	var chips []Chip
	for _, p := range c.resolver.PeriodsForDate(day) {
		if !p.Counts {
			continue
		}
		chip := Chip{
			ID:      p.ID,
			Label:   p.Label,
			StartAt: p.StartAt,
			EndAt:   p.EndAt,
		}
		if !preview {
			switch {
			case !p.EndAt.After(ref):
				chip.State = "past"
			case !p.StartAt.After(ref):
				chip.State = "now"
			default:
				chip.State = "upcoming"
			}
		}
		chips = append(chips, chip)
	}

	label := "Today"
	if preview {
		label = "Selected day"
	}

	var badges []string
	if preview {
		badges = append(badges, fmt.Sprintf("Preview: %s", dateutil.FormatLong(day)))
	}
	if mode := c.resolver.ModeLabel(day); mode != "" {
		badges = append(badges, mode)
	}

	return Summary{
		Date:             dateutil.DateKey(day),
		Preview:          preview,
		Topline:          fmt.Sprintf("%s and %s left", dateutil.Pluralize(daysLeft, "day", "days"), dateutil.Pluralize(periodsLeft, "period", "periods")),
		SchoolDaysLeft:   daysLeft,
		PeriodsLeft:      periodsLeft,
		CalendarDaysLeft: c.CalendarDaysRemaining(day),
		Status:           status.String(),
		StatusLine:       fmt.Sprintf("%s: %s (%s)", label, status, dateutil.FormatLong(day)),
		NextBreak:        c.NextBreak(day),
		BreakLine:        c.breakLine(day),
		YearRange:        c.yearRange(),
		Chips:            chips,
		Badges:           badges,
	}
}

func (c *Calculator) breakLine(day time.Time) string {
	nb := c.NextBreak(day)
	if nb == nil {
		return "Next break: None - approaching the end of the year"
	}
	if nb.Start.Equal(nb.End) {
		return fmt.Sprintf("Next break: %s on %s", nb.Label, nb.Start.Format("Monday, Jan 2"))
	}
	return fmt.Sprintf("Next break: %s-%s (%s)",
		dateutil.FormatShort(nb.Start), dateutil.FormatShort(nb.End), nb.Label)
}

func (c *Calculator) yearRange() string {
	return fmt.Sprintf("School year: %s - %s",
		c.snap.FirstDay.Format("Monday, Jan 2"),
		c.snap.LastDay.Format("Jan 2, 2006"))
}

// Text renders the summary as the plain-text export lines.
func (s Summary) Text() string {
	lines := []string{
		fmt.Sprintf("%d days and %d periods left", s.SchoolDaysLeft, s.PeriodsLeft),
		fmt.Sprintf("%d calendar days left", s.CalendarDaysLeft),
		s.StatusLine,
		s.BreakLine,
		s.YearRange,
	}
	if s.Preview {
		lines = append(lines, fmt.Sprintf("(Preview mode: %s)", s.Date))
	}
	return strings.Join(lines, "\n") + "\n"
}
