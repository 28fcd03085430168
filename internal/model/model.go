package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Well-known schedule names as they appear in the schedules data file.
const (
	ScheduleDefault     = "DEFAULT"
	ScheduleWedLate     = "WED_LATE"
	ScheduleLateArrival = "LATE_ARRIVAL_1010"
)

// CustomOverridePrefix marks an override value that embeds an inline
// schedule definition (JSON) rather than naming a known schedule.
const CustomOverridePrefix = "CUSTOM:"

// Clock is a time-of-day as authored in schedule data. It accepts either
// an "HH:MM" string or a two-element [hour, minute] array.
type Clock struct {
	Hour   int
	Minute int
}

// UnmarshalJSON implements the two accepted wire forms. Anything else is
// an error; callers decide whether to reject or default to midnight.
func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, perr := ParseClockString(s)
		if perr != nil {
			return perr
		}
		*c = parsed
		return nil
	}

	var pair []int
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("clock array must have 2 elements, got %d", len(pair))
		}
		if pair[0] < 0 || pair[0] > 23 || pair[1] < 0 || pair[1] > 59 {
			return fmt.Errorf("clock [%d,%d] out of range", pair[0], pair[1])
		}
		*c = Clock{Hour: pair[0], Minute: pair[1]}
		return nil
	}

	return fmt.Errorf("clock value %s is neither \"HH:MM\" nor [hour,minute]", string(data))
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On anchors the clock onto a calendar date in that date's location.
func (c Clock) On(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Minute, 0, 0, d.Location())
}

// ParseClockString parses "HH:MM" (also accepting a single-digit hour).
func ParseClockString(s string) (Clock, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return Clock{}, fmt.Errorf("malformed clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("clock %q out of range", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

// Period is one entry in a schedule definition.
type Period struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Start   Clock  `json:"start"`
	End     Clock  `json:"end"`
	Include bool   `json:"include"`
}

// Schedule is a named, ordered sequence of periods. The name lives in the
// schedule table key, not in the value.
type Schedule []Period

// ResolvedPeriod is a Period expanded onto a concrete calendar date.
type ResolvedPeriod struct {
	Period
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	// Counts reports whether this period counts toward "periods remaining"
	// totals, derived from Include or a configured id allow-list.
	Counts bool `json:"counts"`
}

// NonAttendance is one labeled span of no-school dates, as authored in
// the non-attendance data file.
type NonAttendance struct {
	Label string `json:"label"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// EarlyRelease is a day with an early dismissal.
type EarlyRelease struct {
	Date  string `json:"date"`
	Time  string `json:"time,omitempty"`
	Title string `json:"title,omitempty"`
}

// MarkingPeriod is a grading-period span.
type MarkingPeriod struct {
	Title string `json:"title"`
	Start string `json:"start"`
	End   string `json:"end"`
	Note  string `json:"note,omitempty"`
}

// SchoolEvent is a dated event such as a parent-teacher conference.
type SchoolEvent struct {
	Date  string `json:"date"`
	Time  string `json:"time,omitempty"`
	Title string `json:"title,omitempty"`
}

// Break is a maximal run of consecutive dates sharing one
// non-attendance label.
type Break struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// DayStatus classifies a calendar date relative to the school year.
type DayStatus struct {
	// Kind is one of the DayStatus* constants below.
	Kind string `json:"kind"`
	// Label is the non-attendance label or "Weekend" for no-school days,
	// empty otherwise.
	Label string `json:"label,omitempty"`
}

const (
	DayNotStarted = "Not started"
	DayCompleted  = "Completed"
	DayNoSchool   = "No school"
	DaySchoolDay  = "School day"
)

// String renders the status the way the dashboard displays it.
func (s DayStatus) String() string {
	if s.Kind == DayNoSchool {
		return fmt.Sprintf("No school: %s", s.Label)
	}
	return s.Kind
}

// IsSchoolDay reports whether classes are in session on this day.
func (s DayStatus) IsSchoolDay() bool {
	return s.Kind == DaySchoolDay
}
