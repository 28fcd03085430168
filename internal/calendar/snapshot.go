// Package calendar materializes the school-year state: term bounds, the
// schedule table, the non-attendance lookup, and the special-day sets.
// A Snapshot is immutable once built; queries take their date arguments
// explicitly so there is no hidden clock anywhere in the core.
package calendar

import (
	"fmt"
	"iter"
	"time"

	"schooldays/internal/dateutil"
	"schooldays/internal/model"
)

// Params carries the loaded (or fixture) data a Snapshot is built from.
type Params struct {
	// FirstDay and LastDay are the inclusive term bounds, YYYY-MM-DD.
	FirstDay string
	LastDay  string
	// Location interprets date keys; nil means time.Local.
	Location *time.Location

	Schedules     map[string]model.Schedule
	NonAttendance []model.NonAttendance
	// LateStart and LateArrival are YYYY-MM-DD date keys.
	LateStart   []string
	LateArrival []string

	EarlyRelease   []model.EarlyRelease
	MarkingPeriods []model.MarkingPeriod
	Events         []model.SchoolEvent
}

// Snapshot is the query-ready school-year state.
type Snapshot struct {
	FirstDay time.Time
	LastDay  time.Time
	Location *time.Location

	schedules     map[string]model.Schedule
	nonAttendance map[string]string
	lateStart     map[string]struct{}
	lateArrival   map[string]struct{}

	EarlyRelease   []model.EarlyRelease
	MarkingPeriods []model.MarkingPeriod
	Events         []model.SchoolEvent
}

// New builds a Snapshot from Params, expanding every non-attendance span
// into the date-to-label lookup. Overlapping spans resolve last-write-wins
// in load order.
func New(p Params) (*Snapshot, error) {
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}

	first, err := parseKeyIn(p.FirstDay, loc)
	if err != nil {
		return nil, fmt.Errorf("first day: %w", err)
	}
	last, err := parseKeyIn(p.LastDay, loc)
	if err != nil {
		return nil, fmt.Errorf("last day: %w", err)
	}
	if last.Before(first) {
		return nil, fmt.Errorf("term bounds reversed: %s after %s", p.FirstDay, p.LastDay)
	}

	s := &Snapshot{
		FirstDay:       first,
		LastDay:        last,
		Location:       loc,
		schedules:      map[string]model.Schedule{},
		nonAttendance:  map[string]string{},
		lateStart:      map[string]struct{}{},
		lateArrival:    map[string]struct{}{},
		EarlyRelease:   p.EarlyRelease,
		MarkingPeriods: p.MarkingPeriods,
		Events:         p.Events,
	}

	for name, sched := range p.Schedules {
		s.schedules[name] = sched
	}

	for _, entry := range p.NonAttendance {
		start, err := parseKeyIn(entry.Start, loc)
		if err != nil {
			return nil, fmt.Errorf("non-attendance %q start: %w", entry.Label, err)
		}
		end, err := parseKeyIn(entry.End, loc)
		if err != nil {
			return nil, fmt.Errorf("non-attendance %q end: %w", entry.Label, err)
		}
		for d := range dateutil.Range(start, end) {
			s.nonAttendance[dateutil.DateKey(d)] = entry.Label
		}
	}

	for _, key := range p.LateStart {
		s.lateStart[key] = struct{}{}
	}
	for _, key := range p.LateArrival {
		s.lateArrival[key] = struct{}{}
	}

	return s, nil
}

func parseKeyIn(key string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date key %q: %w", key, err)
	}
	return t, nil
}

// Schedule returns the named schedule definition.
func (s *Snapshot) Schedule(name string) (model.Schedule, bool) {
	sched, ok := s.schedules[name]
	return sched, ok
}

// ScheduleNames returns the names present in the schedule table.
func (s *Snapshot) ScheduleNames() []string {
	names := make([]string, 0, len(s.schedules))
	for name := range s.schedules {
		names = append(names, name)
	}
	return names
}

// NonAttendanceLabel returns the no-school label for a date, if any.
func (s *Snapshot) NonAttendanceLabel(d time.Time) (string, bool) {
	label, ok := s.nonAttendance[dateutil.DateKey(d)]
	return label, ok
}

// IsLateStart reports whether the date key is in the late-start set.
func (s *Snapshot) IsLateStart(key string) bool {
	_, ok := s.lateStart[key]
	return ok
}

// IsLateArrival reports whether the date key is in the late-arrival set.
func (s *Snapshot) IsLateArrival(key string) bool {
	_, ok := s.lateArrival[key]
	return ok
}

// LateStartKeys returns the late-start date keys, unordered.
func (s *Snapshot) LateStartKeys() []string {
	return setKeys(s.lateStart)
}

// LateArrivalKeys returns the late-arrival date keys, unordered.
func (s *Snapshot) LateArrivalKeys() []string {
	return setKeys(s.lateArrival)
}

func setKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// DayStatus classifies a date. Precedence: before term, after term,
// non-attendance, weekend, school day.
func (s *Snapshot) DayStatus(d time.Time) model.DayStatus {
	day := dateutil.Midnight(d)
	if day.Before(s.FirstDay) {
		return model.DayStatus{Kind: model.DayNotStarted}
	}
	if day.After(s.LastDay) {
		return model.DayStatus{Kind: model.DayCompleted}
	}
	if label, ok := s.NonAttendanceLabel(day); ok {
		return model.DayStatus{Kind: model.DayNoSchool, Label: label}
	}
	if !dateutil.IsWeekday(day) {
		return model.DayStatus{Kind: model.DayNoSchool, Label: "Weekend"}
	}
	return model.DayStatus{Kind: model.DaySchoolDay}
}

// BreakFrom returns the break span beginning at d: the run of
// consecutive dates sharing d's non-attendance label, bounded by the
// last day. A different or absent label ends the run. ok is false when
// d is not a non-attendance date.
func (s *Snapshot) BreakFrom(d time.Time) (model.Break, bool) {
	day := dateutil.Midnight(d)
	label, ok := s.NonAttendanceLabel(day)
	if !ok {
		return model.Break{}, false
	}
	end := day
	for f := range dateutil.Range(day.AddDate(0, 0, 1), s.LastDay) {
		next, ok := s.NonAttendanceLabel(f)
		if !ok || next != label {
			break
		}
		end = f
	}
	return model.Break{Start: day, End: end, Label: label}, true
}

// SchoolDays yields every weekday in the term that is not a
// non-attendance day, in order. Recomputed on demand; the term window is
// bounded to a school year, so there is nothing worth caching.
func (s *Snapshot) SchoolDays() iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for d := range dateutil.Range(s.FirstDay, s.LastDay) {
			if !dateutil.IsWeekday(d) {
				continue
			}
			if _, ok := s.NonAttendanceLabel(d); ok {
				continue
			}
			if !yield(d) {
				return
			}
		}
	}
}

// AllSchoolDays collects SchoolDays into a slice.
func (s *Snapshot) AllSchoolDays() []time.Time {
	var out []time.Time
	for d := range s.SchoolDays() {
		out = append(out, d)
	}
	return out
}
