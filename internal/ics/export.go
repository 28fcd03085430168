// Package ics publishes the school calendar as an iCalendar
// subscription feed: breaks as merged all-day spans, special-schedule
// days, early releases, and marking-period bounds.
package ics

import (
	"fmt"
	"sort"
	"time"

	ical "github.com/arran4/golang-ical"

	"schooldays/internal/calendar"
	"schooldays/internal/dateutil"
	"schooldays/internal/model"
)

const (
	productID = "-//schooldays//School Calendar//EN"
	uidDomain = "schooldays.local"
)

// Feed builds the subscription feed for a snapshot. calName becomes the
// calendar's display name; now stamps the DTSTAMP of every event.
func Feed(snap *calendar.Snapshot, calName string, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetCalscale("GREGORIAN")
	cal.SetXWRCalName(calName)
	cal.SetXWRTimezone(snap.Location.String())

	for _, b := range Breaks(snap) {
		ev := cal.AddEvent(fmt.Sprintf("break-%s@%s", dateutil.DateKey(b.Start), uidDomain))
		ev.SetDtStampTime(now)
		ev.SetAllDayStartAt(b.Start)
		// DTEND is exclusive for all-day events.
		ev.SetAllDayEndAt(b.End.AddDate(0, 0, 1))
		ev.SetSummary(b.Label)
		ev.SetDescription("No school")
	}

	addDaySet(cal, now, snap.LateStartKeys(), snap.Location, "late-start", "Late Start")
	addDaySet(cal, now, snap.LateArrivalKeys(), snap.Location, "late-arrival", "Late Arrival")

	for _, er := range snap.EarlyRelease {
		d, err := parseKey(er.Date, snap.Location)
		if err != nil {
			continue
		}
		ev := cal.AddEvent(fmt.Sprintf("early-%s@%s", er.Date, uidDomain))
		ev.SetDtStampTime(now)
		ev.SetAllDayStartAt(d)
		ev.SetAllDayEndAt(d.AddDate(0, 0, 1))
		title := er.Title
		if title == "" {
			title = "Early Release"
		}
		ev.SetSummary(title)
		if er.Time != "" {
			ev.SetDescription(fmt.Sprintf("Dismissal at %s", er.Time))
		}
	}

	for _, mp := range snap.MarkingPeriods {
		start, err := parseKey(mp.Start, snap.Location)
		if err != nil {
			continue
		}
		end, err := parseKey(mp.End, snap.Location)
		if err != nil {
			continue
		}
		ev := cal.AddEvent(fmt.Sprintf("marks-%s@%s", mp.Start, uidDomain))
		ev.SetDtStampTime(now)
		ev.SetAllDayStartAt(start)
		ev.SetAllDayEndAt(end.AddDate(0, 0, 1))
		ev.SetSummary(mp.Title)
		if mp.Note != "" {
			ev.SetDescription(mp.Note)
		}
	}

	for _, se := range snap.Events {
		d, err := parseKey(se.Date, snap.Location)
		if err != nil {
			continue
		}
		ev := cal.AddEvent(fmt.Sprintf("event-%s@%s", se.Date, uidDomain))
		ev.SetDtStampTime(now)
		ev.SetAllDayStartAt(d)
		ev.SetAllDayEndAt(d.AddDate(0, 0, 1))
		ev.SetSummary(se.Title)
		if se.Time != "" {
			ev.SetDescription(se.Time)
		}
	}

	return cal.Serialize()
}

func addDaySet(cal *ical.Calendar, now time.Time, keys []string, loc *time.Location, kind, summary string) {
	sort.Strings(keys)
	for _, key := range keys {
		d, err := parseKey(key, loc)
		if err != nil {
			continue
		}
		ev := cal.AddEvent(fmt.Sprintf("%s-%s@%s", kind, key, uidDomain))
		ev.SetDtStampTime(now)
		ev.SetAllDayStartAt(d)
		ev.SetAllDayEndAt(d.AddDate(0, 0, 1))
		ev.SetSummary(summary)
	}
}

func parseKey(key string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", key, loc)
}

// Breaks returns every merged non-attendance span in the term, in order.
// Consecutive dates sharing one label merge; a label change splits.
func Breaks(snap *calendar.Snapshot) []model.Break {
	var out []model.Break
	d := snap.FirstDay
	for !d.After(snap.LastDay) {
		if b, ok := snap.BreakFrom(d); ok {
			out = append(out, b)
			d = b.End.AddDate(0, 0, 1)
			continue
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}
