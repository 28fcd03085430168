package countdown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schooldays/internal/calendar"
	"schooldays/internal/dateutil"
	"schooldays/internal/model"
	"schooldays/internal/overrides"
	"schooldays/internal/schedule"
)

func testCalculator(t *testing.T) *Calculator {
	t.Helper()
	snap, err := calendar.New(calendar.Params{
		FirstDay: "2025-08-12",
		LastDay:  "2026-05-21",
		NonAttendance: []model.NonAttendance{
			{Label: "Winter Break", Start: "2025-12-22", End: "2026-01-02"},
			{Label: "Spring Break", Start: "2026-01-03", End: "2026-01-05"},
		},
		Schedules: map[string]model.Schedule{
			model.ScheduleDefault: {
				{ID: "01", Label: "P1", Start: model.Clock{Hour: 9}, End: model.Clock{Hour: 10}, Include: true},
				{ID: "02", Label: "P2", Start: model.Clock{Hour: 10, Minute: 10}, End: model.Clock{Hour: 11}, Include: true},
				{ID: "LN", Label: "Lunch", Start: model.Clock{Hour: 12}, End: model.Clock{Hour: 12, Minute: 40}, Include: false},
			},
		},
	})
	require.NoError(t, err)
	r := schedule.NewResolver(snap, overrides.NewManager(overrides.NewMemStore()))
	return NewCalculator(snap, r)
}

func day(t *testing.T, key string) time.Time {
	t.Helper()
	d, err := dateutil.ParseDateKey(key)
	require.NoError(t, err)
	return d
}

func TestSchoolDaysRemainingAtLastDay(t *testing.T) {
	c := testCalculator(t)
	assert.Equal(t, 0, c.SchoolDaysRemaining(c.snap.LastDay))
	// Yet the last day itself is not "Completed".
	assert.NotEqual(t, model.DayCompleted, c.snap.DayStatus(c.snap.LastDay).Kind)
}

func TestSchoolDaysRemainingNonIncreasing(t *testing.T) {
	c := testCalculator(t)
	prev := c.SchoolDaysRemaining(day(t, "2025-08-11"))
	for d := range dateutil.Range(day(t, "2025-08-12"), day(t, "2025-09-12")) {
		cur := c.SchoolDaysRemaining(d)
		assert.LessOrEqual(t, cur, prev, dateutil.DateKey(d))
		prev = cur
	}
}

func TestSchoolDaysRemainingExcludesBase(t *testing.T) {
	c := testCalculator(t)
	// 2025-08-12 is the first school day; counting from the day before
	// includes it, counting from the day itself does not.
	before := c.SchoolDaysRemaining(day(t, "2025-08-11"))
	at := c.SchoolDaysRemaining(day(t, "2025-08-12"))
	assert.Equal(t, before-1, at)
}

func TestPeriodsRemainingAt(t *testing.T) {
	c := testCalculator(t)
	d := day(t, "2025-09-09")

	assert.Equal(t, 2, c.PeriodsRemainingAt(d.Add(8*time.Hour)))
	// 09:30: P1 still counts (end 10:00 strictly after), P2 counts.
	assert.Equal(t, 2, c.PeriodsRemainingAt(d.Add(9*time.Hour+30*time.Minute)))
	// Exactly at 10:00 P1's end is not strictly after.
	assert.Equal(t, 1, c.PeriodsRemainingAt(d.Add(10*time.Hour)))
	assert.Equal(t, 0, c.PeriodsRemainingAt(d.Add(11*time.Hour)))
	// Lunch never counts even while in progress.
	assert.Equal(t, 0, c.PeriodsRemainingAt(d.Add(12*time.Hour+10*time.Minute)))
}

func TestCalendarDaysRemaining(t *testing.T) {
	c := testCalculator(t)
	assert.Equal(t, 0, c.CalendarDaysRemaining(c.snap.LastDay))
	assert.Equal(t, 0, c.CalendarDaysRemaining(day(t, "2026-06-01")))
	assert.Equal(t, 1, c.CalendarDaysRemaining(day(t, "2026-05-20")))

	// 2026-05-01 through 2026-05-21: 20 days after the base.
	assert.Equal(t, 20, c.CalendarDaysRemaining(day(t, "2026-05-01")))
}

func TestNextBreakScenario(t *testing.T) {
	c := testCalculator(t)
	nb := c.NextBreak(day(t, "2025-12-01"))
	require.NotNil(t, nb)
	assert.Equal(t, "Winter Break", nb.Label)
	assert.Equal(t, "2025-12-22", dateutil.DateKey(nb.Start))
	assert.Equal(t, "2026-01-02", dateutil.DateKey(nb.End))
}

func TestNextBreakLabelChangeEndsSpan(t *testing.T) {
	c := testCalculator(t)
	// Spring Break starts 2026-01-03, directly adjacent to Winter Break;
	// the label change must end the first span.
	nb := c.NextBreak(day(t, "2025-12-22"))
	require.NotNil(t, nb)
	assert.Equal(t, "2026-01-02", dateutil.DateKey(nb.End))

	nb = c.NextBreak(day(t, "2026-01-03"))
	require.NotNil(t, nb)
	assert.Equal(t, "Spring Break", nb.Label)
	assert.Equal(t, "2026-01-05", dateutil.DateKey(nb.End))
}

func TestNextBreakNoneRemaining(t *testing.T) {
	c := testCalculator(t)
	assert.Nil(t, c.NextBreak(day(t, "2026-02-01")))
}

func TestNextBreakClampsToFirstDay(t *testing.T) {
	c := testCalculator(t)
	nb := c.NextBreak(day(t, "2020-01-01"))
	require.NotNil(t, nb)
	assert.Equal(t, "Winter Break", nb.Label)
}

func TestSingleDayBreak(t *testing.T) {
	snap, err := calendar.New(calendar.Params{
		FirstDay: "2025-08-12",
		LastDay:  "2026-05-21",
		NonAttendance: []model.NonAttendance{
			{Label: "Labor Day", Start: "2025-09-01", End: "2025-09-01"},
		},
	})
	require.NoError(t, err)
	c := NewCalculator(snap, schedule.NewResolver(snap, overrides.NewManager(overrides.NewMemStore())))

	nb := c.NextBreak(day(t, "2025-08-20"))
	require.NotNil(t, nb)
	assert.True(t, nb.Start.Equal(nb.End))
	assert.Equal(t, "Labor Day", nb.Label)
}
