package calendar

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schooldays/internal/config"
	"schooldays/internal/data"
	"schooldays/internal/model"
)

func writeDataFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func loadConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.DataDir = dir
	cfg.CacheDir = filepath.Join(dir, "cache")
	return cfg
}

func TestLoadBuildsSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, "schedules.json", `{
		"DEFAULT": [
			{"id":"01","label":"P1","start":"08:00","end":"08:52","include":true},
			{"id":"02","label":"P2","start":[9,0],"end":"09:52","include":true}
		],
		"WED_LATE": [
			{"id":"01","label":"P1","start":"09:40","end":"10:20","include":true}
		]
	}`)
	writeDataFile(t, dir, "non_attendance.json", `[
		{"label":"Winter Break","start":"2025-12-22","end":"2026-01-02"}
	]`)
	writeDataFile(t, dir, "late_start_wednesdays.json", `["2025-09-10","2025-09-17"]`)
	writeDataFile(t, dir, "late_arrival_1010.json", `["2025-10-15"]`)

	snap, err := Load(context.Background(), loadConfig(t, dir), data.NewFetcher(filepath.Join(dir, "cache"), nil), nil)
	require.NoError(t, err)

	def, ok := snap.Schedule(model.ScheduleDefault)
	require.True(t, ok)
	require.Len(t, def, 2)
	// The [hour, minute] array form decodes like "HH:MM".
	assert.Equal(t, model.Clock{Hour: 9}, def[1].Start)

	assert.True(t, snap.IsLateStart("2025-09-17"))
	assert.True(t, snap.IsLateArrival("2025-10-15"))

	label, ok := snap.NonAttendanceLabel(snap.FirstDay.AddDate(0, 4, 13)) // 2025-12-25
	require.True(t, ok)
	assert.Equal(t, "Winter Break", label)
}

func TestLoadMissingSourcesDegradeToEmpty(t *testing.T) {
	dir := t.TempDir()
	// No data files at all: every feature degrades, the load still works.
	snap, err := Load(context.Background(), loadConfig(t, dir), data.NewFetcher(filepath.Join(dir, "cache"), nil), nil)
	require.NoError(t, err)

	_, ok := snap.Schedule(model.ScheduleDefault)
	assert.False(t, ok)
	assert.Empty(t, snap.LateStartKeys())
	assert.NotEmpty(t, snap.AllSchoolDays())
}

func TestLoadMalformedSourceDegradesThatSourceOnly(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, "schedules.json", `{broken`)
	writeDataFile(t, dir, "late_arrival_1010.json", `["2025-10-15"]`)

	snap, err := Load(context.Background(), loadConfig(t, dir), data.NewFetcher(filepath.Join(dir, "cache"), nil), nil)
	require.NoError(t, err)

	_, ok := snap.Schedule(model.ScheduleDefault)
	assert.False(t, ok)
	assert.True(t, snap.IsLateArrival("2025-10-15"))
}

func TestLoadExpandsLateStartRule(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, "late_start_wednesdays.json", `["2025-08-20"]`)

	cfg := loadConfig(t, dir)
	cfg.FirstDay = "2025-09-01"
	cfg.LastDay = "2025-09-30"
	cfg.LateStartRule = "FREQ=WEEKLY;BYDAY=WE"

	snap, err := Load(context.Background(), cfg, data.NewFetcher(filepath.Join(dir, "cache"), nil), nil)
	require.NoError(t, err)

	// Every September Wednesday from the rule, plus the explicit list.
	for _, key := range []string{"2025-09-03", "2025-09-10", "2025-09-17", "2025-09-24"} {
		assert.True(t, snap.IsLateStart(key), key)
	}
	assert.True(t, snap.IsLateStart("2025-08-20"))
	assert.False(t, snap.IsLateStart("2025-09-04"))
}

func TestLoadBadRuleIsIgnored(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, dir)
	cfg.LateStartRule = "FREQ=NONSENSE"

	snap, err := Load(context.Background(), cfg, data.NewFetcher(filepath.Join(dir, "cache"), nil), nil)
	require.NoError(t, err)
	assert.Empty(t, snap.LateStartKeys())
}
