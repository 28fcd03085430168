package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schooldays/internal/calendar"
	"schooldays/internal/config"
	"schooldays/internal/countdown"
	"schooldays/internal/model"
	"schooldays/internal/overrides"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	snap, err := calendar.New(calendar.Params{
		FirstDay: "2025-08-12",
		LastDay:  "2026-05-21",
		NonAttendance: []model.NonAttendance{
			{Label: "Winter Break", Start: "2025-12-22", End: "2026-01-02"},
		},
		LateStart:   []string{"2025-09-10"},
		LateArrival: []string{"2025-10-15"},
		Schedules: map[string]model.Schedule{
			model.ScheduleDefault: {
				{ID: "01", Label: "P1", Start: model.Clock{Hour: 9}, End: model.Clock{Hour: 10}, Include: true},
				{ID: "02", Label: "P2", Start: model.Clock{Hour: 10, Minute: 10}, End: model.Clock{Hour: 11}, Include: true},
			},
			model.ScheduleWedLate: {
				{ID: "01", Label: "P1", Start: model.Clock{Hour: 9, Minute: 40}, End: model.Clock{Hour: 10, Minute: 20}, Include: true},
			},
		},
	})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	s := NewServer(cfg, calendar.NewHolder(snap), overrides.NewManager(overrides.NewMemStore()), nil, nil)
	// Pin the clock to a school-day morning: Tue 2025-09-09 09:30.
	s.now = func() time.Time {
		return time.Date(2025, 9, 9, 9, 30, 0, 0, snap.Location)
	}
	return s
}

func doJSON(t *testing.T, h http.Handler, method, target, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.Handler(), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestSummaryToday(t *testing.T) {
	s := newTestServer(t)

	var sum countdown.Summary
	w := doJSON(t, s.Handler(), http.MethodGet, "/api/summary", "", &sum)
	require.Equal(t, http.StatusOK, w.Code)

	assert.False(t, sum.Preview)
	assert.Equal(t, "2025-09-09", sum.Date)
	assert.Equal(t, 2, sum.PeriodsLeft)
	require.Len(t, sum.Chips, 2)
	assert.Equal(t, "now", sum.Chips[0].State)
}

func TestSummaryPreviewDate(t *testing.T) {
	s := newTestServer(t)

	var sum countdown.Summary
	w := doJSON(t, s.Handler(), http.MethodGet, "/api/summary?date=2025-12-25", "", &sum)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, sum.Preview)
	assert.Equal(t, "No school: Winter Break", sum.Status)

	w = doJSON(t, s.Handler(), http.MethodGet, "/api/summary?date=not-a-date", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSummaryText(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.Handler(), http.MethodGet, "/api/summary.txt", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, w.Body.String(), "calendar days left")
	assert.Contains(t, w.Body.String(), "School year:")
}

func TestDayEndpoint(t *testing.T) {
	s := newTestServer(t)

	var day dayResponse
	w := doJSON(t, s.Handler(), http.MethodGet, "/api/day?date=2025-09-10", "", &day)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2025-09-10", day.Date)
	assert.Equal(t, "Late Start", day.Mode)
	require.Len(t, day.Periods, 1)
	assert.Equal(t, model.Clock{Hour: 9, Minute: 40}, day.Periods[0].Start)
}

func TestDatesEndpoint(t *testing.T) {
	s := newTestServer(t)

	var dates datesResponse
	w := doJSON(t, s.Handler(), http.MethodGet, "/api/dates", "", &dates)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2025-08-12", dates.FirstDay)
	assert.Equal(t, []string{"2025-09-10"}, dates.LateStart)
	require.Len(t, dates.Breaks, 1)
	assert.Equal(t, "Winter Break", dates.Breaks[0].Label)
}

func TestOverrideLifecycle(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	// Set an override on the late-arrival day; resolution must flip.
	var all map[string]string
	w := doJSON(t, h, http.MethodPost, "/api/overrides",
		`{"date":"2025-10-15","value":"WED_LATE"}`, &all)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "WED_LATE", all["2025-10-15"])

	var day dayResponse
	doJSON(t, h, http.MethodGet, "/api/day?date=2025-10-15", "", &day)
	assert.Equal(t, "Special (WED_LATE)", day.Mode)

	all = nil
	w = doJSON(t, h, http.MethodDelete, "/api/overrides/2025-10-15", "", &all)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, all)

	doJSON(t, h, http.MethodGet, "/api/day?date=2025-10-15", "", &day)
	assert.Equal(t, "Late Arrival", day.Mode)
}

func TestOverrideValidation(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	w := doJSON(t, h, http.MethodPost, "/api/overrides", `{"date":"nope","value":"WED_LATE"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/overrides", `{"date":"2025-10-15","value":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/overrides", `{"date":"2025-10-15","value":"CUSTOM:{broken"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/overrides",
		`{"date":"2025-10-15","value":"CUSTOM:[{"id":"AS","label":"Assembly","start":"09:00","end":"10:00","include":true}]"}`, nil)
	// Embedded quotes make that body invalid JSON; the handler says so.
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOverridesClearAll(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	doJSON(t, h, http.MethodPost, "/api/overrides", `{"date":"2025-10-15","value":"WED_LATE"}`, nil)
	doJSON(t, h, http.MethodPost, "/api/overrides", `{"date":"2025-10-16","value":"WED_LATE"}`, nil)

	var all map[string]string
	w := doJSON(t, h, http.MethodDelete, "/api/overrides", "", &all)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, all)
}

func TestOverrideInvalidatesSummaryCache(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	var before countdown.Summary
	doJSON(t, h, http.MethodGet, "/api/summary", "", &before)
	require.Len(t, before.Chips, 2)

	// Override today to the one-period Wednesday schedule.
	doJSON(t, h, http.MethodPost, "/api/overrides", `{"date":"2025-09-09","value":"WED_LATE"}`, nil)

	var after countdown.Summary
	doJSON(t, h, http.MethodGet, "/api/summary", "", &after)
	assert.Len(t, after.Chips, 1)
}

func TestFeedEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.Handler(), http.MethodGet, "/api/calendar.ics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, w.Body.String(), "BEGIN:VCALENDAR")
	assert.Contains(t, w.Body.String(), "SUMMARY:Winter Break")
}

func TestRefreshEndpoint(t *testing.T) {
	snapCalled := false
	s := newTestServer(t)
	s.refresh = func(context.Context) error {
		snapCalled = true
		return nil
	}

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/refresh", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, snapCalled)
}

func TestBasicAuth(t *testing.T) {
	s := newTestServer(t)
	s.cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	h := s.Handler()

	// /health stays open.
	w := doJSON(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/summary", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/summary", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStaticDoesNotServeAPIPaths(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.Handler(), http.MethodGet, "/api/nonexistent", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStaticServesIndex(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.Handler(), http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "data-ready")
}
