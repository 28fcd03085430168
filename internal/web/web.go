// Package web serves the dashboard API and the embedded static UI.
package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"schooldays/internal/calendar"
	"schooldays/internal/config"
	"schooldays/internal/countdown"
	"schooldays/internal/dateutil"
	"schooldays/internal/ics"
	"schooldays/internal/model"
	"schooldays/internal/overrides"
	"schooldays/internal/schedule"
)

// summaryCacheTTL bounds how stale the cached today-summary may get.
// Preview (date=) requests always compute fresh.
const summaryCacheTTL = 30 * time.Second

//go:embed all:static
var embeddedStatic embed.FS

// Server exposes the countdown dashboard over HTTP.
type Server struct {
	cfg    *config.Config
	holder *calendar.Holder
	ov     *overrides.Manager
	logger *zap.Logger
	mux    *http.ServeMux

	// refresh, when non-nil, reloads the data sources on demand.
	refresh func(context.Context) error

	// now is the clock; replaceable in tests.
	now func() time.Time

	summaryMu    sync.RWMutex
	summaryCache *summaryCache
}

type summaryCache struct {
	summary   countdown.Summary
	updatedAt time.Time
}

// NewServer constructs the dashboard server.
func NewServer(cfg *config.Config, holder *calendar.Holder, ov *overrides.Manager, logger *zap.Logger, refresh func(context.Context) error) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		holder:  holder,
		ov:      ov,
		logger:  logger,
		mux:     http.NewServeMux(),
		refresh: refresh,
		now:     time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler, wrapped with basic auth when
// configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		s.logger.Info("HTTP basic auth enabled", zap.String("listen", s.cfg.Listen))
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	ba := s.cfg.BasicAuth
	return ba != nil && ba.Username != "" && ba.Password != ""
}

// basicAuthMiddleware protects every endpoint except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="schooldays", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/summary", s.handleSummary)
	s.mux.HandleFunc("GET /api/summary.txt", s.handleSummaryText)
	s.mux.HandleFunc("GET /api/day", s.handleDay)
	s.mux.HandleFunc("GET /api/dates", s.handleDates)
	s.mux.HandleFunc("GET /api/overrides", s.handleOverridesList)
	s.mux.HandleFunc("POST /api/overrides", s.handleOverrideSet)
	s.mux.HandleFunc("DELETE /api/overrides/{date}", s.handleOverrideRemove)
	s.mux.HandleFunc("DELETE /api/overrides", s.handleOverridesClear)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /api/calendar.ics", s.handleFeed)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// resolver builds the per-request query objects over the current
// snapshot. Construction is cheap; the snapshot carries all the state.
func (s *Server) resolver(snap *calendar.Snapshot) *schedule.Resolver {
	return schedule.NewResolver(snap, s.ov,
		schedule.WithIncludeOnly(s.cfg.IncludeOnly),
		schedule.WithLogger(s.logger))
}

func (s *Server) calculator() (*calendar.Snapshot, *countdown.Calculator) {
	snap := s.holder.Get()
	return snap, countdown.NewCalculator(snap, s.resolver(snap))
}

// summarize computes the summary for an optional date=YYYY-MM-DD query.
// No date means "today" and is served from a short-lived cache.
func (s *Server) summarize(r *http.Request) (countdown.Summary, error) {
	snap, calc := s.calculator()
	now := s.now().In(snap.Location)

	if dateParam := r.URL.Query().Get("date"); dateParam != "" {
		base, err := parseKeyIn(dateParam, snap)
		if err != nil {
			return countdown.Summary{}, err
		}
		return calc.Summarize(base, now), nil
	}

	s.summaryMu.RLock()
	sc := s.summaryCache
	s.summaryMu.RUnlock()
	if sc != nil && now.Sub(sc.updatedAt) < summaryCacheTTL {
		return sc.summary, nil
	}

	summary := calc.Summarize(now, now)

	s.summaryMu.Lock()
	s.summaryCache = &summaryCache{summary: summary, updatedAt: now}
	s.summaryMu.Unlock()
	return summary, nil
}

func parseKeyIn(key string, snap *calendar.Snapshot) (time.Time, error) {
	parsed, err := dateutil.ParseDateKey(key)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", key)
	}
	return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, snap.Location), nil
}

// invalidateSummary drops the cached today-summary after a state change.
func (s *Server) invalidateSummary() {
	s.summaryMu.Lock()
	s.summaryCache = nil
	s.summaryMu.Unlock()
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.summarize(r)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, s.logger, http.StatusOK, summary)
}

func (s *Server) handleSummaryText(w http.ResponseWriter, r *http.Request) {
	summary, err := s.summarize(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(summary.Text()))
}

// dayResponse describes one date: its status, schedule mode, and
// expanded periods.
type dayResponse struct {
	Date    string                 `json:"date"`
	Status  string                 `json:"status"`
	Mode    string                 `json:"mode,omitempty"`
	Periods []model.ResolvedPeriod `json:"periods"`
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	snap := s.holder.Get()

	var base time.Time
	if dateParam := r.URL.Query().Get("date"); dateParam != "" {
		parsed, err := parseKeyIn(dateParam, snap)
		if err != nil {
			writeError(w, s.logger, http.StatusBadRequest, err.Error())
			return
		}
		base = parsed
	} else {
		base = dateutil.Midnight(s.now().In(snap.Location))
	}

	resolver := s.resolver(snap)
	writeJSON(w, s.logger, http.StatusOK, dayResponse{
		Date:    dateutil.DateKey(base),
		Status:  snap.DayStatus(base).String(),
		Mode:    resolver.ModeLabel(base),
		Periods: resolver.PeriodsForDate(base),
	})
}

// datesResponse backs the calendar listing page.
type datesResponse struct {
	FirstDay       string                `json:"first_day"`
	LastDay        string                `json:"last_day"`
	Breaks         []model.Break         `json:"breaks"`
	LateStart      []string              `json:"late_start"`
	LateArrival    []string              `json:"late_arrival"`
	EarlyRelease   []model.EarlyRelease  `json:"early_release"`
	MarkingPeriods []model.MarkingPeriod `json:"marking_periods"`
	Events         []model.SchoolEvent   `json:"events"`
}

func (s *Server) handleDates(w http.ResponseWriter, _ *http.Request) {
	snap := s.holder.Get()

	lateStart := snap.LateStartKeys()
	lateArrival := snap.LateArrivalKeys()
	sort.Strings(lateStart)
	sort.Strings(lateArrival)

	writeJSON(w, s.logger, http.StatusOK, datesResponse{
		FirstDay:       dateutil.DateKey(snap.FirstDay),
		LastDay:        dateutil.DateKey(snap.LastDay),
		Breaks:         ics.Breaks(snap),
		LateStart:      lateStart,
		LateArrival:    lateArrival,
		EarlyRelease:   snap.EarlyRelease,
		MarkingPeriods: snap.MarkingPeriods,
		Events:         snap.Events,
	})
}

func (s *Server) handleOverridesList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, s.ov.All())
}

// overrideRequest sets one per-date override. Value is a schedule name
// or a CUSTOM:-prefixed inline schedule.
type overrideRequest struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

func (s *Server) handleOverrideSet(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, err := dateutil.ParseDateKey(req.Date); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, fmt.Sprintf("invalid date %q", req.Date))
		return
	}
	if req.Value == "" {
		writeError(w, s.logger, http.StatusBadRequest, "value is required")
		return
	}
	// An unknown schedule name is accepted (it falls through at
	// resolution time), but an unparseable custom schedule is rejected
	// outright instead of being persisted as a dud.
	if strings.HasPrefix(req.Value, model.CustomOverridePrefix) {
		if _, ok := overrides.ParseCustom(req.Value); !ok {
			writeError(w, s.logger, http.StatusBadRequest, "custom schedule does not parse")
			return
		}
	}
	if err := s.ov.Set(req.Date, req.Value); err != nil {
		s.logger.Error("override save failed", zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "failed to save override")
		return
	}
	s.invalidateSummary()
	writeJSON(w, s.logger, http.StatusOK, s.ov.All())
}

func (s *Server) handleOverrideRemove(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if _, err := dateutil.ParseDateKey(date); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, fmt.Sprintf("invalid date %q", date))
		return
	}
	if err := s.ov.Remove(date); err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, "failed to remove override")
		return
	}
	s.invalidateSummary()
	writeJSON(w, s.logger, http.StatusOK, s.ov.All())
}

func (s *Server) handleOverridesClear(w http.ResponseWriter, _ *http.Request) {
	if err := s.ov.Clear(); err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, "failed to clear overrides")
		return
	}
	s.invalidateSummary()
	writeJSON(w, s.logger, http.StatusOK, map[string]string{})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeError(w, s.logger, http.StatusServiceUnavailable, "refresh not available")
		return
	}
	if err := s.refresh(r.Context()); err != nil {
		s.logger.Error("manual refresh failed", zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "refresh failed")
		return
	}
	s.invalidateSummary()
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (s *Server) handleFeed(w http.ResponseWriter, _ *http.Request) {
	snap := s.holder.Get()
	feed := ics.Feed(snap, "School Days", s.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(feed))
}

// handlePreview serves the last captured dashboard PNG, when snapshot
// capture is configured.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Snapshot == nil || s.cfg.Snapshot.Output == "" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, s.cfg.Snapshot.Output)
}

// staticFileServer serves the embedded dashboard UI. API paths never
// fall through to it.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		s.logger.Error("embedded static filesystem unavailable", zap.Error(err))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}
	fileServer := http.FileServer(http.FS(sub))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, logger, status, errResp{Error: msg})
}
