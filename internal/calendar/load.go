package calendar

import (
	"context"
	"time"

	"github.com/teambition/rrule-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"schooldays/internal/config"
	"schooldays/internal/data"
	"schooldays/internal/dateutil"
	"schooldays/internal/model"
)

// Load fetches every configured data source concurrently and builds a
// Snapshot. A source that is missing or fails to fetch degrades to its
// empty default; a failed source never aborts the load. Only malformed
// term bounds make Load fail.
func Load(ctx context.Context, cfg *config.Config, fetcher *data.Fetcher, logger *zap.Logger) (*Snapshot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	params := Params{
		FirstDay: cfg.FirstDay,
		LastDay:  cfg.LastDay,
		Location: cfg.Location(),
	}

	g, gctx := errgroup.WithContext(ctx)

	// Each closure writes a distinct Params field, so no locking is
	// needed; errgroup.Wait is the synchronization point.
	g.Go(func() error {
		params.Schedules = loadSource(gctx, fetcher, logger,
			cfg.SourceLocation(cfg.Sources.Schedules), "schedules",
			map[string]model.Schedule{})
		return nil
	})
	g.Go(func() error {
		params.NonAttendance = loadSource(gctx, fetcher, logger,
			cfg.SourceLocation(cfg.Sources.NonAttendance), "non_attendance",
			[]model.NonAttendance{})
		return nil
	})
	g.Go(func() error {
		params.LateStart = loadSource(gctx, fetcher, logger,
			cfg.SourceLocation(cfg.Sources.LateStartWednesdays), "late_start_wednesdays",
			[]string{})
		return nil
	})
	g.Go(func() error {
		params.LateArrival = loadSource(gctx, fetcher, logger,
			cfg.SourceLocation(cfg.Sources.LateArrival), "late_arrival",
			[]string{})
		return nil
	})
	g.Go(func() error {
		params.EarlyRelease = loadSource(gctx, fetcher, logger,
			cfg.SourceLocation(cfg.Sources.EarlyRelease), "early_release",
			[]model.EarlyRelease{})
		return nil
	})
	g.Go(func() error {
		params.MarkingPeriods = loadSource(gctx, fetcher, logger,
			cfg.SourceLocation(cfg.Sources.MarkingPeriods), "marking_periods",
			[]model.MarkingPeriod{})
		return nil
	})
	g.Go(func() error {
		params.Events = loadSource(gctx, fetcher, logger,
			cfg.SourceLocation(cfg.Sources.Events), "events",
			[]model.SchoolEvent{})
		return nil
	})

	_ = g.Wait()

	// Recurrence rules add generated date keys on top of the explicit
	// lists; the union keeps hand-authored exceptions working.
	if cfg.LateStartRule != "" {
		keys, err := expandRule(cfg.LateStartRule, params.FirstDay, params.LastDay, params.Location)
		if err != nil {
			logger.Warn("late start rule ignored", zap.String("rule", cfg.LateStartRule), zap.Error(err))
		} else {
			params.LateStart = append(params.LateStart, keys...)
		}
	}
	if cfg.LateArrivalRule != "" {
		keys, err := expandRule(cfg.LateArrivalRule, params.FirstDay, params.LastDay, params.Location)
		if err != nil {
			logger.Warn("late arrival rule ignored", zap.String("rule", cfg.LateArrivalRule), zap.Error(err))
		} else {
			params.LateArrival = append(params.LateArrival, keys...)
		}
	}

	snap, err := New(params)
	if err != nil {
		return nil, err
	}

	logger.Info("calendar loaded",
		zap.String("first_day", cfg.FirstDay),
		zap.String("last_day", cfg.LastDay),
		zap.Int("schedules", len(params.Schedules)),
		zap.Int("non_attendance", len(params.NonAttendance)),
		zap.Int("late_start", len(params.LateStart)),
		zap.Int("late_arrival", len(params.LateArrival)),
		zap.Int("school_days", len(snap.AllSchoolDays())),
	)
	return snap, nil
}

// loadSource fetches and decodes one source, returning fallback on any
// failure. A plainly missing source logs at debug, everything else warns.
func loadSource[T any](ctx context.Context, fetcher *data.Fetcher, logger *zap.Logger, location, id string, fallback T) T {
	if location == "" {
		return fallback
	}
	var out T
	err := fetcher.FetchJSON(ctx, data.Source{ID: id, Location: location}, &out)
	if err != nil {
		if data.IsNotConfigured(err) {
			logger.Debug("source absent", zap.String("source", id))
		} else {
			logger.Warn("source load failed", zap.String("source", id), zap.Error(err))
		}
		return fallback
	}
	return out
}

// expandRule expands an RRULE over the inclusive term window, anchored at
// the first day's midnight, and returns the matching date keys.
func expandRule(rule string, firstDay, lastDay string, loc *time.Location) ([]string, error) {
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, err
	}
	first, err := parseKeyIn(firstDay, loc)
	if err != nil {
		return nil, err
	}
	last, err := parseKeyIn(lastDay, loc)
	if err != nil {
		return nil, err
	}
	r.DTStart(first)

	times := r.Between(first, last.Add(24*time.Hour-time.Second), true)
	keys := make([]string, 0, len(times))
	for _, t := range times {
		keys = append(keys, dateutil.DateKey(t.In(loc)))
	}
	return keys, nil
}
