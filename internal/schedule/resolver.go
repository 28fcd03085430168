// Package schedule resolves which bell schedule governs a date and
// expands it into concrete period timestamps.
package schedule

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"schooldays/internal/calendar"
	"schooldays/internal/dateutil"
	"schooldays/internal/model"
	"schooldays/internal/overrides"
)

// Resolver picks the schedule for a date. Precedence: per-date override
// (inline custom, then named), late-arrival set, late-start set, default.
type Resolver struct {
	snap *calendar.Snapshot
	ov   *overrides.Manager
	// includeOnly, when non-nil, replaces the per-period include flag
	// with an id allow-list.
	includeOnly map[string]struct{}
	logger      *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithIncludeOnly restricts counting periods to the given ids. An empty
// list leaves the per-period include flags in charge.
func WithIncludeOnly(ids []string) Option {
	return func(r *Resolver) {
		if len(ids) == 0 {
			return
		}
		r.includeOnly = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			r.includeOnly[id] = struct{}{}
		}
	}
}

// WithLogger attaches a logger for schedule-data warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewResolver(snap *calendar.Snapshot, ov *overrides.Manager, opts ...Option) *Resolver {
	r := &Resolver{snap: snap, ov: ov, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ForDate resolves the schedule definition governing a date. A malformed
// custom override falls through as if no override existed; an override
// naming an unknown schedule does the same.
func (r *Resolver) ForDate(d time.Time) model.Schedule {
	key := dateutil.DateKey(d)

	if value, ok := r.ov.Get(key); ok {
		if custom, ok := overrides.ParseCustom(value); ok {
			return custom
		}
		if !isCustomMarker(value) {
			if named, ok := r.snap.Schedule(value); ok {
				return named
			}
		}
	}

	if r.snap.IsLateArrival(key) {
		return r.scheduleOrDefault(model.ScheduleLateArrival)
	}
	if r.snap.IsLateStart(key) {
		return r.scheduleOrDefault(model.ScheduleWedLate)
	}
	if def, ok := r.snap.Schedule(model.ScheduleDefault); ok {
		return def
	}
	return model.Schedule{}
}

func (r *Resolver) scheduleOrDefault(name string) model.Schedule {
	if sched, ok := r.snap.Schedule(name); ok {
		return sched
	}
	if def, ok := r.snap.Schedule(model.ScheduleDefault); ok {
		return def
	}
	return model.Schedule{}
}

func isCustomMarker(value string) bool {
	return len(value) >= len(model.CustomOverridePrefix) &&
		value[:len(model.CustomOverridePrefix)] == model.CustomOverridePrefix
}

// Expand maps each period's clock times onto the given calendar date and
// derives its Counts flag. Order is preserved.
func (r *Resolver) Expand(sched model.Schedule, d time.Time) []model.ResolvedPeriod {
	day := dateutil.Midnight(d)
	out := make([]model.ResolvedPeriod, 0, len(sched))
	for _, p := range sched {
		start := p.Start.On(day)
		end := p.End.On(day)
		if !end.After(start) {
			// Zero-length or reversed periods point at authoring errors
			// in the schedule data; keep them visible rather than
			// silently well-formed.
			r.logger.Warn("period does not advance",
				zap.String("period", p.ID),
				zap.String("start", p.Start.String()),
				zap.String("end", p.End.String()))
		}
		out = append(out, model.ResolvedPeriod{
			Period:  p,
			StartAt: start,
			EndAt:   end,
			Counts:  r.counts(p),
		})
	}
	return out
}

func (r *Resolver) counts(p model.Period) bool {
	if r.includeOnly != nil {
		_, ok := r.includeOnly[p.ID]
		return ok
	}
	return p.Include
}

// PeriodsForDate resolves and expands in one step.
func (r *Resolver) PeriodsForDate(d time.Time) []model.ResolvedPeriod {
	return r.Expand(r.ForDate(d), d)
}

// ModeLabel returns the short tag describing which precedence branch
// fired for a date: "Special (custom)", "Special ({name})",
// "Late Arrival", "Late Start", or empty for the default schedule. It
// mirrors ForDate's precedence exactly.
func (r *Resolver) ModeLabel(d time.Time) string {
	key := dateutil.DateKey(d)

	if value, ok := r.ov.Get(key); ok {
		if _, ok := overrides.ParseCustom(value); ok {
			return "Special (custom)"
		}
		if !isCustomMarker(value) {
			if _, ok := r.snap.Schedule(value); ok {
				return fmt.Sprintf("Special (%s)", value)
			}
		}
	}
	if r.snap.IsLateArrival(key) {
		return "Late Arrival"
	}
	if r.snap.IsLateStart(key) {
		return "Late Start"
	}
	return ""
}
