package usecase

import (
	"context"
	"log/slog"
	"time"

	"localtube/internal/domain"
	"localtube/internal/domain/ports"
)

const defaultScheduleInterval = 300 * time.Second

// RefreshEnqueuer schedules background refreshes for sources.
// Implemented by RefreshSource.
type RefreshEnqueuer interface {
	Enqueue(ctx context.Context, sourceID domain.SourceID)
}

// RefreshScheduler decides when sources are due and enqueues their
// refresh jobs. Two stamps keep the sweep idempotent: last_refreshed_at
// moves when a refresh finishes, last_scheduled_refresh when one is
// enqueued, so a slow worker does not get the same source twice.
type RefreshScheduler struct {
	Store     ports.Store
	Refreshes RefreshEnqueuer
	Logger    *slog.Logger
	Interval  time.Duration

	// Now is overridable in tests; nil means time.Now.
	Now func() time.Time
}

// Run sweeps once right away and then on every tick until ctx is done.
func (s RefreshScheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = defaultScheduleInterval
	}

	s.Sweep(ctx, false)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx, false)
		}
	}
}

// Sweep walks all sources and schedules the due ones. force schedules
// every source regardless of its stamps.
func (s RefreshScheduler) Sweep(ctx context.Context, force bool) {
	sources, err := s.Store.ListSources(ctx)
	if err != nil {
		s.Logger.Warn("schedule sweep: list sources failed",
			slog.String("error", err.Error()))
		return
	}

	now := s.now()
	for _, source := range sources {
		if !force && !refreshDue(source, now) {
			continue
		}
		if err := s.ScheduleRefresh(ctx, source.ID); err != nil {
			s.Logger.Warn("schedule sweep: scheduling failed",
				slog.Int64("source_id", int64(source.ID)),
				slog.String("error", err.Error()))
		}
	}
}

// ScheduleRefresh stamps last_scheduled_refresh and then enqueues the
// refresh job, in that order: a second sweep arriving before the worker
// starts already sees the source as scheduled.
func (s RefreshScheduler) ScheduleRefresh(ctx context.Context, sourceID domain.SourceID) error {
	if err := s.Store.SetSourceScheduledAt(ctx, sourceID, s.now()); err != nil {
		return wrapStore(err)
	}
	s.Refreshes.Enqueue(ctx, sourceID)
	s.Logger.Info("refresh scheduled", slog.Int64("source_id", int64(sourceID)))
	return nil
}

// refreshDue applies the per-source schedule: the refresh frequency plus
// a deterministic jitter derived from the last refresh time, so sources
// sharing a frequency drift apart instead of refreshing in lockstep.
func refreshDue(source domain.Source, now time.Time) bool {
	var jitter int64
	if source.LastRefreshedAt != nil {
		jitter = source.LastRefreshedAt.Unix()%1800 - 900
	}
	window := int64(source.RefreshFrequency)*3600 + jitter

	timePassed := func(ts *time.Time) bool {
		return ts == nil || now.Unix()-ts.Unix() > window
	}

	needRefresh := timePassed(source.LastRefreshedAt)
	needSchedule := timePassed(source.LastScheduledRefresh)
	return (source.Metadata == nil || needRefresh) && needSchedule
}

func (s RefreshScheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
