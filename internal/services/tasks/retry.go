package tasks

import (
	"context"
	"log/slog"
	"time"
)

// ScheduleRetry runs action once after delay, but only when check still
// reports pending work at that point. Fire and forget: failures are
// logged, never returned, and the timer dies with ctx.
func ScheduleRetry(
	ctx context.Context,
	logger *slog.Logger,
	delay time.Duration,
	check func(ctx context.Context) (bool, error),
	action func(ctx context.Context) error,
) {
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		pending, err := check(ctx)
		if err != nil {
			logger.Info("retry check failed; skipping action", slog.String("error", err.Error()))
			return
		}
		if !pending {
			logger.Debug("retry check reported no pending work; skipping action")
			return
		}

		logger.Debug("retry condition satisfied; executing action")
		if err := action(ctx); err != nil {
			logger.Error("retry action failed", slog.String("error", err.Error()))
		}
	}()
}
