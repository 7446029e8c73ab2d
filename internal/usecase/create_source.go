package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"localtube/internal/domain"
	"localtube/internal/domain/ports"
)

// RefreshRequester stamps the schedule clock and enqueues a refresh for
// one source. Implemented by RefreshScheduler.
type RefreshRequester interface {
	ScheduleRefresh(ctx context.Context, sourceID domain.SourceID) error
}

type CreateSourceInput struct {
	URL              string
	FetchLastDays    int
	RefreshFrequency int
	Sponsorblock     string
}

// CreateSource registers a new content origin and queues its first
// refresh. Metadata stays empty until that refresh runs.
type CreateSource struct {
	Store     ports.Store
	Refreshes RefreshRequester
	Logger    *slog.Logger
}

func (uc CreateSource) Execute(ctx context.Context, input CreateSourceInput) (domain.Source, error) {
	source := domain.Source{
		URL:              strings.TrimSpace(input.URL),
		FetchLastDays:    input.FetchLastDays,
		RefreshFrequency: input.RefreshFrequency,
		Sponsorblock:     strings.TrimSpace(input.Sponsorblock),
	}
	if err := source.Validate(); err != nil {
		return domain.Source{}, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	created, err := uc.Store.CreateSource(ctx, source)
	if err != nil {
		return domain.Source{}, wrapStore(err)
	}

	// A failed scheduling attempt is not fatal: the periodic sweep picks
	// the source up because it has no metadata and no schedule stamp.
	if err := uc.Refreshes.ScheduleRefresh(ctx, created.ID); err != nil {
		uc.Logger.Warn("initial refresh scheduling failed",
			slog.Int64("source_id", int64(created.ID)),
			slog.String("error", err.Error()))
	}

	uc.Logger.Info("source created",
		slog.Int64("source_id", int64(created.ID)),
		slog.String("url", created.URL))
	return created, nil
}
