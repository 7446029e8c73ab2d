package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"localtube/internal/domain"
	"localtube/internal/domain/ports"
	"localtube/internal/metrics"
	"localtube/internal/services/tasks"
)

const downloadRetryDelay = 5 * time.Minute

// DownloadMedia fetches one catalog item through the extractor and
// records the produced file path. Items that are already downloaded or
// not yet ready are skipped without error so callers can enqueue
// blindly.
type DownloadMedia struct {
	Store     ports.Store
	Extractor ports.Extractor
	Registry  *tasks.Registry
	Gate      *tasks.Gate
	Logger    *slog.Logger
}

// Enqueue runs Execute on its own goroutine. Failures are logged; the
// retry scheduled inside Execute handles recovery.
func (uc DownloadMedia) Enqueue(ctx context.Context, mediaID domain.MediaID) {
	go func() {
		if err := uc.Execute(ctx, mediaID); err != nil {
			uc.Logger.Error("download worker failed",
				slog.Int64("media_id", int64(mediaID)),
				slog.String("error", err.Error()))
		}
	}()
}

func (uc DownloadMedia) Execute(ctx context.Context, mediaID domain.MediaID) error {
	media, err := uc.Store.GetMedia(ctx, mediaID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			uc.Logger.Warn("download skipped: media not found",
				slog.Int64("media_id", int64(mediaID)))
			return nil
		}
		return wrapStore(err)
	}
	if media.MediaPath != nil {
		uc.Logger.Debug("download skipped: media already downloaded",
			slog.Int64("media_id", int64(mediaID)))
		return nil
	}
	if media.Metadata == nil {
		uc.Logger.Warn("download skipped: media has no metadata yet",
			slog.Int64("media_id", int64(mediaID)))
		return nil
	}

	source, err := uc.Store.GetSource(ctx, media.SourceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// TODO: media whose source was deleted is skipped forever;
			// revisit once orphaned-media cleanup exists.
			uc.Logger.Warn("download skipped: source not found",
				slog.Int64("media_id", int64(mediaID)),
				slog.Int64("source_id", int64(media.SourceID)))
			return nil
		}
		return wrapStore(err)
	}
	if source.Metadata == nil {
		uc.Logger.Warn("download skipped: source has no metadata yet",
			slog.Int64("media_id", int64(mediaID)),
			slog.Int64("source_id", int64(source.ID)))
		return nil
	}

	queued := uc.Registry.Add(domain.TaskDownloadVideo, media.Metadata.Title)
	defer queued.Close()

	active, err := queued.Start(ctx, uc.Gate)
	if err != nil {
		return err
	}
	defer active.Close()

	metrics.ActiveDownloads.Inc()
	defer metrics.ActiveDownloads.Dec()

	active.UpdateStatus("Downloading...")

	path, err := uc.Extractor.Download(ctx, media.URL, source)
	if err != nil {
		uc.Logger.Error("yt-dlp download failed",
			slog.Int64("media_id", int64(media.ID)),
			slog.String("url", media.URL),
			slog.String("error", err.Error()))
		active.Fail(failureMessage(err))
		uc.scheduleRetry(ctx, media.ID)
		return wrapExtractor(err)
	}

	if err := uc.Store.SetMediaPath(ctx, media.ID, &path); err != nil {
		active.Fail(failureMessage(err))
		return wrapStore(err)
	}

	active.Complete()
	uc.Logger.Info("media downloaded",
		slog.Int64("media_id", int64(media.ID)),
		slog.String("path", path))
	return nil
}

// scheduleRetry re-runs the download after a cool-off, unless the media
// was downloaded or deleted in the meantime.
func (uc DownloadMedia) scheduleRetry(ctx context.Context, mediaID domain.MediaID) {
	tasks.ScheduleRetry(ctx, uc.Logger, downloadRetryDelay,
		func(ctx context.Context) (bool, error) {
			media, err := uc.Store.GetMedia(ctx, mediaID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return false, nil
				}
				return false, err
			}
			return media.MediaPath == nil, nil
		},
		func(ctx context.Context) error {
			return uc.Execute(ctx, mediaID)
		},
	)
}
