package usecase

import (
	"context"
	"errors"
	"log/slog"

	"localtube/internal/domain"
	"localtube/internal/domain/ports"
)

// RedownloadMedia drops a downloaded file (and its sidecar) so the item
// goes through the download pipeline again. Used when a stored file is
// corrupt or was produced with outdated settings.
type RedownloadMedia struct {
	Store     ports.Store
	Downloads DownloadEnqueuer
	Logger    *slog.Logger

	// MediaDir is the root all stored media paths are relative to.
	MediaDir string
}

func (uc RedownloadMedia) Execute(ctx context.Context, mediaID domain.MediaID) error {
	media, err := uc.Store.GetMedia(ctx, mediaID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return wrapStore(err)
	}

	if media.MediaPath != nil {
		if err := removeMediaFiles(uc.MediaDir, *media.MediaPath); err != nil {
			return err
		}
		if err := uc.Store.SetMediaPath(ctx, media.ID, nil); err != nil {
			return wrapStore(err)
		}
	}

	uc.Downloads.Enqueue(ctx, media.ID)
	uc.Logger.Info("media redownload requested",
		slog.Int64("media_id", int64(media.ID)))
	return nil
}
