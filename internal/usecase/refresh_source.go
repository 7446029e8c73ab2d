package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"localtube/internal/domain"
	"localtube/internal/domain/ports"
	"localtube/internal/services/tasks"
)

// smallListScanLimit is the list size up to which a refresh walks the
// whole list instead of stopping at the first out-of-window entry.
const smallListScanLimit = 25

// DownloadEnqueuer schedules background downloads for catalog rows.
// Implemented by DownloadMedia.
type DownloadEnqueuer interface {
	Enqueue(ctx context.Context, mediaID domain.MediaID)
}

// RefreshSource walks the current listing of one source and reconciles
// the media catalog with it: entries inside the fetch window are inserted
// or repaired and queued for download, downloaded entries that fell out
// of the window are evicted from disk and the catalog.
type RefreshSource struct {
	Store     ports.Store
	Extractor ports.Extractor
	Registry  *tasks.Registry
	Gate      *tasks.Gate
	Downloads DownloadEnqueuer
	Logger    *slog.Logger

	// MediaDir is the root all stored media paths are relative to.
	MediaDir string

	// Now is overridable in tests; nil means time.Now.
	Now func() time.Time
}

// Enqueue runs Execute on its own goroutine. Failures are logged and left
// to the periodic scheduler, which re-enqueues the source on a later
// sweep.
func (uc RefreshSource) Enqueue(ctx context.Context, sourceID domain.SourceID) {
	go func() {
		if err := uc.Execute(ctx, sourceID); err != nil {
			uc.Logger.Error("refresh worker failed",
				slog.Int64("source_id", int64(sourceID)),
				slog.String("error", err.Error()))
		}
	}()
}

func (uc RefreshSource) Execute(ctx context.Context, sourceID domain.SourceID) error {
	source, err := uc.Store.GetSource(ctx, sourceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			uc.Logger.Warn("refresh skipped: source not found",
				slog.Int64("source_id", int64(sourceID)))
			return nil
		}
		return wrapStore(err)
	}

	queued := uc.Registry.Add(domain.TaskRefreshIndex, refreshTitle(source))
	defer queued.Close()

	active, err := queued.Start(ctx, uc.Gate)
	if err != nil {
		return err
	}
	defer active.Close()

	if err := uc.refresh(ctx, active, source); err != nil {
		uc.Logger.Error("source refresh failed",
			slog.Int64("source_id", int64(source.ID)),
			slog.String("url", source.URL),
			slog.String("error", err.Error()))
		active.Fail(failureMessage(err))
		return err
	}
	active.Complete()
	return nil
}

func (uc RefreshSource) refresh(ctx context.Context, active *tasks.ActiveTask, source domain.Source) error {
	active.UpdateStatus("Fetching channel metadata...")

	cached := source.Metadata

	tabs, err := uc.Extractor.ProbeListTabs(ctx, source.URL)
	if err != nil {
		uc.Logger.Warn("tab probe failed, reusing cached tabs",
			slog.String("url", source.URL),
			slog.String("error", err.Error()))
		tabs = nil
		if cached != nil {
			tabs = cached.ListTabs
		}
	}

	var cachedTab *string
	if cached != nil {
		cachedTab = cached.ListTab
	}
	sel := resolveListTab(source.URL, cachedTab, tabs)

	probe, err := uc.Extractor.ProbeMetadata(ctx, sel.EffectiveURL, probeModeFor(cached))
	if err != nil {
		return wrapExtractor(err)
	}

	meta := deriveSourceMetadata(source, probe, sel, tabs)
	if err := uc.Store.UpdateSourceMetadata(ctx, source.ID, &meta); err != nil {
		return wrapStore(err)
	}

	fetchBefore := uc.now().Add(-time.Duration(source.FetchLastDays) * 24 * time.Hour).Unix()

	processed, err := uc.walkListing(ctx, active, source.ID, meta, sel.EffectiveURL, fetchBefore)
	if err != nil {
		return err
	}

	active.UpdateStatus("Cleaning up old videos...")
	evicted, err := uc.evictStale(ctx, source.ID, fetchBefore)
	if err != nil {
		return err
	}

	if err := uc.Store.SetSourceRefreshedAt(ctx, source.ID, uc.now()); err != nil {
		return wrapStore(err)
	}

	uc.Logger.Info("source refreshed",
		slog.Int64("source_id", int64(source.ID)),
		slog.String("url", sel.EffectiveURL),
		slog.Int("processed", processed),
		slog.Int("evicted", evicted))
	return nil
}

// walkListing streams the listing and reconciles every entry inside the
// fetch window. Returns the number of entries seen.
func (uc RefreshSource) walkListing(ctx context.Context, active *tasks.ActiveTask, sourceID domain.SourceID, meta domain.SourceMetadata, listURL string, fetchBefore int64) (int, error) {
	earlyStop := earlyStopEnabled(meta)
	orderKnown := meta.ListOrder != ""
	// A list known to emit oldest first is walked in reverse so the newest
	// entries come out first and early-stop stays meaningful.
	reverse := meta.ListKind == domain.ListKindList && meta.ListOrder == domain.OrderOldestFirst

	// The stream gets its own context so stopping early releases the
	// producer and its child process.
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	processed := 0
	sawNewer := false
	for item := range uc.Extractor.StreamList(streamCtx, listURL, reverse) {
		if item.Err != nil {
			return processed, wrapExtractor(item.Err)
		}
		record := item.Record
		processed++
		active.UpdateStatus(fmt.Sprintf("Processing video %d (%s)", processed, record.Title))

		if record.Timestamp < fetchBefore {
			// With a known order (or after at least one in-window entry)
			// everything that follows is older still. Without either
			// signal the first entry may be a pinned old one, so keep
			// scanning.
			if earlyStop && (orderKnown || sawNewer) {
				break
			}
			continue
		}
		sawNewer = true

		if err := uc.reconcileRecord(ctx, sourceID, record); err != nil {
			return processed, err
		}
	}
	return processed, nil
}

// reconcileRecord aligns one listing entry with the catalog and queues a
// download when the entry has no usable file on disk.
func (uc RefreshSource) reconcileRecord(ctx context.Context, sourceID domain.SourceID, record *domain.VideoRecord) error {
	meta := record.MediaMetadata()

	media, err := uc.Store.FindMediaByURL(ctx, sourceID, record.OriginalURL)
	if errors.Is(err, domain.ErrNotFound) {
		created, err := uc.Store.CreateMedia(ctx, domain.Media{
			SourceID: sourceID,
			URL:      record.OriginalURL,
			Metadata: &meta,
		})
		if err != nil {
			return wrapStore(err)
		}
		uc.Logger.Info("new media discovered",
			slog.Int64("media_id", int64(created.ID)),
			slog.Int64("source_id", int64(sourceID)),
			slog.String("title", record.Title))
		uc.Downloads.Enqueue(ctx, created.ID)
		return nil
	}
	if err != nil {
		return wrapStore(err)
	}

	needDownload := media.MediaPath == nil
	if err := uc.Store.UpdateMediaMetadata(ctx, media.ID, &meta); err != nil {
		return wrapStore(err)
	}
	if media.MediaPath != nil && !fileExists(filepath.Join(uc.MediaDir, *media.MediaPath)) {
		uc.Logger.Warn("media file missing on disk, scheduling re-download",
			slog.Int64("media_id", int64(media.ID)),
			slog.String("path", *media.MediaPath))
		if err := uc.Store.SetMediaPath(ctx, media.ID, nil); err != nil {
			return wrapStore(err)
		}
		needDownload = true
	}
	if needDownload {
		uc.Downloads.Enqueue(ctx, media.ID)
	}
	return nil
}

// evictStale removes downloaded medias that fell out of the fetch window:
// files first, then the catalog rows.
func (uc RefreshSource) evictStale(ctx context.Context, sourceID domain.SourceID, fetchBefore int64) (int, error) {
	medias, err := uc.Store.ListMedias(ctx, &sourceID)
	if err != nil {
		return 0, wrapStore(err)
	}
	evicted := 0
	for _, media := range medias {
		if media.MediaPath == nil || media.Metadata == nil {
			continue
		}
		if media.Metadata.Timestamp >= fetchBefore {
			continue
		}
		if err := removeMediaFiles(uc.MediaDir, *media.MediaPath); err != nil {
			return evicted, err
		}
		if err := uc.Store.DeleteMedia(ctx, media.ID); err != nil {
			return evicted, wrapStore(err)
		}
		uc.Logger.Info("old media removed",
			slog.Int64("media_id", int64(media.ID)),
			slog.String("path", *media.MediaPath))
		evicted++
	}
	return evicted, nil
}

func (uc RefreshSource) now() time.Time {
	if uc.Now != nil {
		return uc.Now()
	}
	return time.Now()
}

// refreshTitle names the task after the uploader once a refresh has
// learned it, falling back to the raw URL.
func refreshTitle(source domain.Source) string {
	if source.Metadata != nil && source.Metadata.Uploader != "" {
		return "Refreshing " + source.Metadata.Uploader
	}
	return "Refreshing " + source.URL
}

// probeModeFor picks the cheapest probe that still answers what the
// refresh needs to know about ordering.
func probeModeFor(cached *domain.SourceMetadata) domain.ProbeMode {
	switch {
	case cached == nil:
		return domain.ProbeOrderAware
	case cached.ListKind == domain.ListKindVideo:
		return domain.ProbeMinimal
	case cached.ListOrder != "":
		return domain.ProbeMinimal
	default:
		return domain.ProbeOrderAware
	}
}

// earlyStopEnabled decides whether the walk may stop at the first entry
// older than the fetch window. Small lists are scanned in full because
// their ordering is the least reliable and a full pass is cheap.
func earlyStopEnabled(meta domain.SourceMetadata) bool {
	if meta.ListKind != domain.ListKindList {
		return true
	}
	if meta.ListCount != nil && *meta.ListCount <= smallListScanLimit {
		return false
	}
	return true
}

// deriveSourceMetadata merges the fresh probe with what earlier refreshes
// learned, applying the reuse rules tied to the selected view.
func deriveSourceMetadata(source domain.Source, probe domain.ListProbe, sel tabSelection, tabs []domain.ListTab) domain.SourceMetadata {
	cached := source.Metadata
	// Tabs exist but none is selected: the effective URL shows the
	// provider's container view, whose counters describe no single list.
	containerView := len(tabs) > 0 && sel.Tab == nil
	// A changed selection only invalidates counters somebody cached.
	tabChanged := cached != nil && sel.Changed

	meta := domain.SourceMetadata{
		ListKind:  probe.ListKind,
		ListCount: probe.ListCount,
		ListOrder: probe.ListOrder,
		ListTab:   sel.Tab,
		ListTabs:  tabs,
	}
	if cached != nil && !tabChanged {
		if meta.ListCount == nil {
			meta.ListCount = cached.ListCount
		}
		if meta.ListOrder == "" {
			meta.ListOrder = cached.ListOrder
		}
	}
	if containerView {
		meta.ListCount = nil
	}

	var cachedUploader, cachedProvider string
	if cached != nil {
		cachedUploader = cached.Uploader
		cachedProvider = cached.SourceProvider
	}
	host := urlHost(source.URL)
	meta.Uploader = firstNonEmpty(probe.Uploader, cachedUploader, host, "unknown")
	meta.SourceProvider = firstNonEmpty(probe.SourceProvider, cachedProvider, host, "unknown")

	switch {
	case meta.ListKind == domain.ListKindVideo:
		meta.Items = 1
	case tabChanged || containerView:
		meta.Items = 0
	case meta.ListCount != nil:
		meta.Items = *meta.ListCount
	case cached != nil:
		meta.Items = cached.Items
	default:
		meta.Items = 0
	}
	return meta
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
