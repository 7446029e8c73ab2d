package ports

import (
	"context"

	"localtube/internal/domain"
)

// Extractor wraps the external CLI that turns remote URLs into structured
// records. Calls block on the child process; concurrency is bounded by the
// caller through the task gate.
type Extractor interface {
	ProbeMetadata(ctx context.Context, url string, mode domain.ProbeMode) (domain.ListProbe, error)
	// ProbeListTabs enumerates the provider tabs of a container URL.
	// Best-effort: callers may fall back to previously cached tabs.
	ProbeListTabs(ctx context.Context, url string) ([]domain.ListTab, error)
	SingleMetadata(ctx context.Context, url string) (domain.VideoRecord, error)
	// StreamList emits records as the extractor prints them. When reverse
	// is set the extractor is asked to invert its natural order. The
	// channel closes after the last item; a failed run (non-zero exit or
	// zero items) closes with exactly one terminal StreamItem.Err.
	// Cancelling ctx terminates the child process group.
	StreamList(ctx context.Context, url string, reverse bool) <-chan domain.StreamItem
	// Download retrieves the video and returns its path relative to the
	// media root.
	Download(ctx context.Context, url string, source domain.Source) (string, error)
}
