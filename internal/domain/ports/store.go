package ports

import (
	"context"
	"time"

	"localtube/internal/domain"
)

// Store is the durable catalog of sources and medias. Deleting a source
// cascades to its medias. List operations return newest rows first
// (descending id).
type Store interface {
	CreateSource(ctx context.Context, s domain.Source) (domain.Source, error)
	UpdateSource(ctx context.Context, s domain.Source) error
	UpdateSourceMetadata(ctx context.Context, id domain.SourceID, m *domain.SourceMetadata) error
	SetSourceRefreshedAt(ctx context.Context, id domain.SourceID, at time.Time) error
	SetSourceScheduledAt(ctx context.Context, id domain.SourceID, at time.Time) error
	GetSource(ctx context.Context, id domain.SourceID) (domain.Source, error)
	ListSources(ctx context.Context) ([]domain.Source, error)
	DeleteSource(ctx context.Context, id domain.SourceID) error

	CreateMedia(ctx context.Context, m domain.Media) (domain.Media, error)
	UpdateMediaMetadata(ctx context.Context, id domain.MediaID, meta *domain.MediaMetadata) error
	SetMediaPath(ctx context.Context, id domain.MediaID, path *string) error
	GetMedia(ctx context.Context, id domain.MediaID) (domain.Media, error)
	// FindMediaByURL returns the media of the source whose URL contains
	// needle, or ErrNotFound.
	FindMediaByURL(ctx context.Context, sourceID domain.SourceID, needle string) (domain.Media, error)
	ListMedias(ctx context.Context, sourceID *domain.SourceID) ([]domain.Media, error)
	DeleteMedia(ctx context.Context, id domain.MediaID) error
}
