package domain

import (
	"errors"
	"time"
)

type MediaID int64

// MediaMetadata is the per-video subset of the extractor record kept in
// the catalog.
type MediaMetadata struct {
	Title        string  `json:"title"`
	Description  *string `json:"description,omitempty"`
	Duration     uint64  `json:"duration"`
	ExtractorKey string  `json:"extractor_key"`
	OriginalURL  string  `json:"original_url"`
	Timestamp    int64   `json:"timestamp"` // epoch seconds
}

// Media is one downloadable video item belonging to a Source. MediaPath,
// when set, is relative to the media root.
type Media struct {
	ID        MediaID        `json:"id"`
	SourceID  SourceID       `json:"source_id"`
	URL       string         `json:"url"`
	Metadata  *MediaMetadata `json:"metadata,omitempty"`
	MediaPath *string        `json:"media_path,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Validate checks domain invariants for Media.
func (m Media) Validate() error {
	if m.URL == "" {
		return errors.New("media url is required")
	}
	if m.SourceID == 0 {
		return errors.New("media source_id is required")
	}
	return nil
}
