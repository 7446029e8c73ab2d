package domain

import (
	"errors"
	"time"
)

type SourceID int64

// ListKind classifies what a source URL points at: a single video or a
// list of entries (channel, playlist, tab). The zero value means the kind
// has not been probed yet.
type ListKind string

const (
	ListKindVideo ListKind = "video"
	ListKindList  ListKind = "list"
)

// ListOrder is the emission order of a list as reported by the extractor.
// The zero value means the order is unknown.
type ListOrder string

const (
	OrderNewestFirst ListOrder = "newest_first"
	OrderOldestFirst ListOrder = "oldest_first"
)

// ListTab is one alternative view of a source offered by the provider
// (e.g. Videos / Shorts / Streams).
type ListTab struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// SourceMetadata is derived from the extractor and rewritten on every
// refresh. Cached values survive between refreshes according to the
// refresh worker's reuse rules.
type SourceMetadata struct {
	Uploader       string    `json:"uploader"`
	Items          uint64    `json:"items"`
	SourceProvider string    `json:"source_provider"`
	ListKind       ListKind  `json:"list_kind,omitempty"`
	ListCount      *uint64   `json:"list_count,omitempty"`
	ListOrder      ListOrder `json:"list_order,omitempty"`
	ListTab        *string   `json:"list_tab,omitempty"`
	ListTabs       []ListTab `json:"list_tabs,omitempty"`
}

// Source is a user-declared content origin.
type Source struct {
	ID                   SourceID        `json:"id"`
	URL                  string          `json:"url"`
	FetchLastDays        int             `json:"fetch_last_days"`
	RefreshFrequency     int             `json:"refresh_frequency"` // hours between refreshes
	Sponsorblock         string          `json:"sponsorblock"`
	Metadata             *SourceMetadata `json:"metadata,omitempty"`
	LastRefreshedAt      *time.Time      `json:"last_refreshed_at,omitempty"`
	LastScheduledRefresh *time.Time      `json:"last_scheduled_refresh,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// SponsorblockCategories parses the stored comma-delimited category list.
func (s Source) SponsorblockCategories() SponsorBlockCategories {
	return ParseSponsorBlockCategories(s.Sponsorblock)
}

// Validate checks domain invariants for Source.
func (s Source) Validate() error {
	if s.URL == "" {
		return errors.New("source url is required")
	}
	if s.FetchLastDays <= 0 {
		return errors.New("fetch_last_days must be positive")
	}
	if s.RefreshFrequency <= 0 {
		return errors.New("refresh_frequency must be positive")
	}
	return nil
}
