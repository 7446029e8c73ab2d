package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"localtube/internal/domain"
	"localtube/internal/domain/ports"
)

type UpdateSourceInput struct {
	// URL is applied only when the request carried the field.
	URL              *string
	FetchLastDays    int
	RefreshFrequency int
	Sponsorblock     string

	// ListTab is applied only when the request carried the field; its
	// value is normalized before comparison, so "auto" and "" both mean
	// automatic tab selection.
	ListTab *string
}

// UpdateSource rewrites a source's settings and invalidates the cached
// metadata the change made stale: a new URL discards the whole tab
// family, a new tab selection discards the per-view counters but keeps
// the probed tab list. Every update queues a refresh.
type UpdateSource struct {
	Store     ports.Store
	Refreshes RefreshRequester
	Logger    *slog.Logger
}

func (uc UpdateSource) Execute(ctx context.Context, id domain.SourceID, input UpdateSourceInput) (domain.Source, error) {
	source, err := uc.Store.GetSource(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Source{}, err
		}
		return domain.Source{}, wrapStore(err)
	}

	urlChanged := false
	if input.URL != nil {
		trimmed := strings.TrimSpace(*input.URL)
		urlChanged = trimmed != source.URL
		source.URL = trimmed
	}
	source.FetchLastDays = input.FetchLastDays
	source.RefreshFrequency = input.RefreshFrequency
	source.Sponsorblock = strings.TrimSpace(input.Sponsorblock)

	if err := source.Validate(); err != nil {
		return domain.Source{}, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	if meta := source.Metadata; meta != nil {
		if urlChanged {
			meta.ListTab = nil
			meta.ListTabs = nil
			meta.Items = 0
			meta.ListOrder = ""
			meta.ListCount = nil
		}
		if input.ListTab != nil {
			normalized := normalizeListTab(*input.ListTab)
			if !equalOptionalStrings(meta.ListTab, normalized) {
				// Clearing cached order/count forces a fresh probe for the
				// new tab.
				meta.ListTab = normalized
				meta.Items = 0
				meta.ListOrder = ""
				meta.ListCount = nil
			}
		}
	}

	if err := uc.Store.UpdateSource(ctx, source); err != nil {
		return domain.Source{}, wrapStore(err)
	}

	if err := uc.Refreshes.ScheduleRefresh(ctx, source.ID); err != nil {
		uc.Logger.Warn("refresh scheduling failed",
			slog.Int64("source_id", int64(source.ID)),
			slog.String("error", err.Error()))
	}

	uc.Logger.Info("source updated",
		slog.Int64("source_id", int64(source.ID)),
		slog.String("url", source.URL))
	return source, nil
}

// normalizeListTab maps a user-supplied tab value to the stored form:
// nil for automatic selection, otherwise the trimmed URL without its
// trailing slash.
func normalizeListTab(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || strings.EqualFold(trimmed, "auto") {
		return nil
	}
	normalized := strings.TrimRight(trimmed, "/")
	return &normalized
}

func equalOptionalStrings(a, b *string) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return *a == *b
	}
}
