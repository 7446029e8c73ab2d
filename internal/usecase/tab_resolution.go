package usecase

import (
	"net/url"
	"strings"

	"localtube/internal/domain"
)

// listTabSuffixes are the provider view suffixes a channel URL can carry.
// Two URLs that differ only by one of these belong to the same channel.
var listTabSuffixes = []string{"/videos", "/streams", "/shorts", "/playlists"}

// tabSelection is the outcome of resolving which view of a source a
// refresh walks.
type tabSelection struct {
	// EffectiveURL is handed to the extractor for probing and streaming.
	EffectiveURL string

	// Tab is the view selection persisted into the source metadata; nil
	// means the source URL is used as-is, which on a tabbed provider is
	// the container view.
	Tab *string

	// Changed reports that the selection differs from the cached one.
	// A changed view invalidates cached list_count, list_order and items.
	Changed bool
}

// resolveListTab picks the view of the source to refresh.
//
// Preference order: the source URL itself when it is one of the probed
// tabs (kept verbatim so query and fragment survive), then the previously
// selected tab when it still exists among the probed ones, then the
// probed tab the source URL normalizes to, then the bare source URL. A
// cached tab that left the source's URL family (the source URL now points
// at a different channel) is discarded up front.
func resolveListTab(sourceURL string, cached *string, tabs []domain.ListTab) tabSelection {
	valid := cached
	if valid != nil && !sameURLFamily(*valid, sourceURL) {
		valid = nil
	}
	sel := pickListTab(sourceURL, valid, tabs)
	sel.Changed = !equalTabRefs(cached, sel.Tab)
	return sel
}

func pickListTab(sourceURL string, cached *string, tabs []domain.ListTab) tabSelection {
	for _, tab := range tabs {
		if tab.URL == sourceURL {
			return tabSelection{EffectiveURL: sourceURL, Tab: &sourceURL}
		}
	}
	if cached != nil {
		want := normalizeTabURL(*cached)
		for _, tab := range tabs {
			if normalizeTabURL(tab.URL) == want {
				return tabSelection{EffectiveURL: *cached, Tab: cached}
			}
		}
	}
	want := normalizeTabURL(sourceURL)
	for _, tab := range tabs {
		if normalizeTabURL(tab.URL) == want {
			tabURL := tab.URL
			return tabSelection{EffectiveURL: tabURL, Tab: &tabURL}
		}
	}
	return tabSelection{EffectiveURL: sourceURL}
}

// normalizeTabURL strips query and fragment and trims trailing slashes so
// spelling variants of the same view compare equal.
func normalizeTabURL(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.TrimRight(u, "/")
}

// trimTabSuffix reduces a tab URL to its channel root by removing one
// known view suffix.
func trimTabSuffix(u string) string {
	for _, suffix := range listTabSuffixes {
		if strings.HasSuffix(u, suffix) {
			return strings.TrimSuffix(u, suffix)
		}
	}
	return u
}

// sameURLFamily reports whether two URLs name the same channel: equal
// once normalized and reduced by at most one view suffix each.
func sameURLFamily(a, b string) bool {
	return trimTabSuffix(normalizeTabURL(a)) == trimTabSuffix(normalizeTabURL(b))
}

// equalTabRefs compares two optional tab URLs by normalized equality.
func equalTabRefs(a, b *string) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return normalizeTabURL(*a) == normalizeTabURL(*b)
	}
}

// urlHost extracts the hostname of a URL for use as a display fallback.
func urlHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
