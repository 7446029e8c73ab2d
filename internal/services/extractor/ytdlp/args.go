package ytdlp

import (
	"fmt"

	"localtube/internal/domain"
)

// Operation names used for metrics labels and debug captures.
const (
	opProbe    = "probe_metadata"
	opTabs     = "probe_list_tabs"
	opSingle   = "single_metadata"
	opStream   = "stream_list"
	opDownload = "download"
)

// probeArgs builds the low-cost metadata dump invocation. maxEntries is 1
// for a minimal probe and 2 when the list order should be inferred.
func probeArgs(url string, maxEntries int) []string {
	return []string{
		"--dump-json",
		"-t", "sleep",
		fmt.Sprintf("--max-downloads=%d", maxEntries),
		"--simulate",
		url,
	}
}

// tabsArgs builds the flat single-JSON dump used to enumerate the tab
// views a channel offers.
func tabsArgs(url string) []string {
	return []string{
		"--dump-single-json",
		"--flat-playlist",
		"-t", "sleep",
		"--simulate",
		url,
	}
}

// streamArgs builds the line-by-line list dump. reverse asks yt-dlp to
// emit the playlist in reverse of its natural order.
func streamArgs(url string, reverse bool) []string {
	args := []string{
		"--dump-json",
		"--simulate",
		"-t", "sleep",
	}
	if reverse {
		args = append(args, "--playlist-reverse")
	}
	return append(args, url)
}

// downloadArgs builds the real retrieval invocation. An empty category
// list disables sponsorblock removal via the literal "-all".
func downloadArgs(url, targetDir string, categories domain.SponsorBlockCategories) []string {
	list := categories.String()
	if list == "" {
		list = "-all"
	}
	return []string{
		"--dump-json",
		"-t", "sleep",
		"--restrict-filenames",
		"--write-info-json",
		"--sponsorblock-remove=" + list,
		"--paths=" + targetDir,
		"--max-downloads=1",
		"--no-simulate",
		"--remux-video=mkv",
		"--embed-metadata",
		"--embed-subs",
		"--embed-thumbnail",
		url,
	}
}
