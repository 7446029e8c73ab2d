package ytdlp

import "errors"

var (
	// ErrNotDownloaded means yt-dlp exited successfully but neither the
	// remuxed nor the original output file exists on disk.
	ErrNotDownloaded = errors.New("download finished but no output file was found")

	// ErrStreamFailed is the terminal element of a list stream whose
	// producer exited non-zero or emitted no items.
	ErrStreamFailed = errors.New("yt-dlp stream failed; check logs for details")
)
