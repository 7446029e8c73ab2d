package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"localtube/internal/domain"
	"localtube/internal/metrics"
)

// Download retrieves the media behind url into the uploader's directory
// under the media root and returns the produced file's path relative to
// that root.
func (c *Client) Download(ctx context.Context, url string, source domain.Source) (string, error) {
	rel, err := c.download(ctx, url, source)
	if err != nil {
		metrics.MediaDownloads.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.MediaDownloads.WithLabelValues("ok").Inc()
	return rel, nil
}

func (c *Client) download(ctx context.Context, url string, source domain.Source) (string, error) {
	if source.Metadata == nil {
		return "", errors.New("source has no metadata; refresh it before downloading")
	}

	dir := filepath.Join(c.mediaDir, sanitizeDirName(source.Metadata.Uploader))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating media directory: %w", err)
	}

	stdout, err := c.runOnce(ctx, opDownload, url, downloadArgs(url, dir, source.SponsorblockCategories()))
	if err != nil {
		return "", err
	}

	var record domain.VideoRecord
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &record); err != nil {
		return "", fmt.Errorf("parsing yt-dlp record: %w", err)
	}

	produced, err := resolveDownloadedFile(record.Filename)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(c.mediaDir, produced)
	if err != nil {
		return "", fmt.Errorf("relativizing %q against media root: %w", produced, err)
	}
	return rel, nil
}

// resolveDownloadedFile locates the file yt-dlp produced. The reported
// filename predates the remux, so the .mkv variant is probed first, the
// original name second.
func resolveDownloadedFile(filename string) (string, error) {
	if filename == "" {
		return "", ErrNotDownloaded
	}
	remuxed := swapExtension(filename, ".mkv")
	if fileExists(remuxed) {
		return remuxed, nil
	}
	if fileExists(filename) {
		return filename, nil
	}
	return "", ErrNotDownloaded
}

func swapExtension(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// sanitizeDirName keeps letters, digits and "- _ . ( ) [ ]" plus spaces;
// everything else is dropped.
func sanitizeDirName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("-_.()[] ", r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
