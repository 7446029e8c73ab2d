package usecase

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// removeMediaFiles deletes a downloaded media file and its yt-dlp
// .info.json sidecar under dir. Missing files are ignored; the catalog
// row may outlive a manually pruned disk.
func removeMediaFiles(dir, mediaPath string) error {
	base := filepath.Join(dir, mediaPath)
	info := strings.TrimSuffix(base, filepath.Ext(base)) + ".info.json"
	for _, path := range []string{info, base} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

// fileExists is a plain existence probe; stat failures of any kind count
// as missing.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
