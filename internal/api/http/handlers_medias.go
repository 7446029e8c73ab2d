package apihttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"localtube/internal/domain"
	"localtube/internal/metrics"
)

type mediaList struct {
	Items []domain.Media `json:"items"`
	Count int            `json:"count"`
}

func (s *Server) handleMedias(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "store not configured")
		return
	}

	var sourceID *domain.SourceID
	if raw := strings.TrimSpace(r.URL.Query().Get("sourceId")); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid sourceId")
			return
		}
		sid := domain.SourceID(id)
		sourceID = &sid
	}

	medias, err := s.store.ListMedias(r.Context(), sourceID)
	if err != nil {
		writeStoreError(w, err, "media not found")
		return
	}

	writeJSON(w, http.StatusOK, mediaList{Items: medias, Count: len(medias)})
}

func (s *Server) handleMediaByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/medias/")
	if path == "" {
		http.NotFound(w, r)
		return
	}

	parts := strings.Split(path, "/")
	id, err := parseID(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid media id")
		return
	}
	mediaID := domain.MediaID(id)

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleGetMedia(w, r, mediaID)
		return
	}

	if len(parts) == 2 {
		switch parts[1] {
		case "stream":
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			s.handleStreamMedia(w, r, mediaID)
			return
		case "redownload":
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			s.handleRedownloadMedia(w, r, mediaID)
			return
		}
	}

	http.NotFound(w, r)
}

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request, id domain.MediaID) {
	if s.store == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "store not configured")
		return
	}

	media, err := s.store.GetMedia(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "media not found")
		return
	}

	writeJSON(w, http.StatusOK, media)
}

func (s *Server) handleRedownloadMedia(w http.ResponseWriter, r *http.Request, id domain.MediaID) {
	if s.redownload == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "redownload use case not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := s.redownload.Execute(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "media not found")
			return
		}
		writeUseCaseError(w, err)
		return
	}

	http.Redirect(w, r, "/medias", http.StatusSeeOther)
}

// handleStreamMedia serves a downloaded file with single-range byte
// semantics: one bytes-range gets a 206 slice, other range units and
// multi-range headers get the full body, a range naming no byte of the
// file gets 416.
func (s *Server) handleStreamMedia(w http.ResponseWriter, r *http.Request, id domain.MediaID) {
	if s.store == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "store not configured")
		return
	}

	media, err := s.store.GetMedia(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "media not found")
		return
	}
	if media.MediaPath == nil || !validMediaPath(*media.MediaPath) {
		writeError(w, http.StatusNotFound, "not_found", "media file not available")
		return
	}

	full := filepath.Join(s.mediaDir, filepath.FromSlash(*media.MediaPath))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "not_found", "media file not available")
		return
	}
	file, err := os.Open(full)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "media file not available")
		return
	}
	defer file.Close()

	size := info.Size()
	contentType := mediaContentType(*media.MediaPath)

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		start, end, err := parseByteRange(rangeHeader, size)
		switch {
		case err == nil:
			s.serveMediaRange(w, r, file, start, end, size, contentType)
			return
		case errors.Is(err, errRangeNotSatisfiable):
			w.Header().Set("Accept-Ranges", "bytes")
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		// Ignored ranges fall through to the full response.
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}

	written, err := copyChunks(w, file, size)
	metrics.StreamedBytes.Add(float64(written))
	if err != nil {
		s.logger.Debug("media stream interrupted",
			slog.Int64("media_id", int64(id)),
			slog.String("error", err.Error()))
	}
}

func (s *Server) serveMediaRange(w http.ResponseWriter, r *http.Request, file *os.File, start, end, size int64, contentType string) {
	if _, err := file.Seek(start, io.SeekStart); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "seek failed")
		return
	}

	length := end - start + 1
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return
	}

	written, err := copyChunks(w, file, length)
	metrics.StreamedBytes.Add(float64(written))
	if err != nil {
		s.logger.Debug("media stream interrupted", slog.String("error", err.Error()))
	}
}
