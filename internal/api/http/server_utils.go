package apihttp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"localtube/internal/domain"
	"localtube/internal/usecase"
)

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUseCaseError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "source not found")
		return
	}
	if errors.Is(err, usecase.ErrInvalidSource) {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if errors.Is(err, usecase.ErrStore) {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if errors.Is(err, usecase.ErrExtractor) {
		writeError(w, http.StatusInternalServerError, "extractor_error", err.Error())
		return
	}

	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func writeStoreError(w http.ResponseWriter, err error, notFoundMessage string) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", notFoundMessage)
		return
	}

	writeError(w, http.StatusInternalServerError, "store_error", err.Error())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

var (
	// errRangeIgnored means the Range header should be treated as absent
	// and the full body served.
	errRangeIgnored = errors.New("range ignored")

	errRangeNotSatisfiable = errors.New("range not satisfiable")
)

// parseByteRange interprets a Range header against a file of the given
// size. Only a single bytes-range is honored: other units, multi-range
// headers and unparseable specs yield errRangeIgnored; a bytes-range
// that names no byte of the file yields errRangeNotSatisfiable.
func parseByteRange(value string, size int64) (int64, int64, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(strings.ToLower(value), "bytes=") {
		return 0, 0, errRangeIgnored
	}

	spec := strings.TrimSpace(value[len("bytes="):])
	if spec == "" || strings.Contains(spec, ",") {
		return 0, 0, errRangeIgnored
	}

	if size <= 0 {
		return 0, 0, errRangeNotSatisfiable
	}

	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, errRangeIgnored
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	if startStr == "" {
		// Suffix form: the last N bytes of the file.
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffix < 0 {
			return 0, 0, errRangeIgnored
		}
		if suffix == 0 {
			return 0, 0, errRangeNotSatisfiable
		}
		if suffix > size {
			suffix = size
		}
		return size - suffix, size - 1, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, errRangeIgnored
	}
	if start >= size {
		return 0, 0, errRangeNotSatisfiable
	}

	if endStr == "" {
		return start, size - 1, nil
	}

	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < 0 {
		return 0, 0, errRangeIgnored
	}
	if end < start {
		return 0, 0, errRangeNotSatisfiable
	}
	if end >= size {
		end = size - 1
	}
	return start, end, nil
}

const streamChunkSize = 16 * 1024

// copyChunks copies exactly n bytes from src in fixed-size chunks and
// reports how many were written.
func copyChunks(dst io.Writer, src io.Reader, n int64) (int64, error) {
	buf := make([]byte, streamChunkSize)
	return io.CopyBuffer(dst, io.LimitReader(src, n), buf)
}

// validMediaPath rejects stored paths that could escape the media root:
// empty, absolute or volume-qualified paths, and any ".." component.
func validMediaPath(path string) bool {
	if path == "" || filepath.IsAbs(path) || filepath.VolumeName(path) != "" {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

func mediaContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	default:
		return "application/octet-stream"
	}
}
