package ytdlp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const defaultDebugLogPath = "logs/ytdlp-json.log"

type debugMode int

const (
	debugOff debugMode = iota
	debugLog
	debugFile
)

// DebugCapture records raw yt-dlp output for troubleshooting. Modes:
// "off" (default), "log" (slog debug), "file" (append to
// logs/ytdlp-json.log), "file:<path>" (append to a custom path).
type DebugCapture struct {
	mode   debugMode
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// NewDebugCapture parses the raw LOCALTUBE_YTDLP_DEBUG value. Unknown
// values fall back to off with a warning.
func NewDebugCapture(raw string, logger *slog.Logger) *DebugCapture {
	d := &DebugCapture{logger: logger}
	value := strings.TrimSpace(raw)
	switch {
	case value == "" || value == "off":
		d.mode = debugOff
	case value == "log":
		d.mode = debugLog
	case value == "file":
		d.mode = debugFile
		d.path = defaultDebugLogPath
	case strings.HasPrefix(value, "file:"):
		d.mode = debugFile
		d.path = strings.TrimPrefix(value, "file:")
	default:
		logger.Warn("unknown LOCALTUBE_YTDLP_DEBUG value, capture disabled",
			slog.String("value", value))
		d.mode = debugOff
	}
	return d
}

// Enabled reports whether captures go anywhere.
func (d *DebugCapture) Enabled() bool {
	return d.mode != debugOff
}

// Capture records one chunk of yt-dlp output. JSON payloads are
// compacted; anything else is stored with newlines escaped. extra is an
// optional annotation appended to the context prefix.
func (d *DebugCapture) Capture(op, url, raw, extra string) {
	if d.mode == debugOff {
		return
	}

	entry := d.prefix(op, url, raw, extra) + compactPayload(raw)
	switch d.mode {
	case debugLog:
		d.logger.Debug(entry)
	case debugFile:
		d.append(entry)
	}
}

func (d *DebugCapture) prefix(op, url, raw, extra string) string {
	if extra != "" {
		return fmt.Sprintf("[ytdlp ctx=%s url=%s len=%d %s] ", op, url, len(raw), extra)
	}
	return fmt.Sprintf("[ytdlp ctx=%s url=%s len=%d] ", op, url, len(raw))
}

func (d *DebugCapture) append(entry string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if dir := filepath.Dir(d.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			d.logger.Warn("ytdlp debug log directory", slog.String("error", err.Error()))
			return
		}
	}
	f, err := os.OpenFile(d.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		d.logger.Warn("ytdlp debug log open", slog.String("error", err.Error()))
		return
	}
	defer f.Close()

	if _, err := f.WriteString(entry + "\n"); err != nil {
		d.logger.Warn("ytdlp debug log write", slog.String("error", err.Error()))
	}
}

// compactPayload normalizes a capture to a single line: valid JSON is
// compacted, everything else has its newlines escaped.
func compactPayload(raw string) string {
	trimmed := strings.TrimSpace(raw)
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(trimmed)); err == nil {
		return buf.String()
	}
	return strings.ReplaceAll(trimmed, "\n", "\\n")
}
