package app

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const (
	// DefaultYtdlpConcurrency is used when LOCALTUBE_YTDLP_CONCURRENCY is
	// unset or invalid.
	DefaultYtdlpConcurrency = 4
	// MaxYtdlpConcurrency caps how many yt-dlp downloads may run at once.
	MaxYtdlpConcurrency = 8

	// DefaultMediaDir is used when LOCALTUBE_MEDIA_DIR is unset.
	DefaultMediaDir = "media"
)

type Config struct {
	HTTPAddr           string
	MongoURI           string
	MongoDatabase      string
	LogLevel           string
	LogFormat          string
	MediaDir           string // empty = unset, resolved at wire-up
	YtdlpPath          string
	YtdlpConcurrency   string // raw value, resolved at wire-up
	GluetunControlAddr string // empty disables the VPN integration
	YtdlpDebug         string
	CORSAllowedOrigins []string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:      getEnv("MONGO_DB", "localtube"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		MediaDir:           strings.TrimSpace(os.Getenv("LOCALTUBE_MEDIA_DIR")),
		YtdlpPath:          getEnv("LOCALTUBE_YTDLP_PATH", "libs/yt-dlp"),
		YtdlpConcurrency:   os.Getenv("LOCALTUBE_YTDLP_CONCURRENCY"),
		GluetunControlAddr: strings.TrimSpace(os.Getenv("LOCALTUBE_GLUETUN_CONTROL_ADDR")),
		YtdlpDebug:         getEnv("LOCALTUBE_YTDLP_DEBUG", "off"),
		CORSAllowedOrigins: parseCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}
}

// ResolveYtdlpConcurrency parses the raw LOCALTUBE_YTDLP_CONCURRENCY value.
// Unparsable values and values outside 1..MaxYtdlpConcurrency fall back to
// the default with a warning.
func ResolveYtdlpConcurrency(raw string, logger *slog.Logger) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DefaultYtdlpConcurrency
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed < 1 || parsed > MaxYtdlpConcurrency {
		logger.Warn("invalid LOCALTUBE_YTDLP_CONCURRENCY value, using default",
			slog.String("value", trimmed),
			slog.Int("default", DefaultYtdlpConcurrency))
		return DefaultYtdlpConcurrency
	}
	return parsed
}

// ResolveMediaDir falls back to DefaultMediaDir with a warning when the
// media directory is not configured.
func ResolveMediaDir(raw string, logger *slog.Logger) string {
	if raw != "" {
		return raw
	}
	logger.Warn("LOCALTUBE_MEDIA_DIR is not set, using default",
		slog.String("default", DefaultMediaDir))
	return DefaultMediaDir
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
