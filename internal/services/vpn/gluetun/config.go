package gluetun

import (
	"strings"
	"time"
)

// Config locates the gluetun control server and bounds the state polls.
type Config struct {
	BaseURL      string
	PollAttempts int
	PollInterval time.Duration
}

// NewConfig builds a Config from the configured control address. The
// second return is false when the address is empty and the integration
// stays disabled. An address without a scheme is reached over plain HTTP.
func NewConfig(addr string) (Config, bool) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return Config{}, false
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	return Config{
		BaseURL:      trimmed,
		PollAttempts: 5,
		PollInterval: time.Second,
	}, true
}

func (c Config) statusURL() string {
	return c.BaseURL + "/v1/vpn/status"
}
