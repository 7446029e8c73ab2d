package gluetun

import (
	"testing"
	"time"
)

func TestNewConfig(t *testing.T) {
	cases := []struct {
		name    string
		addr    string
		want    string
		enabled bool
	}{
		{"empty disables", "", "", false},
		{"blank disables", "   ", "", false},
		{"bare host gets scheme", "gluetun:8000", "http://gluetun:8000", true},
		{"http kept", "http://10.0.0.2:8000", "http://10.0.0.2:8000", true},
		{"https kept", "https://gluetun.internal", "https://gluetun.internal", true},
		{"surrounding space trimmed", " gluetun:8000 ", "http://gluetun:8000", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, enabled := NewConfig(tc.addr)
			if enabled != tc.enabled {
				t.Fatalf("enabled = %v, want %v", enabled, tc.enabled)
			}
			if !enabled {
				return
			}
			if cfg.BaseURL != tc.want {
				t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, tc.want)
			}
			if cfg.PollAttempts != 5 || cfg.PollInterval != time.Second {
				t.Errorf("poll budget = %d × %v, want 5 × 1s", cfg.PollAttempts, cfg.PollInterval)
			}
		})
	}
}

func TestStatusURL(t *testing.T) {
	cfg, _ := NewConfig("gluetun:8000")
	if got := cfg.statusURL(); got != "http://gluetun:8000/v1/vpn/status" {
		t.Errorf("statusURL = %q", got)
	}
}
