package config

import (
	"strings"
	"testing"
	"time"

	chaterr "chatd/internal/errors"
)

func serveConfig() *Config {
	c := Default()
	c.Listen = true
	return c
}

func connectConfig() *Config {
	c := Default()
	c.Host = "127.0.0.1"
	return c
}

func TestDefault(t *testing.T) {
	c := Default()
	if c.BindAddress != "0.0.0.0" || c.Port != 9999 || c.Backlog != 128 || c.MaxConnections != 5 {
		t.Errorf("unexpected network defaults: %+v", c)
	}
	if c.IdleThreshold() != 5*time.Minute {
		t.Errorf("idle threshold = %v, want 5m", c.IdleThreshold())
	}
	if c.WatchdogInterval() != 10*time.Second {
		t.Errorf("watchdog interval = %v, want 10s", c.WatchdogInterval())
	}
	if c.MaxLineLength != 1024 {
		t.Errorf("max line length = %d, want 1024", c.MaxLineLength)
	}
	if c.StatsInterval() != 0 {
		t.Errorf("stats should be disabled by default")
	}
}

func TestDurations(t *testing.T) {
	c := &Config{DrainTimeoutMs: 1500, SendTimeoutMs: 250, TimeoutMs: 3000}
	if c.DrainTimeout() != 1500*time.Millisecond {
		t.Errorf("DrainTimeout = %v", c.DrainTimeout())
	}
	if c.SendTimeout() != 250*time.Millisecond {
		t.Errorf("SendTimeout = %v", c.SendTimeout())
	}
	if c.Timeout() != 3*time.Second {
		t.Errorf("Timeout = %v", c.Timeout())
	}
}

func TestValidate_Defaults(t *testing.T) {
	if err := serveConfig().Validate(); err != nil {
		t.Errorf("serve defaults: %v", err)
	}
	if err := connectConfig().Validate(); err != nil {
		t.Errorf("connect defaults: %v", err)
	}
}

// TestValidate_ErrorMessages verifies that Validate names the field
// and, where useful, carries a hint.
func TestValidate_ErrorMessages(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
		wantSub   string
	}{
		{"port too high", func(c *Config) { c.Port = 70000 }, "port", "hint:"},
		{"port negative", func(c *Config) { c.Port = -1 }, "port", "out of range"},
		{"no bind address", func(c *Config) { c.BindAddress = "" }, "bind-address", "hint:"},
		{"negative backlog", func(c *Config) { c.Backlog = -5 }, "backlog", "must not be negative"},
		{"negative capacity", func(c *Config) { c.MaxConnections = -1 }, "max-connections", "must not be negative"},
		{"zero idle", func(c *Config) { c.IdleThresholdMs = 0 }, "idle-threshold-ms", "must be positive"},
		{"zero interval", func(c *Config) { c.WatchdogIntervalMs = 0 }, "watchdog-interval-ms", "must be positive"},
		{"interval over threshold", func(c *Config) {
			c.IdleThresholdMs = 1000
			c.WatchdogIntervalMs = 2000
		}, "watchdog-interval-ms", "hint:"},
		{"zero line length", func(c *Config) { c.MaxLineLength = 0 }, "max-line-length", "must be positive"},
		{"bad verbosity", func(c *Config) { c.Verbose = 9 }, "verbose", "out of range 0-3"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log-format", `"json"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := serveConfig()
			tt.mutate(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			var ce *chaterr.ConfigError
			if !chaterr.As(err, &ce) {
				t.Fatalf("want *ConfigError, got %T", err)
			}
			if ce.Field != tt.wantField {
				t.Errorf("field = %q, want %q", ce.Field, tt.wantField)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantSub)
			}
		})
	}
}

func TestValidate_EphemeralPort(t *testing.T) {
	c := serveConfig()
	c.Port = 0
	if err := c.Validate(); err != nil {
		t.Errorf("port 0 should be allowed when serving: %v", err)
	}
}

func TestValidate_Connect(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"no host", func(c *Config) { c.Host = "" }, "--host: required"},
		{"port zero", func(c *Config) { c.Port = 0 }, "--port=0"},
		{"negative retries", func(c *Config) { c.Retries = -1 }, "--retries=-1"},
		{"negative timeout", func(c *Config) { c.TimeoutMs = -1 }, "--timeout-ms=-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := connectConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}
