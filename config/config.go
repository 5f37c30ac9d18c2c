// Package config defines the runtime configuration for chatd and loads
// it from flags, environment, and an optional config file.
package config

import (
	"time"

	chaterr "chatd/internal/errors"
)

// Config holds every tuneable for one chatd process.  Keys match the
// CLI flag names, the config file keys, and (upper-cased, with the
// CHATD_ prefix and dashes as underscores) the environment variables.
type Config struct {
	// ── Server ───────────────────────────────────────────────────────
	BindAddress        string `mapstructure:"bind-address"`
	Port               int    `mapstructure:"port"`
	Backlog            int    `mapstructure:"backlog"`
	MaxConnections     int    `mapstructure:"max-connections"`
	IdleThresholdMs    int    `mapstructure:"idle-threshold-ms"`
	WatchdogIntervalMs int    `mapstructure:"watchdog-interval-ms"`
	DrainTimeoutMs     int    `mapstructure:"drain-timeout-ms"`
	SendTimeoutMs      int    `mapstructure:"send-timeout-ms"`
	MaxLineLength      int    `mapstructure:"max-line-length"`
	StatsIntervalMs    int    `mapstructure:"stats-interval-ms"`

	// ── Line client ──────────────────────────────────────────────────
	Host      string `mapstructure:"host"`
	TimeoutMs int    `mapstructure:"timeout-ms"`
	Retries   int    `mapstructure:"retries"`

	// ── Mode / output ────────────────────────────────────────────────
	Listen    bool   `mapstructure:"listen"`
	Verbose   int    `mapstructure:"verbose"`
	LogFormat string `mapstructure:"log-format"`
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (c *Config) IdleThreshold() time.Duration    { return ms(c.IdleThresholdMs) }
func (c *Config) WatchdogInterval() time.Duration { return ms(c.WatchdogIntervalMs) }
func (c *Config) DrainTimeout() time.Duration     { return ms(c.DrainTimeoutMs) }
func (c *Config) SendTimeout() time.Duration      { return ms(c.SendTimeoutMs) }
func (c *Config) StatsInterval() time.Duration    { return ms(c.StatsIntervalMs) }
func (c *Config) Timeout() time.Duration          { return ms(c.TimeoutMs) }

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent for
// the selected mode.  Errors are *errors.ConfigError values with a
// hint where one helps.
func (c *Config) Validate() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if c.Listen {
		return c.validateServe()
	}
	return c.validateConnect()
}

func (c *Config) validateCommon() error {
	if c.Verbose < 0 || c.Verbose > 3 {
		return &chaterr.ConfigError{Field: "verbose", Value: c.Verbose,
			Message: "out of range 0-3",
			Hint:    "0 = errors only, 1 = normal, 2 = verbose, 3 = debug"}
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return &chaterr.ConfigError{Field: "log-format", Value: c.LogFormat,
			Message: "unknown format",
			Hint:    `use "text" or "json"`}
	}
	return nil
}

func (c *Config) validateServe() error {
	if c.Port < 0 || c.Port > 65535 {
		return &chaterr.ConfigError{Field: "port", Value: c.Port,
			Message: "out of range 0-65535",
			Hint:    "use a port between 1 and 65535, or 0 for an ephemeral port"}
	}
	if c.BindAddress == "" {
		return &chaterr.ConfigError{Field: "bind-address", Message: "required",
			Hint: "use 0.0.0.0 to listen on all interfaces"}
	}

	nonNegative := []struct {
		field string
		value int
	}{
		{"backlog", c.Backlog},
		{"max-connections", c.MaxConnections},
		{"stats-interval-ms", c.StatsIntervalMs},
	}
	for _, f := range nonNegative {
		if f.value < 0 {
			return &chaterr.ConfigError{Field: f.field, Value: f.value, Message: "must not be negative"}
		}
	}

	positive := []struct {
		field string
		value int
	}{
		{"idle-threshold-ms", c.IdleThresholdMs},
		{"watchdog-interval-ms", c.WatchdogIntervalMs},
		{"drain-timeout-ms", c.DrainTimeoutMs},
		{"send-timeout-ms", c.SendTimeoutMs},
		{"max-line-length", c.MaxLineLength},
	}
	for _, f := range positive {
		if f.value <= 0 {
			return &chaterr.ConfigError{Field: f.field, Value: f.value, Message: "must be positive"}
		}
	}

	if c.WatchdogIntervalMs > c.IdleThresholdMs {
		return &chaterr.ConfigError{Field: "watchdog-interval-ms", Value: c.WatchdogIntervalMs,
			Message: "longer than idle-threshold-ms",
			Hint:    "idle sessions would outlive the threshold by a full interval; lower the interval"}
	}
	return nil
}

func (c *Config) validateConnect() error {
	if c.Host == "" {
		return &chaterr.ConfigError{Field: "host", Message: "required",
			Hint: "usage: chatd connect HOST PORT"}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &chaterr.ConfigError{Field: "port", Value: c.Port,
			Message: "out of range 1-65535"}
	}
	if c.Retries < 0 {
		return &chaterr.ConfigError{Field: "retries", Value: c.Retries, Message: "must not be negative"}
	}
	if c.TimeoutMs < 0 {
		return &chaterr.ConfigError{Field: "timeout-ms", Value: c.TimeoutMs, Message: "must not be negative",
			Hint: "use 0 for no dial timeout"}
	}
	return nil
}
