package server

import (
	"time"

	"chatd/internal/session"
	"chatd/internal/watchdog"
)

// Config is what Start needs.  Zero durations and lengths take the
// defaults below; MaxConnections 0 means unlimited.
type Config struct {
	BindAddress      string
	Port             int
	Backlog          int
	MaxConnections   int
	IdleThreshold    time.Duration
	WatchdogInterval time.Duration
	DrainTimeout     time.Duration
	SendTimeout      time.Duration
	MaxLineLength    int
}

const (
	DefaultDrainTimeout = 5 * time.Second
	DefaultSendTimeout  = 2 * time.Second
)

// DefaultConfig returns the stock server settings.
func DefaultConfig() Config {
	return Config{
		BindAddress:      "0.0.0.0",
		Port:             9999,
		Backlog:          128,
		MaxConnections:   5,
		IdleThreshold:    watchdog.DefaultThreshold,
		WatchdogInterval: watchdog.DefaultInterval,
		DrainTimeout:     DefaultDrainTimeout,
		SendTimeout:      DefaultSendTimeout,
		MaxLineLength:    session.DefaultMaxLineLength,
	}
}

func (c Config) withDefaults() Config {
	if c.IdleThreshold <= 0 {
		c.IdleThreshold = watchdog.DefaultThreshold
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = watchdog.DefaultInterval
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = session.DefaultMaxLineLength
	}
	return c
}
