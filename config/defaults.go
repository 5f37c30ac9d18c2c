package config

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config files and environment variables.

const (
	DefaultBindAddress = "0.0.0.0"
	DefaultPort        = 9999

	// DefaultBacklog is the pending-connection queue passed to listen(2).
	DefaultBacklog = 128

	// DefaultMaxConnections caps concurrent sessions.  0 is unlimited.
	DefaultMaxConnections = 5

	// DefaultIdleThresholdMs is how long a session may stay silent.
	DefaultIdleThresholdMs = 300000

	// DefaultWatchdogIntervalMs is how often each watchdog checks.
	DefaultWatchdogIntervalMs = 10000

	// DefaultDrainTimeoutMs bounds Shutdown's wait for session goroutines.
	DefaultDrainTimeoutMs = 5000

	// DefaultSendTimeoutMs bounds a single write to one client.
	DefaultSendTimeoutMs = 2000

	DefaultMaxLineLength = 1024

	// DefaultStatsIntervalMs of 0 disables periodic stats logging.
	DefaultStatsIntervalMs = 0

	DefaultVerbose   = 1
	DefaultLogFormat = "text"

	// DefaultTimeoutMs is the line client's dial timeout.
	DefaultTimeoutMs = 10000
	DefaultRetries   = 0
)

// Default returns a Config with every field at its default.
func Default() *Config {
	return &Config{
		BindAddress:        DefaultBindAddress,
		Port:               DefaultPort,
		Backlog:            DefaultBacklog,
		MaxConnections:     DefaultMaxConnections,
		IdleThresholdMs:    DefaultIdleThresholdMs,
		WatchdogIntervalMs: DefaultWatchdogIntervalMs,
		DrainTimeoutMs:     DefaultDrainTimeoutMs,
		SendTimeoutMs:      DefaultSendTimeoutMs,
		MaxLineLength:      DefaultMaxLineLength,
		StatsIntervalMs:    DefaultStatsIntervalMs,
		TimeoutMs:          DefaultTimeoutMs,
		Retries:            DefaultRetries,
		Verbose:            DefaultVerbose,
		LogFormat:          DefaultLogFormat,
	}
}
