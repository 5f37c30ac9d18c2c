package config

// loader.go - configuration loading through viper.
//
// Precedence order (highest wins):
//   1. CLI flags that were set explicitly
//   2. Environment variables (CHATD_*)
//   3. Config file (--config, any format viper reads)
//   4. Defaults (defaults.go)

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable: port -> CHATD_PORT,
// max-connections -> CHATD_MAX_CONNECTIONS.
const EnvPrefix = "CHATD"

// Load resolves a Config from defaults, the config file at path (skipped
// when empty), the environment, and fs (may be nil).
func Load(fs *pflag.FlagSet, path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("bind-address", d.BindAddress)
	v.SetDefault("port", d.Port)
	v.SetDefault("backlog", d.Backlog)
	v.SetDefault("max-connections", d.MaxConnections)
	v.SetDefault("idle-threshold-ms", d.IdleThresholdMs)
	v.SetDefault("watchdog-interval-ms", d.WatchdogIntervalMs)
	v.SetDefault("drain-timeout-ms", d.DrainTimeoutMs)
	v.SetDefault("send-timeout-ms", d.SendTimeoutMs)
	v.SetDefault("max-line-length", d.MaxLineLength)
	v.SetDefault("stats-interval-ms", d.StatsIntervalMs)
	v.SetDefault("host", d.Host)
	v.SetDefault("timeout-ms", d.TimeoutMs)
	v.SetDefault("retries", d.Retries)
	v.SetDefault("listen", d.Listen)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("log-format", d.LogFormat)
}
