package core

import (
	"chatd/config"
	"chatd/internal/capability"
	"chatd/internal/metrics"
	"chatd/internal/retry"
	"chatd/internal/server"
	"chatd/internal/transport"
	"chatd/util"
)

// Build constructs the Mode selected by cfg.  cfg should already be
// validated.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.Listen {
		return buildServe(cfg, logger), nil
	}
	return buildConnect(cfg, logger), nil
}

// ── mode builders ────────────────────────────────────────────────────

func buildServe(cfg *config.Config, logger *util.Logger) *ServeMode {
	return &ServeMode{
		Config:        ServerConfig(cfg),
		StatsInterval: cfg.StatsInterval(),
		Metrics:       metrics.New(),
		Logger:        logger,
	}
}

func buildConnect(cfg *config.Config, logger *util.Logger) *ConnectMode {
	return &ConnectMode{
		Dialer:     &transport.TCPDialer{Timeout: cfg.Timeout()},
		Capability: &capability.Relay{},
		Backoff:    retry.DialBackoff(cfg.Retries),
		Network:    "tcp",
		Address:    util.FormatAddr(cfg.Host, cfg.Port),
		Logger:     logger,
	}
}

// ServerConfig converts the file/flag configuration into what the
// server takes.
func ServerConfig(cfg *config.Config) server.Config {
	return server.Config{
		BindAddress:      cfg.BindAddress,
		Port:             cfg.Port,
		Backlog:          cfg.Backlog,
		MaxConnections:   cfg.MaxConnections,
		IdleThreshold:    cfg.IdleThreshold(),
		WatchdogInterval: cfg.WatchdogInterval(),
		DrainTimeout:     cfg.DrainTimeout(),
		SendTimeout:      cfg.SendTimeout(),
		MaxLineLength:    cfg.MaxLineLength,
	}
}
