package core

import (
	"context"
	"time"

	"chatd/internal/metrics"
	"chatd/internal/server"
	"chatd/util"
)

// ServeMode runs the chat server until ctx is cancelled, then shuts it
// down.
type ServeMode struct {
	Config        server.Config
	StatsInterval time.Duration // 0 disables periodic stats
	Metrics       *metrics.Collector
	Logger        *util.Logger

	// Ready, if set, receives the server once it is listening.
	Ready func(*server.Server)
}

// Run starts the server and blocks until ctx is done.  Only a bind
// failure or an incomplete drain is returned as an error.
func (m *ServeMode) Run(ctx context.Context) error {
	srv := server.New(m.Logger, m.Metrics)
	if err := srv.Start(m.Config); err != nil {
		m.Logger.Error("%v", err)
		return err
	}
	if m.Ready != nil {
		m.Ready(srv)
	}

	var tick <-chan time.Time
	if m.StatsInterval > 0 {
		t := time.NewTicker(m.StatsInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-tick:
			m.Logger.Info("stats %s", srv.Metrics().JSON())
		case <-ctx.Done():
			m.Logger.Info("shutdown requested")
			err := srv.Shutdown()
			m.Logger.Verbose("final stats %s", srv.Metrics().JSON())
			return err
		}
	}
}
