// Package watchdog disconnects sessions that stay silent for too long.
package watchdog

import (
	"time"

	"chatd/internal/metrics"
	"chatd/internal/session"
	"chatd/util"
)

const (
	DefaultInterval  = 10 * time.Second
	DefaultThreshold = 5 * time.Minute
)

// Target is the session a watchdog supervises.
type Target interface {
	ID() uint64
	LastActivity() time.Time
	Done() <-chan struct{}
	Close(reason session.Reason, farewell ...string) bool
}

// Presence reports whether a session is still registered.
type Presence interface {
	Has(id uint64) bool
}

// Watchdog checks one session per Watch call.  Zero fields take the
// defaults; Registry may be nil.
type Watchdog struct {
	Interval  time.Duration
	Threshold time.Duration
	Registry  Presence
	Logger    *util.Logger
	Metrics   *metrics.Collector
	Now       func() time.Time
}

// Watch blocks until t is closed, leaves the registry, or has been
// silent for Threshold, in which case it is closed with the idle
// notice.  Checks happen once per Interval.
func (w *Watchdog) Watch(t Target) {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	threshold := w.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	now := w.Now
	if now == nil {
		now = time.Now
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.Done():
			return
		case <-ticker.C:
		}

		if w.Registry != nil && !w.Registry.Has(t.ID()) {
			return
		}
		idle := now().Sub(t.LastActivity())
		if idle < threshold {
			continue
		}
		if t.Close(session.ReasonIdleTimeout, session.NoticeIdle) {
			w.Metrics.IdleTimeout()
			if w.Logger != nil {
				w.Logger.WithField("session", t.ID()).Info("idle for %s, disconnected", idle.Truncate(time.Millisecond))
			}
		}
		return
	}
}
