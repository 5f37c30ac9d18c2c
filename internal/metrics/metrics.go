// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of a chatd server.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for a chatd server.
type Collector struct {
	sessionsActive    atomic.Int64
	sessionsTotal     atomic.Int64
	rejected          atomic.Int64
	idleTimeouts      atomic.Int64
	commands          atomic.Int64
	broadcasts        atomic.Int64
	broadcastFailures atomic.Int64
	acceptErrors      atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64
	errorsTotal       atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the current number of registered sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// ConnectionRejected records a connection turned away at capacity.
func (c *Collector) ConnectionRejected() {
	if c == nil {
		return
	}
	c.rejected.Add(1)
}

// Rejected returns the number of connections turned away at capacity.
func (c *Collector) Rejected() int64 {
	if c == nil {
		return 0
	}
	return c.rejected.Load()
}

// IdleTimeout records a session disconnected by its watchdog.
func (c *Collector) IdleTimeout() {
	if c == nil {
		return
	}
	c.idleTimeouts.Add(1)
}

// IdleTimeouts returns the number of watchdog disconnects.
func (c *Collector) IdleTimeouts() int64 {
	if c == nil {
		return 0
	}
	return c.idleTimeouts.Load()
}

// AcceptError records a transient accept failure.
func (c *Collector) AcceptError() {
	if c == nil {
		return
	}
	c.acceptErrors.Add(1)
}

// AcceptErrors returns the number of transient accept failures.
func (c *Collector) AcceptErrors() int64 {
	if c == nil {
		return 0
	}
	return c.acceptErrors.Load()
}

// ── Protocol metrics ─────────────────────────────────────────────────

// CommandHandled records one dispatched line.
func (c *Collector) CommandHandled() {
	if c == nil {
		return
	}
	c.commands.Add(1)
}

// Commands returns the number of dispatched lines.
func (c *Collector) Commands() int64 {
	if c == nil {
		return 0
	}
	return c.commands.Load()
}

// Broadcast records one HELLO fan-out.
func (c *Collector) Broadcast() {
	if c == nil {
		return
	}
	c.broadcasts.Add(1)
}

// BroadcastFailed records one failed delivery to a peer.
func (c *Collector) BroadcastFailed() {
	if c == nil {
		return
	}
	c.broadcastFailures.Add(1)
}

// Broadcasts returns the number of HELLO fan-outs.
func (c *Collector) Broadcasts() int64 {
	if c == nil {
		return 0
	}
	return c.broadcasts.Load()
}

// BroadcastFailures returns the number of failed peer deliveries.
func (c *Collector) BroadcastFailures() int64 {
	if c == nil {
		return 0
	}
	return c.broadcastFailures.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from the network.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to the network.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	SessionsActive    int64  `json:"sessions_active"`
	SessionsTotal     int64  `json:"sessions_total"`
	Rejected          int64  `json:"rejected"`
	IdleTimeouts      int64  `json:"idle_timeouts"`
	Commands          int64  `json:"commands"`
	Broadcasts        int64  `json:"broadcasts"`
	BroadcastFailures int64  `json:"broadcast_failures"`
	AcceptErrors      int64  `json:"accept_errors"`
	BytesIn           int64  `json:"bytes_in"`
	BytesOut          int64  `json:"bytes_out"`
	ErrorsTotal       int64  `json:"errors_total"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive:    c.sessionsActive.Load(),
		SessionsTotal:     c.sessionsTotal.Load(),
		Rejected:          c.rejected.Load(),
		IdleTimeouts:      c.idleTimeouts.Load(),
		Commands:          c.commands.Load(),
		Broadcasts:        c.broadcasts.Load(),
		BroadcastFailures: c.broadcastFailures.Load(),
		AcceptErrors:      c.acceptErrors.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as a compact JSON string, suitable for a
// single log line.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.Marshal(s)
	return string(data)
}
