// Package server accepts client connections and runs one session and
// one idle watchdog per connection until Shutdown.
package server

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"chatd/internal/command"
	chaterr "chatd/internal/errors"
	"chatd/internal/metrics"
	"chatd/internal/registry"
	"chatd/internal/retry"
	"chatd/internal/session"
	"chatd/internal/transport"
	"chatd/internal/watchdog"
	"chatd/util"
)

// Server is the chat listener.  Create it with New, then Start it once.
type Server struct {
	logger   *util.Logger
	metrics  *metrics.Collector
	registry *registry.Registry[*session.Session]

	// listen opens the listening socket; tests replace it.
	listen func(context.Context, transport.ListenConfig) (net.Listener, error)

	mu         sync.Mutex
	cfg        Config
	ln         net.Listener
	closed     bool
	ctx        context.Context
	cancel     context.CancelFunc
	acceptDone chan struct{}
	dispatcher *command.Dispatcher
	watchdog   *watchdog.Watchdog

	wg       sync.WaitGroup // session read loops and watchdogs
	stopOnce sync.Once
	stopErr  error
}

// New creates a stopped server.  A nil logger is replaced with a quiet
// one and a nil collector with a fresh one.
func New(logger *util.Logger, m *metrics.Collector) *Server {
	if logger == nil {
		logger = util.NewLogger(int(util.LogQuiet))
	}
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		logger:   logger,
		metrics:  m,
		registry: registry.New[*session.Session](),
		listen:   transport.Listen,
	}
}

// Start binds cfg.BindAddress:cfg.Port and starts accepting in the
// background.  A bind failure is returned as a listen NetworkError.
func (s *Server) Start(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return chaterr.ErrServerClosed
	case s.ln != nil:
		return chaterr.ErrAlreadyStarted
	}

	cfg = cfg.withDefaults()
	addr := util.FormatAddr(cfg.BindAddress, cfg.Port)

	ln, err := s.listen(context.Background(), transport.ListenConfig{Address: addr, Backlog: cfg.Backlog})
	if err != nil {
		return chaterr.Bind(addr, err)
	}

	s.cfg = cfg
	s.ln = ln
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.acceptDone = make(chan struct{})
	s.dispatcher = &command.Dispatcher{
		Peers:   peerSet{s.registry},
		Logger:  s.logger,
		Metrics: s.metrics,
	}
	s.watchdog = &watchdog.Watchdog{
		Interval:  cfg.WatchdogInterval,
		Threshold: cfg.IdleThreshold,
		Registry:  s.registry,
		Logger:    s.logger,
		Metrics:   s.metrics,
	}

	s.logger.Info("listening on %s (backlog %d, max %d sessions, idle %s)",
		ln.Addr(), cfg.Backlog, cfg.MaxConnections, cfg.IdleThreshold)

	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Count returns the number of registered sessions.
func (s *Server) Count() int { return s.registry.Count() }

// Metrics returns the server's collector.
func (s *Server) Metrics() *metrics.Collector { return s.metrics }

// ── Accept loop ──────────────────────────────────────────────────────

func (s *Server) acceptLoop(ln net.Listener) {
	defer close(s.acceptDone)

	addr := ln.Addr().String()
	bo := retry.AcceptBackoff()
	bo.OnRetry = func(_ int, err error, wait time.Duration) {
		s.metrics.AcceptError()
		s.metrics.RecordError(err.Error())
		s.logger.Warn("%v, retrying in %s", err, wait)
	}

	for {
		var conn net.Conn
		err := bo.Do(s.ctx, func(int) error {
			c, err := ln.Accept()
			if err != nil {
				if s.ctx.Err() != nil || chaterr.Is(err, net.ErrClosed) {
					return retry.Permanent(chaterr.ErrServerClosed)
				}
				return chaterr.Accept(addr, err)
			}
			conn = c
			return nil
		})
		if err != nil {
			s.logger.Verbose("accept loop stopped: %v", err)
			return
		}
		s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	if limit := s.cfg.MaxConnections; limit > 0 && s.registry.Count() >= limit {
		s.reject(conn, limit)
		return
	}

	sess := session.New(s.registry.NextID(), conn, session.Options{
		SendTimeout:   s.cfg.SendTimeout,
		MaxLineLength: s.cfg.MaxLineLength,
		Logger:        s.logger,
		Metrics:       s.metrics,
		OnClose:       s.deregister,
	})
	if err := s.registry.Add(sess); err != nil {
		s.logger.Error("register session %d: %v", sess.ID(), err)
		conn.Close()
		return
	}
	s.metrics.SessionOpened()
	s.logger.WithFields(map[string]interface{}{"session": sess.ID(), "remote": sess.RemoteAddr()}).
		Info("accepted (%d/%d)", s.registry.Count(), s.cfg.MaxConnections)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		sess.Serve(s.dispatch)
	}()
	go func() {
		defer s.wg.Done()
		s.watchdog.Watch(sess)
	}()
}

func (s *Server) dispatch(sess *session.Session, line string) bool {
	return s.dispatcher.Dispatch(sess, line)
}

func (s *Server) deregister(sess *session.Session) {
	if s.registry.Remove(sess.ID()) {
		s.metrics.SessionClosed()
	}
}

// reject counts a connection over the limit and hands it to a
// goroutine that tells the client why it is being dropped, so a client
// that never reads cannot hold up the accept loop.
func (s *Server) reject(conn net.Conn, limit int) {
	capErr := &chaterr.CapacityError{Addr: util.RemoteAddr(conn), Limit: limit}
	s.metrics.ConnectionRejected()
	s.metrics.RecordError(capErr.Error())
	s.logger.Warn("%v", capErr)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer conn.Close()

		conn.SetWriteDeadline(time.Now().Add(s.cfg.SendTimeout)) //nolint:errcheck
		if _, err := io.WriteString(conn, session.NoticeFull+"\r\n"); err != nil {
			s.logger.Debug("capacity notice not delivered: %v", err)
		}
	}()
}

// ── Shutdown ─────────────────────────────────────────────────────────

// Shutdown stops accepting, closes every session with the stopping
// notice and waits for their goroutines, at most DrainTimeout.  It is
// idempotent and may be called before Start.
func (s *Server) Shutdown() error {
	s.stopOnce.Do(func() { s.stopErr = s.shutdown() })
	return s.stopErr
}

func (s *Server) shutdown() error {
	s.mu.Lock()
	s.closed = true
	ln := s.ln
	s.mu.Unlock()

	if ln == nil {
		return nil
	}

	s.cancel()
	if err := ln.Close(); err != nil && !util.IsHarmless(err) {
		s.logger.Warn("close listener: %v", err)
	}
	<-s.acceptDone

	sessions := s.registry.Snapshot()
	s.logger.Info("stopping, closing %d sessions", len(sessions))

	var g errgroup.Group
	for _, sess := range sessions {
		sess := sess
		g.Go(func() error {
			sess.Close(session.ReasonServerStopping, session.NoticeStopping)
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	t := time.NewTimer(s.cfg.DrainTimeout)
	defer t.Stop()
	select {
	case <-drained:
		s.logger.Info("stopped")
		return nil
	case <-t.C:
		s.logger.Error("%v after %s", chaterr.ErrDrainTimeout, s.cfg.DrainTimeout)
		return chaterr.ErrDrainTimeout
	}
}

// peerSet exposes the registry to the command dispatcher.
type peerSet struct {
	r *registry.Registry[*session.Session]
}

func (p peerSet) ForEachExcept(id uint64, fn func(command.Client)) {
	p.r.ForEachExcept(id, func(s *session.Session) { fn(s) })
}
