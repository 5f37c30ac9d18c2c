package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"chatd/internal/command"
	chaterr "chatd/internal/errors"
	"chatd/internal/metrics"
	"chatd/internal/session"
	"chatd/internal/transport"
	"chatd/util"
)

const waitFor = 2 * time.Second

var helpReply = strings.Join(command.HelpLines, "\r\n") + "\r\n"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BindAddress = "127.0.0.1"
	cfg.Port = 0
	cfg.IdleThreshold = time.Hour
	cfg.WatchdogInterval = 20 * time.Millisecond
	cfg.DrainTimeout = waitFor
	cfg.SendTimeout = time.Second
	return cfg
}

func startServer(t *testing.T, tweak func(*Config)) *Server {
	t.Helper()
	cfg := testConfig()
	if tweak != nil {
		tweak(&cfg)
	}
	srv := New(util.NewLogger(0), metrics.New())
	require.NoError(t, srv.Start(cfg))
	t.Cleanup(func() { srv.Shutdown() }) //nolint:errcheck
	return srv
}

// ── test client ──────────────────────────────────────────────────────

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

// dialRaw connects without consuming anything.
func dialRaw(t *testing.T, srv *Server) *client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr().String(), waitFor)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

// dial connects and consumes the greeting and first prompt.
func dial(t *testing.T, srv *Server) *client {
	t.Helper()
	c := dialRaw(t, srv)
	c.expect(session.Greeting + "\r\n" + session.Prompt)
	return c
}

func (c *client) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err)
}

func (c *client) read(n int) (string, error) {
	c.conn.SetReadDeadline(time.Now().Add(waitFor)) //nolint:errcheck
	buf := make([]byte, n)
	_, err := io.ReadFull(c.r, buf)
	return string(buf), err
}

func (c *client) expect(want string) {
	c.t.Helper()
	got, err := c.read(len(want))
	require.NoError(c.t, err, "waiting for %q", want)
	require.Equal(c.t, want, got)
}

// closedErr waits for the server to close the connection.
func (c *client) closedErr() error {
	c.conn.SetReadDeadline(time.Now().Add(waitFor)) //nolint:errcheck
	b, err := c.r.ReadByte()
	if err == nil {
		return errors.New("unexpected byte " + string(b))
	}
	if errors.Is(err, io.EOF) || errors.Is(err, syscall.ECONNRESET) {
		return nil
	}
	return err
}

func (c *client) expectClosed() {
	c.t.Helper()
	require.NoError(c.t, c.closedErr())
}

func waitCount(t *testing.T, srv *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return srv.Count() == n }, waitFor, 5*time.Millisecond,
		"want %d sessions, have %d", n, srv.Count())
}

// ── Start / Shutdown ─────────────────────────────────────────────────

func TestStart_BindError(t *testing.T) {
	first := startServer(t, nil)
	port := first.Addr().(*net.TCPAddr).Port

	second := New(nil, nil)
	err := second.Start(Config{BindAddress: "127.0.0.1", Port: port, Backlog: 8})
	require.Error(t, err)
	assert.True(t, chaterr.IsBind(err), "got %v", err)
	assert.Nil(t, second.Addr())
}

func TestStart_Twice(t *testing.T) {
	srv := startServer(t, nil)
	assert.ErrorIs(t, srv.Start(testConfig()), chaterr.ErrAlreadyStarted)
}

func TestShutdown_BeforeStart(t *testing.T) {
	srv := New(nil, nil)
	require.NoError(t, srv.Shutdown())
	require.NoError(t, srv.Shutdown())
	assert.ErrorIs(t, srv.Start(testConfig()), chaterr.ErrServerClosed)
}

func TestShutdown_Idempotent(t *testing.T) {
	srv := startServer(t, nil)
	dial(t, srv)
	waitCount(t, srv, 1)

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(srv.Shutdown)
	}
	require.NoError(t, g.Wait())
	assert.Zero(t, srv.Count())

	_, err := net.DialTimeout("tcp", srv.Addr().String(), 200*time.Millisecond)
	assert.Error(t, err, "listener should be closed")
}

func TestShutdown_DrainTimeout(t *testing.T) {
	srv := startServer(t, func(c *Config) { c.DrainTimeout = 50 * time.Millisecond })

	// A session goroutine that never finishes.
	srv.wg.Add(1)
	defer srv.wg.Done()

	assert.ErrorIs(t, srv.Shutdown(), chaterr.ErrDrainTimeout)
}

// ── Protocol scenarios ───────────────────────────────────────────────

func TestScenario_HelpThenBye(t *testing.T) {
	srv := startServer(t, nil)
	c := dial(t, srv)
	waitCount(t, srv, 1)

	c.send("HELP")
	c.expect(helpReply + session.Prompt)

	c.send("BYE")
	c.expect("Bye!\r\n")
	c.expectClosed()
	waitCount(t, srv, 0)
}

func TestScenario_HelloBroadcast(t *testing.T) {
	srv := startServer(t, nil)
	a := dial(t, srv)
	b := dial(t, srv)
	waitCount(t, srv, 2)

	a.send("HELLO Alice")
	a.expect(session.Prompt)
	b.expect("** Greetings from Alice! **\r\n")

	// Nothing else is queued for A: its next reply comes first.
	a.send("HELP")
	a.expect(helpReply + session.Prompt)
	assert.Equal(t, int64(1), srv.Metrics().Broadcasts())
}

func TestHello_ExactlyOncePerPeer(t *testing.T) {
	srv := startServer(t, nil)
	clients := []*client{dial(t, srv), dial(t, srv), dial(t, srv), dial(t, srv)}
	waitCount(t, srv, 4)

	clients[0].send("hello Zed")
	clients[0].expect(session.Prompt)

	for _, c := range clients[1:] {
		c.expect("** Greetings from Zed! **\r\n")
		c.send("")
		c.expect("Hello?\r\n" + session.Prompt)
	}
}

func TestUnknownAndEmpty(t *testing.T) {
	srv := startServer(t, nil)
	c := dial(t, srv)

	c.send("dance now")
	c.expect("unknown command: dance\r\n" + session.Prompt)

	c.send("")
	c.expect("Hello?\r\n" + session.Prompt)

	c.send("help")
	c.expect(helpReply + session.Prompt)
}

func TestScenario_IdleTimeout(t *testing.T) {
	srv := startServer(t, func(c *Config) {
		c.IdleThreshold = 100 * time.Millisecond
		c.WatchdogInterval = 20 * time.Millisecond
	})
	c := dial(t, srv)

	c.expect(session.NoticeIdle + "\r\n")
	c.expectClosed()
	waitCount(t, srv, 0)
	assert.Equal(t, int64(1), srv.Metrics().IdleTimeouts())
}

func TestIdle_ActiveClientSurvives(t *testing.T) {
	srv := startServer(t, func(c *Config) {
		c.IdleThreshold = 200 * time.Millisecond
		c.WatchdogInterval = 20 * time.Millisecond
	})
	c := dial(t, srv)

	for i := 0; i < 8; i++ {
		time.Sleep(50 * time.Millisecond)
		c.send("")
		c.expect("Hello?\r\n" + session.Prompt)
	}
	assert.Equal(t, 1, srv.Count())
	assert.Zero(t, srv.Metrics().IdleTimeouts())
}

func TestScenario_ShutdownWithClients(t *testing.T) {
	srv := startServer(t, nil)

	clients := make([]*client, 3)
	var g errgroup.Group
	for i := range clients {
		i := i
		g.Go(func() error {
			conn, err := net.DialTimeout("tcp", srv.Addr().String(), waitFor)
			if err != nil {
				return err
			}
			clients[i] = &client{t: t, conn: conn, r: bufio.NewReader(conn)}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, c := range clients {
		defer c.conn.Close()
		c.expect(session.Greeting + "\r\n" + session.Prompt)
	}
	waitCount(t, srv, 3)

	require.NoError(t, srv.Shutdown())
	assert.Zero(t, srv.Count())

	var reads errgroup.Group
	for _, c := range clients {
		c := c
		reads.Go(func() error {
			want := session.NoticeStopping + "\r\n"
			got, err := c.read(len(want))
			if err != nil {
				return err
			}
			if got != want {
				return errors.New("got " + got)
			}
			return c.closedErr()
		})
	}
	require.NoError(t, reads.Wait())
}

func TestCapacity(t *testing.T) {
	srv := startServer(t, func(c *Config) { c.MaxConnections = 2 })
	a := dial(t, srv)
	b := dial(t, srv)
	waitCount(t, srv, 2)

	extra := dialRaw(t, srv)
	extra.expect(session.NoticeFull + "\r\n")
	extra.expectClosed()
	assert.Equal(t, int64(1), srv.Metrics().Rejected())
	assert.Equal(t, int64(1), srv.Metrics().ErrorCount())
	assert.Contains(t, srv.Metrics().Snapshot().LastErrorMessage, "connection limit reached")

	// The admitted sessions are unaffected.
	a.send("HELP")
	a.expect(helpReply + session.Prompt)
	b.send("")
	b.expect("Hello?\r\n" + session.Prompt)
	assert.Equal(t, 2, srv.Count())

	// A freed slot admits a new client.
	a.send("BYE")
	a.expect("Bye!\r\n")
	waitCount(t, srv, 1)
	dial(t, srv)
	waitCount(t, srv, 2)
}

func TestLineTooLong(t *testing.T) {
	srv := startServer(t, func(c *Config) { c.MaxLineLength = 16 })
	c := dial(t, srv)

	_, err := c.conn.Write([]byte(strings.Repeat("x", 40)))
	require.NoError(t, err)
	c.expect(session.NoticeLineTooLong + "\r\n")
	c.expectClosed()
	waitCount(t, srv, 0)
}

func TestPeerDisconnect(t *testing.T) {
	srv := startServer(t, nil)
	c := dial(t, srv)
	waitCount(t, srv, 1)

	c.conn.Close()
	waitCount(t, srv, 0)
	assert.Zero(t, srv.Metrics().ActiveSessions())
	assert.Equal(t, int64(1), srv.Metrics().TotalSessions())
}

func TestSessionIDs_NeverReused(t *testing.T) {
	srv := startServer(t, func(c *Config) { c.MaxConnections = 0 })

	seen := make(map[uint64]bool)
	var last uint64
	for round := 0; round < 3; round++ {
		clients := []*client{dial(t, srv), dial(t, srv), dial(t, srv)}
		waitCount(t, srv, 3)
		for _, s := range srv.registry.Snapshot() {
			require.False(t, seen[s.ID()], "id %d reused", s.ID())
			seen[s.ID()] = true
			require.Greater(t, s.ID(), last)
		}
		for _, s := range srv.registry.Snapshot() {
			last = s.ID()
		}
		for _, c := range clients {
			c.send("BYE")
			c.expect("Bye!\r\n")
		}
		waitCount(t, srv, 0)
	}
	assert.Len(t, seen, 9)
}

func TestRegisteredSessionsAreNotClosed(t *testing.T) {
	srv := startServer(t, nil)
	for i := 0; i < 3; i++ {
		dial(t, srv)
	}
	waitCount(t, srv, 3)

	for _, s := range srv.registry.Snapshot() {
		assert.NotEqual(t, session.Closed, s.State())
	}
}

func TestByeRacingShutdown(t *testing.T) {
	srv := startServer(t, nil)
	c := dial(t, srv)
	waitCount(t, srv, 1)

	c.send("BYE")
	require.NoError(t, srv.Shutdown())
	assert.Zero(t, srv.Count())
	assert.Equal(t, int64(0), srv.Metrics().ActiveSessions(), "one close, one removal")
}

// ── Accept errors ────────────────────────────────────────────────────

// flakyListener fails the first n Accept calls.
type flakyListener struct {
	net.Listener
	fails atomic.Int32
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if l.fails.Add(-1) >= 0 {
		return nil, &net.OpError{Op: "accept", Net: "tcp", Err: syscall.EMFILE}
	}
	return l.Listener.Accept()
}

func TestAcceptErrorsAreRetried(t *testing.T) {
	srv := New(util.NewLogger(0), metrics.New())
	srv.listen = func(ctx context.Context, lc transport.ListenConfig) (net.Listener, error) {
		ln, err := transport.Listen(ctx, lc)
		if err != nil {
			return nil, err
		}
		fl := &flakyListener{Listener: ln}
		fl.fails.Store(3)
		return fl, nil
	}
	require.NoError(t, srv.Start(testConfig()))
	defer srv.Shutdown() //nolint:errcheck

	c := dial(t, srv)
	c.send("HELP")
	c.expect(helpReply + session.Prompt)
	assert.Equal(t, int64(3), srv.Metrics().AcceptErrors())
	assert.Equal(t, int64(3), srv.Metrics().ErrorCount())
}

// pipeListener hands out the server ends of in-memory pipes.
type pipeListener struct {
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func newPipeListener() *pipeListener {
	return &pipeListener{conns: make(chan net.Conn), done: make(chan struct{})}
}

func (l *pipeListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *pipeListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *pipeListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

// connect queues a new pipe and returns its client end.
func (l *pipeListener) connect(t *testing.T) net.Conn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	select {
	case l.conns <- server:
	case <-time.After(waitFor):
		t.Fatal("connection not accepted")
	}
	return client
}

func TestRejectDoesNotBlockAccept(t *testing.T) {
	pl := newPipeListener()
	srv := New(util.NewLogger(0), metrics.New())
	srv.listen = func(context.Context, transport.ListenConfig) (net.Listener, error) { return pl, nil }
	cfg := testConfig()
	cfg.MaxConnections = 1
	cfg.SendTimeout = 5 * time.Second
	require.NoError(t, srv.Start(cfg))
	t.Cleanup(func() { srv.Shutdown() }) //nolint:errcheck

	admitted := pl.connect(t)
	go io.Copy(io.Discard, admitted) //nolint:errcheck
	waitCount(t, srv, 1)

	// Neither rejected client reads its capacity notice.
	pl.connect(t)
	pl.connect(t)
	assert.Eventually(t, func() bool { return srv.Metrics().Rejected() == 2 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, srv.Count())
}
