// Package session owns one client connection: its read loop, its
// serialized writes and its single close.
//
// A session is Active until exactly one caller wins the transition to
// Closing.  That caller writes the farewell, runs the OnClose hook,
// closes the connection and marks the session Closed.  Every later
// close request is a no-op.
package session

import (
	"bytes"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	chaterr "chatd/internal/errors"
	"chatd/internal/metrics"
	"chatd/util"
)

// Handler processes one trimmed line.  It returns false when the
// session should stop reading.
type Handler func(s *Session, line string) bool

// Options tunes a Session.  The zero value is usable.
type Options struct {
	// SendTimeout bounds every write (0 = no deadline).
	SendTimeout time.Duration
	// MaxLineLength bounds every line, terminator excluded
	// (0 = DefaultMaxLineLength).
	MaxLineLength int
	Logger        *util.Logger
	Metrics       *metrics.Collector
	// OnClose runs once, from the closing goroutine, after the farewell
	// is written and before the connection is closed.
	OnClose func(*Session)
}

// Session is the server side of one client connection.
type Session struct {
	id     uint64
	conn   net.Conn
	remote string
	opts   Options
	logger *util.Logger

	created      time.Time
	lastActivity atomic.Int64 // nanoseconds since created
	state        atomic.Int32
	reason       atomic.Value // Reason

	writeMu sync.Mutex
	done    chan struct{}
}

// New wraps conn as session id.  The session is Active immediately;
// call Serve to start reading.
func New(id uint64, conn net.Conn, opts Options) *Session {
	if opts.MaxLineLength <= 0 {
		opts.MaxLineLength = DefaultMaxLineLength
	}
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(int(util.LogQuiet))
	}
	remote := util.RemoteAddr(conn)
	return &Session{
		id:      id,
		conn:    conn,
		remote:  remote,
		opts:    opts,
		logger:  opts.Logger.WithFields(map[string]interface{}{"session": id, "remote": remote}),
		created: time.Now(),
		done:    make(chan struct{}),
	}
}

// ── Accessors ────────────────────────────────────────────────────────

func (s *Session) ID() uint64         { return s.id }
func (s *Session) RemoteAddr() string { return s.remote }
func (s *Session) State() State       { return State(s.state.Load()) }
func (s *Session) Active() bool       { return s.State() == Active }

// Done is closed once the session reaches Closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// LastActivity is the time the last complete line arrived, or the
// creation time if none has.
func (s *Session) LastActivity() time.Time {
	return s.created.Add(time.Duration(s.lastActivity.Load()))
}

// Reason returns why the session ended, or "" while it is Active.
func (s *Session) Reason() Reason {
	r, _ := s.reason.Load().(Reason)
	return r
}

func (s *Session) touch() {
	s.lastActivity.Store(int64(time.Since(s.created)))
}

// ── Read loop ────────────────────────────────────────────────────────

// Serve greets the client and feeds each complete line to handle until
// the peer goes away, handle returns false, or another goroutine closes
// the session.  It always leaves the session Closed.
func (s *Session) Serve(handle Handler) {
	defer s.Close(ReasonPeerDisconnected)

	if err := s.Send(Greeting); err != nil {
		return
	}
	if err := s.Prompt(); err != nil {
		return
	}

	buf := util.GetBuf()
	defer util.PutBuf(buf)

	var pending []byte
	for {
		n, err := s.conn.Read(*buf)
		if n > 0 {
			s.opts.Metrics.BytesReceived(int64(n))
			pending = append(pending, (*buf)[:n]...)

			var ok bool
			if pending, ok = s.drain(pending, handle); !ok {
				return
			}
			if lineLen(pending) > s.opts.MaxLineLength {
				s.rejectLine()
				return
			}
		}
		if err != nil {
			if s.Active() && !util.IsHarmless(err) {
				s.logger.Verbose("%v", chaterr.PeerIO("read", s.remote, err))
			}
			return
		}
	}
}

// drain dispatches every complete line in pending and returns the
// unconsumed tail.  ok is false once the session should stop reading.
func (s *Session) drain(pending []byte, handle Handler) (rest []byte, ok bool) {
	for {
		i := bytes.IndexByte(pending, '\n')
		if i < 0 {
			return pending, true
		}
		if lineLen(pending[:i]) > s.opts.MaxLineLength {
			s.rejectLine()
			return nil, false
		}
		line := strings.TrimSpace(string(pending[:i]))
		pending = pending[i+1:]

		s.touch()
		if !handle(s, line) || !s.Active() {
			return nil, false
		}
		if err := s.Prompt(); err != nil {
			return nil, false
		}
	}
}

// lineLen is the length of b without a trailing carriage return.
func lineLen(b []byte) int {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return n - 1
	}
	return len(b)
}

// rejectLine ends the session for a line over MaxLineLength, whether
// it arrived whole or is still pending.
func (s *Session) rejectLine() {
	s.logger.Warn("line exceeds %d bytes", s.opts.MaxLineLength)
	s.Close(ReasonLineTooLong, NoticeLineTooLong)
}

// ── Writes ───────────────────────────────────────────────────────────

// Send writes each line followed by CRLF as a single write.  It fails
// with ErrSessionClosed once the session has left Active, including
// when it leaves Active while the write is in flight.
func (s *Session) Send(lines ...string) error {
	return s.writeActive(joinLines(lines))
}

// Prompt writes the input prompt, which has no line terminator.
func (s *Session) Prompt() error {
	return s.writeActive(Prompt)
}

func (s *Session) writeActive(p string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.Active() {
		return chaterr.ErrSessionClosed
	}
	err := s.writeLocked(p)
	if err != nil && !s.Active() {
		return chaterr.ErrSessionClosed
	}
	return err
}

// writeLocked writes p under the send deadline.  writeMu must be held.
func (s *Session) writeLocked(p string) error {
	if s.opts.SendTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.opts.SendTimeout)) //nolint:errcheck
	}
	n, err := io.WriteString(s.conn, p)
	s.opts.Metrics.BytesSent(int64(n))
	if err != nil {
		return chaterr.PeerIO("write", s.remote, err)
	}
	return nil
}

func joinLines(lines []string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\r\n")
	}
	return b.String()
}

// ── Close ────────────────────────────────────────────────────────────

// Close ends the session with reason, writing farewell first.  It
// reports whether this call performed the close.
func (s *Session) Close(reason Reason, farewell ...string) bool {
	if !s.state.CompareAndSwap(int32(Active), int32(Closing)) {
		return false
	}
	s.reason.Store(reason)

	if len(farewell) > 0 {
		s.writeMu.Lock()
		err := s.writeLocked(joinLines(farewell))
		s.writeMu.Unlock()
		if err != nil {
			s.logger.Debug("farewell not delivered: %v", err)
		}
	}
	if s.opts.OnClose != nil {
		s.opts.OnClose(s)
	}
	if err := s.conn.Close(); err != nil && !util.IsHarmless(err) {
		s.logger.Debug("close: %v", err)
	}

	s.state.Store(int32(Closed))
	close(s.done)
	s.logger.Info("session closed (%s)", reason)
	return true
}
