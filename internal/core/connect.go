package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"chatd/internal/capability"
	chaterr "chatd/internal/errors"
	"chatd/internal/retry"
	"chatd/internal/transport"
	"chatd/util"
)

// ConnectMode dials a chatd server and relays the terminal to it.
type ConnectMode struct {
	Dialer     transport.Dialer
	Capability capability.Capability
	Backoff    *retry.Backoff // nil = a single attempt
	Network    string
	Address    string
	Logger     *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run dials the server, retrying per Backoff, and hands the connection
// to the capability.  The transport is closed when Run returns.
func (m *ConnectMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	bo := m.Backoff
	if bo == nil {
		bo = &retry.Backoff{MaxAttempts: 1}
	}
	bo.OnRetry = func(attempt int, err error, wait time.Duration) {
		m.Logger.Verbose("attempt %d: %v, retrying in %s", attempt, err, wait.Truncate(time.Millisecond))
	}

	m.Logger.Verbose("connecting to %s (%s)", m.Address, m.Network)

	var s *capability.Stream
	err := bo.Do(ctx, func(int) error {
		conn, err := m.Dialer.Dial(ctx, m.Network, m.Address)
		if err != nil {
			return chaterr.Wrap("dial", m.Address, err)
		}
		s = capability.NewStream(conn, m.stdin(), m.stdout(), m.Logger)
		return nil
	})
	if err != nil {
		return fmt.Errorf("connect to %s: %w", m.Address, err)
	}
	defer s.Conn.Close()

	m.Logger.Verbose("connected to %s", s.Conn.RemoteAddr())
	if m.Stdin == nil && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "connected; type HELP for commands, BYE to leave")
	}

	return m.Capability.Handle(ctx, s)
}
