// Package capability defines what the line client does once it is
// connected to a chatd server.
package capability

import (
	"context"
	"io"
	"net"

	"chatd/util"
)

// Stream binds an established connection to the local terminal (or
// whatever stands in for it in tests).
type Stream struct {
	Conn   net.Conn
	Stdin  io.Reader
	Stdout io.Writer
	Logger *util.Logger
}

// NewStream creates a Stream bound to the given connection and I/O pair.
func NewStream(conn net.Conn, stdin io.Reader, stdout io.Writer, logger *util.Logger) *Stream {
	return &Stream{Conn: conn, Stdin: stdin, Stdout: stdout, Logger: logger}
}

// Capability handles one client connection.
type Capability interface {
	// Handle blocks until the connection is done or ctx is cancelled.
	Handle(ctx context.Context, s *Stream) error
}
