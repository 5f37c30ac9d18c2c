// Package transport provides connection establishment for chatd: the
// server's listening socket and the line client's dialer.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound network connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer.
	// Stateless dialers return nil.
	Close() error
}

// ListenConfig describes the server's listening socket.
type ListenConfig struct {
	// Address is host:port.  An empty host binds all interfaces.
	Address string
	// Backlog is the pending-connection queue length passed to
	// listen(2).  Zero or negative uses the system default.
	Backlog int
}
