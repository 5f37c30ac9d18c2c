package transport

import (
	"context"
	"net"
	"time"
)

// TCPDialer opens the line client's connection to a server.
type TCPDialer struct {
	Timeout time.Duration // 0 = no timeout beyond ctx
}

// Dial connects to address over TCP.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	return dialer.DialContext(ctx, network, address)
}

// Close is a no-op; TCPDialer holds no resources.
func (d *TCPDialer) Close() error { return nil }
