//go:build !unix

package transport

import (
	"context"
	"net"
)

// Listen opens a TCP listener.  Backlog is not configurable on this
// platform and is ignored.
func Listen(ctx context.Context, lc ListenConfig) (net.Listener, error) {
	var std net.ListenConfig
	return std.Listen(ctx, "tcp", lc.Address)
}
