package capability

import (
	"context"

	"chatd/util"
)

// Relay copies typed lines to the server and server output to the
// terminal.  Local EOF half-closes the connection so farewell lines
// still arrive.
type Relay struct{}

// Handle runs until the server closes the connection or ctx is
// cancelled.
func (r *Relay) Handle(ctx context.Context, s *Stream) error {
	s.Logger.Debug("relay: %s <-> stdio", util.RemoteAddr(s.Conn))
	return util.BidirectionalCopy(ctx, s.Conn, s.Stdin, s.Stdout)
}
