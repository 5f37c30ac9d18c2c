package util

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
)

// DefaultBufSize is the read buffer size for session I/O (4 KiB).  The
// protocol is line oriented, so reads are small.
const DefaultBufSize = 4 * 1024

// BidirectionalCopy shuffles data between a network connection and a
// local reader/writer pair (the line client's stdin/stdout) until one
// side reaches EOF or the context is cancelled.
func BidirectionalCopy(ctx context.Context, conn net.Conn, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	// server → local output
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := io.Copy(w, conn)
		errCh <- err
		cancel()
	}()

	// local input → server
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := io.Copy(conn, r)
		// Half-close so the server sees EOF on its read loop while we
		// keep draining whatever it still sends (farewell lines).
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.CloseWrite() //nolint:errcheck
		}
		errCh <- err
		// EOF on local input is not a reason to stop reading.
		if err != nil {
			cancel()
		}
	}()

	<-ctx.Done()
	conn.Close() // unblock any pending reads/writes
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil && !IsHarmless(err) {
			return err
		}
	}
	return nil
}

// IsHarmless returns true for errors that are expected when a peer goes
// away or a connection is closed during shutdown.
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
