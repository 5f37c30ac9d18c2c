//go:build unix

package transport

import (
	"context"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Listen opens a TCP listener.  With a positive Backlog the socket is
// created directly so the queue length reaches listen(2); the stdlib
// always uses the kernel's somaxconn.
func Listen(ctx context.Context, lc ListenConfig) (net.Listener, error) {
	if lc.Backlog <= 0 {
		var std net.ListenConfig
		return std.Listen(ctx, "tcp", lc.Address)
	}

	addr, err := net.ResolveTCPAddr("tcp", lc.Address)
	if err != nil {
		return nil, err
	}

	domain, fd, err := socket(addr)
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(fd)

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd) //nolint:errcheck
		return nil, os.NewSyscallError("setsockopt", err)
	}
	if err := unix.Bind(fd, sockaddr(domain, addr)); err != nil {
		unix.Close(fd) //nolint:errcheck
		return nil, os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, lc.Backlog); err != nil {
		unix.Close(fd) //nolint:errcheck
		return nil, os.NewSyscallError("listen", err)
	}

	f := os.NewFile(uintptr(fd), fmt.Sprintf("tcp:%s", lc.Address))
	defer f.Close()

	// FileListener dups the descriptor; f is closed above.
	return net.FileListener(f)
}

// socket opens a stream socket for addr.  A wildcard address gets a
// dual-stack IPv6 socket, as the stdlib listener does, unless the host
// has no IPv6.
func socket(addr *net.TCPAddr) (domain, fd int, err error) {
	wildcard := addr.IP == nil || addr.IP.IsUnspecified()
	switch {
	case wildcard:
		fd, err = unix.Socket(unix.AF_INET6, unix.SOCK_STREAM, unix.IPPROTO_TCP)
		if err == nil {
			if err = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
				unix.Close(fd) //nolint:errcheck
				return 0, -1, os.NewSyscallError("setsockopt", err)
			}
			return unix.AF_INET6, fd, nil
		}
		if err != unix.EAFNOSUPPORT {
			return 0, -1, os.NewSyscallError("socket", err)
		}
		domain = unix.AF_INET
	case addr.IP.To4() == nil:
		domain = unix.AF_INET6
	default:
		domain = unix.AF_INET
	}

	fd, err = unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return 0, -1, os.NewSyscallError("socket", err)
	}
	return domain, fd, nil
}

func sockaddr(domain int, addr *net.TCPAddr) unix.Sockaddr {
	wildcard := addr.IP == nil || addr.IP.IsUnspecified()
	if domain == unix.AF_INET6 {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		if !wildcard {
			copy(sa.Addr[:], addr.IP.To16())
		}
		return sa
	}
	sa := &unix.SockaddrInet4{Port: addr.Port}
	if ip4 := addr.IP.To4(); ip4 != nil && !wildcard {
		copy(sa.Addr[:], ip4)
	}
	return sa
}
