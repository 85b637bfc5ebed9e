package simplessh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// dialTimeout resolves host and connects to the first candidate address that
// becomes ready within timeout, returning a connected socket descriptor in
// blocking mode. Sockets opened for failed candidates are closed before the
// next candidate is tried.
func dialTimeout(host string, port int, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return -1, fmt.Errorf("resolve %q: %w", host, err)
	}

	var lastErr error

	for _, addr := range addrs {
		fd, err := connectCandidate(addr.IP, port, timeout)
		if err != nil {
			lastErr = err

			continue
		}

		return fd, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no addresses for %q", host)
	}

	return -1, lastErr
}

// connectCandidate performs a non-blocking connect to one address and waits
// up to timeout for the socket to become writable. On success the socket is
// reverted to blocking mode.
func connectCandidate(ip net.IP, port int, timeout time.Duration) (int, error) {
	family, sa, err := sockaddrFor(ip, port)
	if err != nil {
		return -1, err
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}

	if err := unix.Connect(fd, sa); err != nil && !errors.Is(err, unix.EINPROGRESS) {
		_ = unix.Close(fd)

		return -1, fmt.Errorf("connect %s: %w", ip, err)
	}

	if err := waitWritable(fd, timeout); err != nil {
		_ = unix.Close(fd)

		return -1, fmt.Errorf("connect %s: %w", ip, err)
	}

	// The connect phase is over; the protocol engine expects a blocking
	// descriptor and manages non-blocking behavior itself.
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err == nil {
		_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags&^unix.O_NONBLOCK)
	}

	if err != nil {
		_ = unix.Close(fd)

		return -1, fmt.Errorf("restore blocking mode: %w", err)
	}

	return fd, nil
}

// waitWritable polls fd for writability until the deadline, then verifies the
// asynchronous connect actually succeeded via SO_ERROR.
func waitWritable(fd int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return unix.ETIMEDOUT
		}

		pfds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}

		n, err := unix.Poll(pfds, int(remaining.Milliseconds())+1)
		if errors.Is(err, unix.EINTR) {
			continue
		}

		if err != nil {
			return err
		}

		if n == 0 {
			return unix.ETIMEDOUT
		}

		if pfds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			if err := socketError(fd); err != nil {
				return err
			}

			return unix.ECONNRESET
		}

		if pfds[0].Revents&unix.POLLOUT != 0 {
			if err := socketError(fd); err != nil {
				return err
			}

			return nil
		}
	}
}

// socketError reads the pending error from a socket after an asynchronous
// connect completed.
func socketError(fd int) error {
	soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}

	if soerr != 0 {
		return unix.Errno(soerr)
	}

	return nil
}

func sockaddrFor(ip net.IP, port int) (int, unix.Sockaddr, error) {
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)

		return unix.AF_INET, sa, nil
	}

	if ip16 := ip.To16(); ip16 != nil {
		sa := &unix.SockaddrInet6{Port: port}
		copy(sa.Addr[:], ip16)

		return unix.AF_INET6, sa, nil
	}

	return 0, nil, fmt.Errorf("unsupported address %s", ip)
}
