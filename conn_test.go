package simplessh

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestDialTimeout_Success(t *testing.T) {
	t.Parallel()

	host, port := listen(t)

	fd, err := dialTimeout(host, port, 2*time.Second)
	require.NoError(t, err)

	defer func() { _ = unix.Close(fd) }()

	require.GreaterOrEqual(t, fd, 0)

	// The connector reverts the socket to blocking mode before handing it
	// over.
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	require.NoError(t, err)
	assert.Zero(t, flags&unix.O_NONBLOCK)
}

func TestDialTimeout_ResolutionFailure(t *testing.T) {
	t.Parallel()

	_, err := dialTimeout("unreachable-host.invalid", 22, 2*time.Second)
	require.Error(t, err)
}

func TestDialTimeout_ConnectionRefused(t *testing.T) {
	t.Parallel()

	// Grab a port that is guaranteed closed by opening and releasing it.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	_, portStr, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	require.NoError(t, l.Close())

	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	_, err = dialTimeout("127.0.0.1", port, 2*time.Second)
	require.Error(t, err)
}

func TestOpen_UnreachableHostIsConnectKind(t *testing.T) {
	t.Parallel()

	start := time.Now()

	_, err := Open("unreachable-host.invalid", 22, 2*time.Second)

	require.Error(t, err)
	assert.True(t, IsKind(err, KindConnect))
	assert.Less(t, time.Since(start), 5*time.Second, "fails within roughly the timeout")
}
