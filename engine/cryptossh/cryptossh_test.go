package cryptossh

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ruffel/simplessh/engine"
)

func TestFactory_LiveAccounting(t *testing.T) {
	t.Parallel()

	factory := NewFactory()

	first, err := factory.New()
	require.NoError(t, err)

	second, err := factory.New()
	require.NoError(t, err)

	assert.Equal(t, int64(2), factory.Live())

	first.Free()
	assert.Equal(t, int64(1), factory.Live())

	// Free is safe to reach twice through Disconnect-then-Free teardown
	// ordering; the count stays balanced.
	first.Free()
	assert.Equal(t, int64(1), factory.Live())

	second.Free()
	assert.Equal(t, int64(0), factory.Live())
}

func TestEngine_HandshakeAdoptsSocket(t *testing.T) {
	t.Parallel()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})

	factory := NewFactory()

	eng, err := factory.New()
	require.NoError(t, err)

	defer eng.Free()

	eng.SetTimeout(time.Second)

	require.NoError(t, eng.Handshake(fds[0]))

	// Idempotent: the engine keeps its adopted connection.
	require.NoError(t, eng.Handshake(fds[0]))

	assert.Equal(t, engine.Inbound, eng.BlockDirections())
}

func TestEngine_WaitWakesOnStreamProgress(t *testing.T) {
	t.Parallel()

	factory := NewFactory()

	eng, err := factory.New()
	require.NoError(t, err)

	defer eng.Free()

	e, ok := eng.(*Engine)
	require.True(t, ok)

	var s stream
	s.notify = e.notify

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.fill(strings.NewReader("progress"))
	}()

	start := time.Now()
	e.Wait(5 * time.Second)

	assert.Less(t, time.Since(start), time.Second, "stream progress wakes the wait")
}

func TestEngine_WaitReturnsOnStaleToken(t *testing.T) {
	t.Parallel()

	factory := NewFactory()

	eng, err := factory.New()
	require.NoError(t, err)

	defer eng.Free()

	e := eng.(*Engine)

	// Progress made before the wait leaves a pending token; the wait must
	// not sit out its ceiling when data is already buffered.
	var s stream
	s.notify = e.notify
	s.fill(strings.NewReader("early"))

	start := time.Now()
	e.Wait(5 * time.Second)

	assert.Less(t, time.Since(start), time.Second)
}

func TestEngine_WaitCeiling(t *testing.T) {
	t.Parallel()

	factory := NewFactory()

	eng, err := factory.New()
	require.NoError(t, err)

	defer eng.Free()

	e := eng.(*Engine)

	start := time.Now()
	e.Wait(30 * time.Millisecond)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestEngine_OperationsRequireAuth(t *testing.T) {
	t.Parallel()

	factory := NewFactory()

	eng, err := factory.New()
	require.NoError(t, err)

	defer eng.Free()

	_, err = eng.OpenExec()
	require.Error(t, err)

	_, err = eng.OpenUpload("/tmp/x", 0o644, 1)
	require.Error(t, err)
}

func TestEngine_AuthRequiresHandshake(t *testing.T) {
	t.Parallel()

	factory := NewFactory()

	eng, err := factory.New()
	require.NoError(t, err)

	defer eng.Free()

	err = eng.AuthPassword("user", "password")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handshake")
}

func TestParseSigner_Garbage(t *testing.T) {
	t.Parallel()

	_, err := parseSigner([]byte("not a key"), "")
	require.Error(t, err)

	_, err = parseSigner([]byte("not a key"), "passphrase")
	require.Error(t, err)
}

func TestEngine_AuthKeyFileMissing(t *testing.T) {
	t.Parallel()

	factory := NewFactory()

	eng, err := factory.New()
	require.NoError(t, err)

	defer eng.Free()

	err = eng.AuthKeyFile("user", "", "/nonexistent/id_ed25519", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read private key")
}
