package simplessh

import (
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruffel/simplessh/engine"
	"github.com/ruffel/simplessh/enginetest"
)

// listen opens a loopback listener that stands in for a remote host. The TCP
// handshake completes against the backlog, so no accept loop is needed.
func listen(t *testing.T) (string, int) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() { _ = l.Close() })

	host, portStr, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)

	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return host, port
}

// openScripted opens a session against a loopback socket backed by the given
// scripted engine. The socket is always writable, so Outbound keeps
// would-block retries fast.
func openScripted(t *testing.T, eng *enginetest.Engine) (*Session, *enginetest.Factory) {
	t.Helper()

	if eng.Dirs == 0 {
		eng.Dirs = engine.Outbound
	}

	host, port := listen(t)
	factory := enginetest.NewFactory(eng)

	sess, err := Open(host, port, 2*time.Second,
		WithEngineFactory(factory),
		WithWaitTimeout(50*time.Millisecond))
	require.NoError(t, err)

	return sess, factory
}

// waiterEngine reports its own readiness instead of relying on socket polls.
type waiterEngine struct {
	*enginetest.Engine

	waits int
}

func (w *waiterEngine) Wait(time.Duration) {
	w.waits++
}

type waiterFactory struct {
	eng *waiterEngine
}

func (f *waiterFactory) New() (engine.Engine, error) {
	return f.eng, nil
}

var (
	_ engine.Waiter  = (*waiterEngine)(nil)
	_ engine.Factory = (*waiterFactory)(nil)
)

func TestWait_PrefersEngineOwnedWaiter(t *testing.T) {
	t.Parallel()

	eng := &waiterEngine{
		Engine: &enginetest.Engine{
			HandshakeErrs: []error{engine.ErrAgain, engine.ErrAgain, nil},
		},
	}

	host, port := listen(t)

	sess, err := Open(host, port, 2*time.Second,
		WithEngineFactory(&waiterFactory{eng: eng}),
		WithWaitTimeout(50*time.Millisecond))
	require.NoError(t, err)

	defer func() { _ = sess.Close() }()

	// Both would-block retries went through the engine's own wait; the
	// socket was never polled.
	assert.Equal(t, 2, eng.waits)
}

func TestOpen_RetriesHandshakeOnWouldBlock(t *testing.T) {
	t.Parallel()

	eng := &enginetest.Engine{
		HandshakeErrs: []error{engine.ErrAgain, engine.ErrAgain, nil},
	}

	sess, factory := openScripted(t, eng)

	assert.Equal(t, 2*time.Second, eng.Timeout)
	assert.GreaterOrEqual(t, eng.HandshakeFD, 0)
	assert.Equal(t, int64(1), factory.Live())

	require.NoError(t, sess.Close())

	assert.True(t, eng.Freed)
	assert.Len(t, eng.Disconnects, 1)
	assert.Equal(t, int64(0), factory.Live())
}

func TestOpen_HandshakeFailureTearsDown(t *testing.T) {
	t.Parallel()

	cause := errors.New("kex mismatch")
	eng := &enginetest.Engine{
		Dirs:          engine.Outbound,
		HandshakeErrs: []error{engine.ErrAgain, cause},
	}

	host, port := listen(t)
	factory := enginetest.NewFactory(eng)

	_, err := Open(host, port, 2*time.Second,
		WithEngineFactory(factory),
		WithWaitTimeout(50*time.Millisecond))

	require.Error(t, err)
	assert.True(t, IsKind(err, KindHandshake))
	require.ErrorIs(t, err, cause)

	// The partial session is torn down: engine handle freed before the
	// socket, nothing leaked.
	assert.True(t, eng.Freed)
	assert.Equal(t, int64(0), factory.Live())
}

func TestOpen_EngineAllocationFailure(t *testing.T) {
	t.Parallel()

	host, port := listen(t)

	factory := enginetest.NewFactory(&enginetest.Engine{})
	factory.Err = errors.New("library init failed")

	_, err := Open(host, port, 2*time.Second, WithEngineFactory(factory))

	require.Error(t, err)
	assert.True(t, IsKind(err, KindInit))
}

func TestAuthPassword_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	eng := &enginetest.Engine{
		AuthErrs: []error{engine.ErrAgain, nil},
	}

	sess, _ := openScripted(t, eng)
	defer func() { _ = sess.Close() }()

	require.NoError(t, sess.AuthPassword("deploy", "secret"))
	assert.Equal(t, []string{"deploy"}, eng.AuthUsers)
}

func TestAuth_FailureLeavesSessionUsable(t *testing.T) {
	t.Parallel()

	eng := &enginetest.Engine{
		AuthErrs: []error{errors.New("denied"), nil},
	}

	sess, factory := openScripted(t, eng)
	defer func() { _ = sess.Close() }()

	err := sess.AuthPassword("deploy", "wrong")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuth))

	// The session is still open; a second attempt can succeed.
	require.NoError(t, sess.AuthPassword("deploy", "right"))
	assert.Equal(t, int64(1), factory.Live())
}

func TestAuth_AllVariantsCollapseToOneKind(t *testing.T) {
	t.Parallel()

	attempts := []struct {
		name string
		run  func(s *Session) error
	}{
		{"password", func(s *Session) error { return s.AuthPassword("u", "p") }},
		{"key file", func(s *Session) error { return s.AuthKeyFile("u", "/pub", "/priv", "") }},
		{"key memory", func(s *Session) error { return s.AuthKeyMemory("u", nil, []byte("pem"), "pw") }},
	}

	for _, tt := range attempts {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			eng := &enginetest.Engine{
				AuthErrs: []error{engine.ErrAgain, errors.New("rejected")},
			}

			sess, _ := openScripted(t, eng)
			defer func() { _ = sess.Close() }()

			err := tt.run(sess)
			require.Error(t, err)
			assert.True(t, IsKind(err, KindAuth))
		})
	}
}
