package simplessh

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ruffel/simplessh/engine"
	"github.com/ruffel/simplessh/engine/cryptossh"
)

// Session is one authenticated-or-authenticating connection to a remote host.
// It owns exactly one connected socket and one protocol engine handle; the
// two are torn down together by Close, engine handle first.
//
// A Session is not safe for concurrent use. Operations on it are strictly
// sequential: one channel operation must complete before the next begins.
type Session struct {
	fd          int
	eng         engine.Engine
	waitTimeout time.Duration
}

// Open connects to host:port within timeout, allocates a protocol engine and
// drives the handshake to completion. The returned session must be closed
// exactly once with Close, and must be authenticated before Exec or Send.
//
// Errors are *Error values: KindConnect when no address was reachable,
// KindInit when the engine could not be allocated, KindHandshake when the
// protocol handshake failed. On any failure after the socket exists, the
// partial session is torn down before the error is returned.
func Open(host string, port int, timeout time.Duration, opts ...Option) (*Session, error) {
	cfg := settings{
		factory:     cryptossh.NewFactory(),
		waitTimeout: defaultWaitTimeout,
	}

	for _, o := range opts {
		o(&cfg)
	}

	fd, err := dialTimeout(host, port, timeout)
	if err != nil {
		return nil, &Error{Kind: KindConnect, Err: err}
	}

	eng, err := cfg.factory.New()
	if err != nil {
		_ = unix.Close(fd)

		return nil, &Error{Kind: KindInit, Err: err}
	}

	// The engine's internal operation timeout is the only bound on retry
	// loops against a stalled peer.
	eng.SetTimeout(timeout)

	s := &Session{
		fd:          fd,
		eng:         eng,
		waitTimeout: cfg.waitTimeout,
	}

	if err := s.retry(KindHandshake, func() error { return s.eng.Handshake(s.fd) }); err != nil {
		_ = s.Close()

		return nil, err
	}

	return s, nil
}

// Close disconnects the protocol engine gracefully, frees it, and closes the
// socket, in that order. Call it exactly once per session returned by Open;
// closing twice is undefined.
func (s *Session) Close() error {
	for {
		err := s.eng.Disconnect("closed by simplessh")
		if !errors.Is(err, engine.ErrAgain) {
			break
		}

		s.wait()
	}

	s.eng.Free()

	return unix.Close(s.fd)
}

// AuthPassword authenticates the session with a username and password.
// All failure causes collapse to KindAuth; a failed attempt leaves the
// session open for another one.
func (s *Session) AuthPassword(user, password string) error {
	return s.retry(KindAuth, func() error {
		return s.eng.AuthPassword(user, password)
	})
}

// AuthKeyFile authenticates the session with a public/private key file pair.
// The passphrase may be empty for unencrypted private keys.
func (s *Session) AuthKeyFile(user, publicKeyPath, privateKeyPath, passphrase string) error {
	return s.retry(KindAuth, func() error {
		return s.eng.AuthKeyFile(user, publicKeyPath, privateKeyPath, passphrase)
	})
}

// AuthKeyMemory authenticates the session with raw in-memory key material.
func (s *Session) AuthKeyMemory(user string, publicKey, privateKey []byte, passphrase string) error {
	return s.retry(KindAuth, func() error {
		return s.eng.AuthKeyMemory(user, publicKey, privateKey, passphrase)
	})
}
