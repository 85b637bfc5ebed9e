package cryptossh

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/sys/unix"

	"github.com/ruffel/simplessh/engine"
)

var (
	_ engine.Factory = (*Factory)(nil)
	_ engine.Engine  = (*Engine)(nil)
	_ engine.Waiter  = (*Engine)(nil)
)

// Factory allocates x/crypto/ssh backed engines. It tracks live handles so
// that every New is balanced by exactly one Free.
type Factory struct {
	hostKeyCheck ssh.HostKeyCallback
	live         atomic.Int64
}

// FactoryOption defines a functional option for NewFactory.
type FactoryOption func(*Factory)

// WithHostKeyCallback sets the host key verification callback for every
// engine the factory produces. Use DefaultKnownHosts for strict checking
// against ~/.ssh/known_hosts.
func WithHostKeyCallback(cb ssh.HostKeyCallback) FactoryOption {
	return func(f *Factory) {
		if cb != nil {
			f.hostKeyCheck = cb
		}
	}
}

// NewFactory creates an engine factory. Without options, host keys are not
// verified, matching the permissive behavior of classic libssh2 wrappers.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		hostKeyCheck: ssh.InsecureIgnoreHostKey(), //nolint:gosec // documented default, override via WithHostKeyCallback
	}

	for _, o := range opts {
		o(f)
	}

	return f
}

// New returns a fresh engine handle.
func (f *Factory) New() (engine.Engine, error) {
	f.live.Add(1)

	return &Engine{
		factory: f,
		notify:  make(chan struct{}, 1),
	}, nil
}

// Live returns the number of engine handles allocated and not yet freed.
func (f *Factory) Live() int64 {
	return f.live.Load()
}

// DefaultKnownHosts returns a host key callback that verifies host keys
// against the user's ~/.ssh/known_hosts file.
func DefaultKnownHosts() (ssh.HostKeyCallback, error) {
	path := filepath.Join(os.Getenv("HOME"), ".ssh", "known_hosts")

	return knownhosts.New(path)
}

// Engine is one protocol session handle over x/crypto/ssh.
type Engine struct {
	factory *Factory
	timeout time.Duration

	// notify receives a token whenever a command stream makes progress.
	// Buffered with capacity one: a pending token already carries the
	// signal, extra ones are dropped.
	notify chan struct{}

	conn   net.Conn
	addr   string
	client *ssh.Client
	sftp   *sftp.Client
	freed  bool
}

// SetTimeout sets the per-operation timeout applied to the key exchange and
// authentication.
func (e *Engine) SetTimeout(d time.Duration) {
	e.timeout = d
}

// Handshake adopts the connected socket descriptor. The engine works on a
// duplicate, so the caller keeps ownership of fd; both share one open socket,
// which is what readiness polling observes.
func (e *Engine) Handshake(fd int) error {
	if e.conn != nil {
		return nil
	}

	dup, err := unix.Dup(fd)
	if err != nil {
		return fmt.Errorf("dup socket: %w", err)
	}

	file := os.NewFile(uintptr(dup), "simplessh-socket")

	conn, err := net.FileConn(file)

	// net.FileConn duplicates again; the intermediate file is ours to close.
	_ = file.Close()

	if err != nil {
		return fmt.Errorf("adopt socket: %w", err)
	}

	e.conn = conn
	e.addr = conn.RemoteAddr().String()

	return nil
}

// BlockDirections reports Inbound for contract completeness. The
// orchestration layer prefers Wait for this engine: the ssh multiplexer
// consumes inbound data internally, so socket readiness says nothing once
// output sits in the stream buffers.
func (e *Engine) BlockDirections() engine.Direction {
	return engine.Inbound
}

// Wait blocks until a command stream makes progress (data, end-of-stream or
// a pump failure) or the ceiling expires. A stale token from progress made
// since the last wait returns immediately; the caller re-reads and finds the
// buffered data.
func (e *Engine) Wait(ceiling time.Duration) {
	timer := time.NewTimer(ceiling)
	defer timer.Stop()

	select {
	case <-e.notify:
	case <-timer.C:
	}
}

// AuthPassword authenticates with a username and password.
func (e *Engine) AuthPassword(user, password string) error {
	return e.auth(user, ssh.Password(password))
}

// AuthKeyFile authenticates with a private key file. The public key path is
// accepted for contract fidelity but unused: x/crypto/ssh derives the public
// key from the private one.
func (e *Engine) AuthKeyFile(user, _, privateKeyPath, passphrase string) error {
	pem, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return fmt.Errorf("read private key: %w", err)
	}

	signer, err := parseSigner(pem, passphrase)
	if err != nil {
		return err
	}

	return e.auth(user, ssh.PublicKeys(signer))
}

// AuthKeyMemory authenticates with raw in-memory key material. As with
// AuthKeyFile, the public key is derived from the private key.
func (e *Engine) AuthKeyMemory(user string, _, privateKey []byte, passphrase string) error {
	signer, err := parseSigner(privateKey, passphrase)
	if err != nil {
		return err
	}

	return e.auth(user, ssh.PublicKeys(signer))
}

func parseSigner(pem []byte, passphrase string) (ssh.Signer, error) {
	if passphrase == "" {
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}

		return signer, nil
	}

	signer, err := ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return signer, nil
}

func (e *Engine) auth(user string, method ssh.AuthMethod) error {
	if e.client != nil {
		return nil
	}

	if e.conn == nil {
		return errors.New("cryptossh: handshake not performed")
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{method},
		HostKeyCallback: e.factory.hostKeyCheck,
		Timeout:         e.timeout,
	}

	conn, chans, reqs, err := ssh.NewClientConn(e.conn, e.addr, cfg)
	if err != nil {
		return err
	}

	e.client = ssh.NewClient(conn, chans, reqs)

	return nil
}

// OpenExec opens a channel for one command execution.
func (e *Engine) OpenExec() (engine.ExecChannel, error) {
	if e.client == nil {
		return nil, errors.New("cryptossh: not authenticated")
	}

	sess, err := e.client.NewSession()
	if err != nil {
		return nil, err
	}

	return &execChannel{sess: sess, notify: e.notify}, nil
}

// OpenUpload opens a streaming upload channel via SFTP. The size hint is not
// needed by SFTP and is ignored.
func (e *Engine) OpenUpload(path string, mode fs.FileMode, _ int64) (engine.UploadChannel, error) {
	if e.client == nil {
		return nil, errors.New("cryptossh: not authenticated")
	}

	if e.sftp == nil {
		client, err := sftp.NewClient(e.client)
		if err != nil {
			return nil, fmt.Errorf("open sftp subsystem: %w", err)
		}

		e.sftp = client
	}

	file, err := e.sftp.Create(path)
	if err != nil {
		return nil, err
	}

	if err := e.sftp.Chmod(path, mode.Perm()); err != nil {
		_ = file.Close()

		return nil, err
	}

	return &uploadChannel{file: file}, nil
}

// Disconnect closes the authenticated transport. x/crypto/ssh sends its own
// disconnect message, so the reason string is not transmitted.
func (e *Engine) Disconnect(_ string) error {
	if e.sftp != nil {
		_ = e.sftp.Close()
		e.sftp = nil
	}

	if e.client != nil {
		err := e.client.Close()
		e.client = nil
		e.conn = nil // owned by the client once authenticated

		return err
	}

	return nil
}

// Free releases the engine handle and its duplicate of the socket.
func (e *Engine) Free() {
	if e.freed {
		return
	}

	e.freed = true

	_ = e.Disconnect("")

	if e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}

	e.factory.live.Add(-1)
}
