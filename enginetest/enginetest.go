// Package enginetest provides a scripted, in-memory implementation of the
// simplessh engine contract for exercising the orchestration layer without a
// network peer.
//
// Every fallible operation consumes a queue of scripted outcomes, so tests
// can inject would-block signals (engine.ErrAgain), hard failures, partial
// writes and interleaved output chunks at any step. Exhausted queues default
// to success, which keeps simple scripts short.
package enginetest

import (
	"errors"
	"io"
	"io/fs"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ruffel/simplessh/engine"
)

var (
	_ engine.Factory = (*Factory)(nil)
	_ engine.Engine  = (*Engine)(nil)
)

// Factory hands out a pre-built scripted engine.
type Factory struct {
	Engine *Engine
	Err    error // returned by New instead of the engine

	live atomic.Int64
}

// NewFactory creates a factory serving the given engine.
func NewFactory(e *Engine) *Factory {
	return &Factory{Engine: e}
}

// New returns the scripted engine, or the configured error.
func (f *Factory) New() (engine.Engine, error) {
	if f.Err != nil {
		return nil, f.Err
	}

	f.live.Add(1)
	f.Engine.factory = f

	return f.Engine, nil
}

// Live returns the number of engines allocated and not yet freed.
func (f *Factory) Live() int64 {
	return f.live.Load()
}

// ReadStep scripts one Read or ReadStderr call: either Data is delivered or
// Err is returned. An exhausted stream returns io.EOF forever.
type ReadStep struct {
	Data []byte
	Err  error
}

// WriteStep scripts one Write call: N bytes are accepted and Err is
// returned. Both may be set at once to model partial acceptance alongside a
// would-block signal or a failure.
type WriteStep struct {
	N   int
	Err error
}

// ExecScript scripts one command execution channel.
type ExecScript struct {
	OpenErrs   []error    // consumed by successive OpenExec calls until one is nil
	ExecErrs   []error    // consumed by successive Exec calls until one is nil
	Stdout     []ReadStep // then io.EOF
	Stderr     []ReadStep // then io.EOF
	CloseErrs  []error    // consumed by successive Close calls until one is nil
	ExitStatus int
	ExitSignal string

	// Recorded for assertions.
	Command string
	Closed  bool
	Freed   bool
}

// UploadScript scripts one upload channel.
type UploadScript struct {
	OpenErrs   []error
	WriteSteps []WriteStep // then every write is fully accepted
	EOFErrs    []error
	CloseErrs  []error

	// Recorded for assertions.
	Path    string
	Mode    fs.FileMode
	Size    int64
	Written []byte
	GotEOF  bool
	Closed  bool
	Freed   bool
}

// Engine is a scripted protocol engine. Configure the exported queues before
// use; the recorded fields are filled in as the orchestration layer drives
// it.
type Engine struct {
	mu sync.Mutex

	HandshakeErrs []error
	AuthErrs      []error
	Dirs          engine.Direction // reported by BlockDirections
	Execs         []*ExecScript    // consumed per successful OpenExec
	Uploads       []*UploadScript  // consumed per successful OpenUpload

	// Recorded for assertions.
	Timeout     time.Duration
	HandshakeFD int
	AuthUsers   []string
	Disconnects []string
	Freed       bool

	factory *Factory
}

// SetTimeout records the engine operation timeout.
func (e *Engine) SetTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Timeout = d
}

// Handshake consumes the handshake queue.
func (e *Engine) Handshake(fd int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.HandshakeFD = fd

	return pop(&e.HandshakeErrs)
}

// BlockDirections reports the configured directions.
func (e *Engine) BlockDirections() engine.Direction {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.Dirs
}

// AuthPassword consumes the auth queue.
func (e *Engine) AuthPassword(user, _ string) error {
	return e.auth(user)
}

// AuthKeyFile consumes the auth queue.
func (e *Engine) AuthKeyFile(user, _, _, _ string) error {
	return e.auth(user)
}

// AuthKeyMemory consumes the auth queue.
func (e *Engine) AuthKeyMemory(user string, _, _ []byte, _ string) error {
	return e.auth(user)
}

func (e *Engine) auth(user string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := pop(&e.AuthErrs)

	// Would-block retries are not attempts; everything else is.
	if !errors.Is(err, engine.ErrAgain) {
		e.AuthUsers = append(e.AuthUsers, user)
	}

	return err
}

// OpenExec consumes the head exec script's open queue, then hands out the
// script as a channel.
func (e *Engine) OpenExec() (engine.ExecChannel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.Execs) == 0 {
		return nil, errors.New("enginetest: no exec script")
	}

	script := e.Execs[0]

	if err := pop(&script.OpenErrs); err != nil {
		return nil, err
	}

	e.Execs = e.Execs[1:]

	return &execChannel{script: script}, nil
}

// OpenUpload consumes the head upload script's open queue, then hands out the
// script as a channel.
func (e *Engine) OpenUpload(path string, mode fs.FileMode, size int64) (engine.UploadChannel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.Uploads) == 0 {
		return nil, errors.New("enginetest: no upload script")
	}

	script := e.Uploads[0]

	if err := pop(&script.OpenErrs); err != nil {
		return nil, err
	}

	e.Uploads = e.Uploads[1:]
	script.Path = path
	script.Mode = mode
	script.Size = size

	return &uploadChannel{script: script}, nil
}

// Disconnect records the reason.
func (e *Engine) Disconnect(reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Disconnects = append(e.Disconnects, reason)

	return nil
}

// Free records the release and balances the factory's live count.
func (e *Engine) Free() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Freed = true

	if e.factory != nil {
		e.factory.live.Add(-1)
	}
}

// pop removes and returns the head of an error queue; an empty queue means
// success.
func pop(q *[]error) error {
	if len(*q) == 0 {
		return nil
	}

	err := (*q)[0]
	*q = (*q)[1:]

	return err
}

type execChannel struct {
	mu     sync.Mutex
	script *ExecScript
}

var _ engine.ExecChannel = (*execChannel)(nil)

func (c *execChannel) Exec(command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := pop(&c.script.ExecErrs); err != nil {
		return err
	}

	c.script.Command = command

	return nil
}

func (c *execChannel) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return readStep(&c.script.Stdout, p)
}

func (c *execChannel) ReadStderr(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return readStep(&c.script.Stderr, p)
}

func (c *execChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := pop(&c.script.CloseErrs); err != nil {
		return err
	}

	c.script.Closed = true

	return nil
}

func (c *execChannel) ExitStatus() int {
	return c.script.ExitStatus
}

func (c *execChannel) ExitSignal() string {
	return c.script.ExitSignal
}

func (c *execChannel) Free() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.script.Freed = true
}

// readStep delivers the next scripted step, splitting chunks larger than the
// caller's buffer.
func readStep(steps *[]ReadStep, p []byte) (int, error) {
	if len(*steps) == 0 {
		return 0, io.EOF
	}

	step := (*steps)[0]

	if step.Err != nil {
		*steps = (*steps)[1:]

		return 0, step.Err
	}

	n := copy(p, step.Data)

	if n < len(step.Data) {
		(*steps)[0].Data = step.Data[n:]
	} else {
		*steps = (*steps)[1:]
	}

	return n, nil
}

type uploadChannel struct {
	mu     sync.Mutex
	script *UploadScript
}

var _ engine.UploadChannel = (*uploadChannel)(nil)

func (u *uploadChannel) Write(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if len(u.script.WriteSteps) == 0 {
		u.script.Written = append(u.script.Written, p...)

		return len(p), nil
	}

	step := u.script.WriteSteps[0]
	u.script.WriteSteps = u.script.WriteSteps[1:]

	n := step.N
	if n > len(p) {
		n = len(p)
	}

	u.script.Written = append(u.script.Written, p[:n]...)

	return n, step.Err
}

func (u *uploadChannel) SendEOF() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := pop(&u.script.EOFErrs); err != nil {
		return err
	}

	u.script.GotEOF = true

	return nil
}

func (u *uploadChannel) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := pop(&u.script.CloseErrs); err != nil {
		return err
	}

	u.script.Closed = true

	return nil
}

func (u *uploadChannel) Free() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.script.Freed = true
}
