// Package engine defines the contract between the simplessh orchestration
// layer and an underlying SSH protocol engine.
//
// Engines operate in non-blocking mode: every operation may return ErrAgain
// instead of blocking the caller. The orchestration layer responds by waiting
// for socket readiness in the direction(s) reported by BlockDirections and
// re-issuing the same operation. Hard failures are any other non-nil error.
//
// End-of-stream on channel reads is io.EOF, and it is sticky: once a stream
// has ended, further reads keep returning io.EOF.
package engine

import (
	"errors"
	"io/fs"
	"time"
)

// ErrAgain is the would-block signal. It is never a failure: callers wait for
// socket readiness and retry the operation that returned it.
var ErrAgain = errors.New("engine: operation would block")

// Direction is a bitmask of socket directions an engine is blocked on.
type Direction int

const (
	// Inbound means the engine is waiting for the socket to become readable.
	Inbound Direction = 1 << iota
	// Outbound means the engine is waiting for the socket to become writable.
	Outbound
)

// Factory allocates protocol engines. Implementations own whatever
// process-wide library state the protocol stack needs and account for it per
// handle: every successful New must be balanced by exactly one Engine.Free.
type Factory interface {
	// New returns a fresh engine handle in non-blocking mode, not yet
	// associated with a socket.
	New() (Engine, error)
}

// Engine is one protocol session handle. An Engine is bound to a single
// socket by Handshake and is used by one goroutine at a time.
type Engine interface {
	// SetTimeout sets the engine's internal per-operation timeout. Zero
	// means no internal timeout, which makes retry loops against a stalled
	// peer unbounded.
	SetTimeout(d time.Duration)

	// Handshake performs the protocol handshake over the connected socket
	// descriptor. Retried on ErrAgain.
	Handshake(fd int) error

	// BlockDirections reports which socket direction(s) the engine is
	// currently blocked on. Only meaningful immediately after an operation
	// returned ErrAgain.
	BlockDirections() Direction

	// AuthPassword authenticates with a username and password.
	AuthPassword(user, password string) error

	// AuthKeyFile authenticates with a public/private key file pair. The
	// passphrase may be empty for unencrypted keys.
	AuthKeyFile(user, publicKeyPath, privateKeyPath, passphrase string) error

	// AuthKeyMemory authenticates with raw in-memory key material.
	AuthKeyMemory(user string, publicKey, privateKey []byte, passphrase string) error

	// OpenExec opens a channel for one command execution.
	OpenExec() (ExecChannel, error)

	// OpenUpload opens a streaming upload channel for a file of the given
	// size, created at path with the permission bits of mode.
	OpenUpload(path string, mode fs.FileMode, size int64) (UploadChannel, error)

	// Disconnect sends a graceful protocol-level disconnect with the given
	// reason. The engine handle must still be freed afterwards.
	Disconnect(reason string) error

	// Free releases the engine handle and its share of any process-wide
	// library state. The handle must not be used afterwards.
	Free()
}

// Waiter is an optional interface for engines whose readiness is decoupled
// from the raw socket, e.g. because a multiplexer consumes inbound data
// internally. When an engine implements it, the orchestration layer calls
// Wait after a would-block signal instead of polling the socket.
type Waiter interface {
	// Wait blocks until the engine may be able to make progress, or until
	// the ceiling expires. Spurious returns are allowed; callers re-issue
	// the operation and interpret the engine's answer.
	Wait(ceiling time.Duration)
}

// ExecChannel is a channel carrying one remote command execution.
type ExecChannel interface {
	// Exec requests execution of command on the channel.
	Exec(command string) error

	// Read reads from the command's standard output. Returns io.EOF at
	// end of stream and ErrAgain when no data is available yet.
	Read(p []byte) (int, error)

	// ReadStderr reads from the command's standard error, with the same
	// semantics as Read.
	ReadStderr(p []byte) (int, error)

	// Close closes the channel. Exit status and signal are only valid
	// after a clean close.
	Close() error

	// ExitStatus returns the remote command's exit status.
	ExitStatus() int

	// ExitSignal returns the name of the signal that terminated the remote
	// command, or the empty string if it exited normally.
	ExitSignal() string

	// Free releases the channel handle.
	Free()
}

// UploadChannel is a channel carrying one streaming file upload. Write may
// accept fewer bytes than offered; callers resubmit the remainder.
type UploadChannel interface {
	// Write accepts up to len(p) bytes. The returned count is valid even
	// when err is non-nil, including ErrAgain: bytes counted are accepted
	// and must not be resubmitted.
	Write(p []byte) (int, error)

	// SendEOF signals the end of the payload.
	SendEOF() error

	Close() error

	// Free releases the channel handle.
	Free()
}
