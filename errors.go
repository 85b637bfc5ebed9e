package simplessh

import (
	"errors"
	"fmt"
)

// Kind classifies the failures surfaced by this package. Every error returned
// by Open, the Auth methods, Exec and Send is an *Error carrying exactly one
// Kind.
type Kind int

const (
	// KindConnect: no candidate address could be connected within the timeout,
	// or resolution itself failed.
	KindConnect Kind = iota + 1
	// KindInit: the protocol engine could not be allocated.
	KindInit
	// KindHandshake: the protocol handshake failed.
	KindHandshake
	// KindAuth: authentication was rejected. The cause is deliberately opaque;
	// wrong credentials, malformed keys and protocol-level rejection all
	// collapse to this kind.
	KindAuth
	// KindChannelOpen: a command or upload channel could not be opened.
	KindChannelOpen
	// KindChannelExec: the remote side refused to execute the command.
	KindChannelExec
	// KindRead: a hard error occurred while draining command output.
	KindRead
	// KindWrite: a hard error occurred while writing upload data.
	KindWrite
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "CONNECT"
	case KindInit:
		return "INIT"
	case KindHandshake:
		return "HANDSHAKE"
	case KindAuth:
		return "AUTHENTICATION"
	case KindChannelOpen:
		return "CHANNEL_OPEN"
	case KindChannelExec:
		return "CHANNEL_EXEC"
	case KindRead:
		return "READ"
	case KindWrite:
		return "WRITE"
	default:
		return "UNKNOWN"
	}
}

// Error is the error side of every fallible operation in this package.
// Would-block signals from the engine are handled internally and never
// surface here.
type Error struct {
	Kind Kind
	Err  error // underlying engine or system error, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("simplessh: %s", e.Kind)
	}

	return fmt.Sprintf("simplessh: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	return e.Kind == kind
}
