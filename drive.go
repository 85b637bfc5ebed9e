package simplessh

import (
	"errors"

	"github.com/ruffel/simplessh/engine"
)

// retry drives op to completion: while op reports would-block, wait for
// socket readiness in the direction the engine needs and re-issue it. The
// first hard failure is wrapped in an *Error of the given kind. This is the
// single retry pattern shared by handshake, authentication, channel
// lifecycle, reads, writes and close.
func (s *Session) retry(kind Kind, op func() error) error {
	for {
		err := op()
		if err == nil {
			return nil
		}

		if errors.Is(err, engine.ErrAgain) {
			s.wait()

			continue
		}

		return &Error{Kind: kind, Err: err}
	}
}

// retryValue is retry for operations that produce a value, e.g. opening a
// channel.
func retryValue[T any](s *Session, kind Kind, op func() (T, error)) (T, error) {
	for {
		v, err := op()
		if err == nil {
			return v, nil
		}

		if errors.Is(err, engine.ErrAgain) {
			s.wait()

			continue
		}

		var zero T

		return zero, &Error{Kind: kind, Err: err}
	}
}

// wait blocks (bounded) until the engine can plausibly make progress.
// Engines that track their own readiness are asked directly; socket-driven
// engines are polled in whichever direction they report blocked on.
func (s *Session) wait() {
	if w, ok := s.eng.(engine.Waiter); ok {
		w.Wait(s.waitTimeout)

		return
	}

	waitSocket(s.fd, s.eng.BlockDirections(), s.waitTimeout)
}
