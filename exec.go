package simplessh

import (
	"errors"
	"io"

	"github.com/ruffel/simplessh/engine"
)

// Exec runs command on the remote host and captures its complete output.
//
// Stdout and stderr are drained in the same loop rather than one after the
// other: draining one stream to completion while the peer is blocked writing
// to the other can deadlock the remote process. The loop ends only when both
// streams have reported end-of-stream.
//
// Errors are *Error values of kind KindChannelOpen, KindChannelExec or
// KindRead. A channel that fails to close cleanly is not an error: the
// Result is still returned, with ExitCode left at ExitCodeUnknown and no
// exit signal.
func (s *Session) Exec(command string) (*Result, error) {
	ch, err := retryValue(s, KindChannelOpen, s.eng.OpenExec)
	if err != nil {
		return nil, err
	}

	defer ch.Free()

	if err := s.retry(KindChannelExec, func() error { return ch.Exec(command) }); err != nil {
		return nil, err
	}

	stdout := newCaptureBuffer()
	stderr := newCaptureBuffer()

	for {
		n, outErr := ch.Read(stdout.window())
		stdout.advance(n)

		m, errErr := ch.ReadStderr(stderr.window())
		stderr.advance(m)

		if errors.Is(outErr, io.EOF) && errors.Is(errErr, io.EOF) {
			break
		}

		if hardReadErr := firstHardError(outErr, errErr); hardReadErr != nil {
			return nil, &Error{Kind: KindRead, Err: hardReadErr}
		}

		// Neither stream moved; block until the socket is ready instead of
		// spinning on would-block.
		if n == 0 && m == 0 {
			s.wait()
		}
	}

	res := &Result{
		Stdout:   stdout.bytes(),
		Stderr:   stderr.bytes(),
		ExitCode: ExitCodeUnknown,
	}

	var closeErr error

	for {
		closeErr = ch.Close()
		if !errors.Is(closeErr, engine.ErrAgain) {
			break
		}

		s.wait()
	}

	// Exit status and signal are only trustworthy after a clean close;
	// otherwise the sentinel stands.
	if closeErr == nil {
		res.ExitCode = ch.ExitStatus()
		res.ExitSignal = ch.ExitSignal()
	}

	return res, nil
}

// firstHardError returns the first error that is neither end-of-stream nor
// the would-block signal.
func firstHardError(errs ...error) error {
	for _, err := range errs {
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, engine.ErrAgain) {
			continue
		}

		return err
	}

	return nil
}
