package cryptossh

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/ruffel/simplessh/engine"
)

// stream buffers one output stream of a remote command. A pump goroutine
// fills it from the channel pipe; read drains it without ever blocking,
// reporting engine.ErrAgain while the pump is still running and io.EOF once
// the stream has ended and the buffer is empty.
type stream struct {
	mu  sync.Mutex
	buf bytes.Buffer
	eof bool
	err error

	// notify, when set, receives a token after every state change so a
	// blocked waiter can re-check the stream.
	notify chan struct{}
}

// fill copies r into the stream until end-of-stream or a hard error. Meant
// to run on its own goroutine.
func (s *stream) fill(r io.Reader) {
	chunk := make([]byte, 32*1024)

	for {
		n, err := r.Read(chunk)

		s.mu.Lock()

		if n > 0 {
			s.buf.Write(chunk[:n])
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				s.eof = true
			} else {
				s.err = err
			}

			s.mu.Unlock()
			s.signal()

			return
		}

		s.mu.Unlock()
		s.signal()
	}
}

// signal posts a progress token without blocking; a token already pending
// carries the same information.
func (s *stream) signal() {
	if s.notify == nil {
		return
	}

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *stream) read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buf.Len() > 0 {
		return s.buf.Read(p)
	}

	if s.err != nil {
		return 0, s.err
	}

	if s.eof {
		return 0, io.EOF
	}

	return 0, engine.ErrAgain
}
