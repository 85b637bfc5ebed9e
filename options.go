package simplessh

import (
	"time"

	"github.com/ruffel/simplessh/engine"
)

// settings holds per-session configuration derived from options.
type settings struct {
	factory     engine.Factory
	waitTimeout time.Duration
}

// defaultWaitTimeout bounds a single readiness wait. It is a ceiling, not an
// abort: operations loop around it until the engine makes progress or fails.
const defaultWaitTimeout = 10 * time.Second

// Option defines a functional option for Open.
type Option func(*settings)

// WithEngineFactory sets the protocol engine factory backing the session.
// The default is the cryptossh engine.
func WithEngineFactory(f engine.Factory) Option {
	return func(s *settings) {
		s.factory = f
	}
}

// WithWaitTimeout sets the ceiling for a single socket readiness wait. Lower
// values make retry loops re-check the engine more often under a silent peer;
// they do not bound the total duration of an operation.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.waitTimeout = d
		}
	}
}
