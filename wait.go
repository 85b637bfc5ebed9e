package simplessh

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ruffel/simplessh/engine"
)

// waitSocket blocks until the socket is ready in the direction(s) the engine
// is blocked on, or until the ceiling expires. It is best-effort: returning
// does not guarantee readiness, callers re-issue the operation and interpret
// the engine's answer.
func waitSocket(fd int, dirs engine.Direction, ceiling time.Duration) {
	var events int16

	if dirs&engine.Inbound != 0 {
		events |= unix.POLLIN
	}

	if dirs&engine.Outbound != 0 {
		events |= unix.POLLOUT
	}

	// An engine that reports no blocked direction still gets a bounded poll
	// on both, so the retry loop never degenerates into a dead sleep.
	if events == 0 {
		events = unix.POLLIN | unix.POLLOUT
	}

	deadline := time.Now().Add(ceiling)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}

		pfds := []unix.PollFd{{Fd: int32(fd), Events: events}}

		_, err := unix.Poll(pfds, int(remaining.Milliseconds())+1)
		if errors.Is(err, unix.EINTR) {
			continue
		}

		return
	}
}
