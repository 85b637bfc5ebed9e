package simplessh

const (
	// initialCapture is the starting capacity of an output capture buffer.
	initialCapture = 128
	// growThreshold triggers growth when remaining headroom drops below it,
	// so the next read always has a usefully sized window.
	growThreshold = 1024
	// maxGrowStep caps a single growth step; doubling never adds more than
	// this many bytes at once.
	maxGrowStep = 64 * 1024
)

// captureBuffer accumulates one output stream with amortized-doubling growth.
// It is used once per stream per command and never shared.
type captureBuffer struct {
	buf []byte
	n   int
}

func newCaptureBuffer() *captureBuffer {
	return &captureBuffer{buf: make([]byte, initialCapture)}
}

// window returns the writable remainder of the buffer. It is never empty.
func (b *captureBuffer) window() []byte {
	return b.buf[b.n:]
}

// advance records n bytes written into the window and grows the buffer once
// if headroom fell below growThreshold.
func (b *captureBuffer) advance(n int) {
	if n <= 0 {
		return
	}

	b.n += n

	if len(b.buf)-b.n < growThreshold {
		next := len(b.buf) * 2
		if next > len(b.buf)+maxGrowStep {
			next = len(b.buf) + maxGrowStep
		}

		grown := make([]byte, next)
		copy(grown, b.buf[:b.n])
		b.buf = grown
	}
}

func (b *captureBuffer) len() int {
	return b.n
}

// bytes returns the captured content shrunk to its exact length.
func (b *captureBuffer) bytes() []byte {
	out := make([]byte, b.n)
	copy(out, b.buf[:b.n])

	return out
}
