package simplessh

import (
	"errors"
	"io/fs"

	"github.com/ruffel/simplessh/engine"
)

// maxSendChunk bounds a single upload write.
const maxSendChunk = 16 * 1024

// Send uploads data to destinationPath on the remote host, creating the file
// with the permission bits of mode. It returns the number of bytes actually
// accepted by the remote side, which on a KindWrite error reflects the
// partial transfer so callers can detect incomplete uploads.
//
// Errors are *Error values of kind KindChannelOpen or KindWrite. The
// finalization steps (end-of-stream, close, free) are not expected to fail
// and their errors are not surfaced.
func (s *Session) Send(mode fs.FileMode, data []byte, destinationPath string) (int64, error) {
	ch, err := retryValue(s, KindChannelOpen, func() (engine.UploadChannel, error) {
		return s.eng.OpenUpload(destinationPath, mode.Perm(), int64(len(data)))
	})
	if err != nil {
		return 0, err
	}

	defer ch.Free()

	var transferred int64

	for transferred < int64(len(data)) {
		end := transferred + maxSendChunk
		if end > int64(len(data)) {
			end = int64(len(data))
		}

		chunk := data[transferred:end]

		for len(chunk) > 0 {
			n, werr := ch.Write(chunk)

			// Bytes counted are accepted even when an error comes with
			// them; resubmitting them would duplicate data on the wire.
			chunk = chunk[n:]
			transferred += int64(n)

			if errors.Is(werr, engine.ErrAgain) {
				s.wait()

				continue
			}

			if werr != nil {
				return transferred, &Error{Kind: KindWrite, Err: werr}
			}
		}
	}

	s.finalize(ch.SendEOF)
	s.finalize(ch.Close)

	return transferred, nil
}

// finalize drives a teardown step past would-block signals, dropping any hard
// error: upload finalization failures are not part of the reported surface.
func (s *Session) finalize(op func() error) {
	for {
		err := op()
		if !errors.Is(err, engine.ErrAgain) {
			return
		}

		s.wait()
	}
}
