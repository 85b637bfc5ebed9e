package cryptossh

import (
	"github.com/pkg/sftp"

	"github.com/ruffel/simplessh/engine"
)

var _ engine.UploadChannel = (*uploadChannel)(nil)

// uploadChannel streams one file to the remote side over SFTP.
type uploadChannel struct {
	file   *sftp.File
	closed bool
}

func (u *uploadChannel) Write(p []byte) (int, error) {
	return u.file.Write(p)
}

// SendEOF is a no-op: SFTP has no separate end-of-payload frame, Close
// flushes and finalizes the remote file.
func (u *uploadChannel) SendEOF() error {
	return nil
}

func (u *uploadChannel) Close() error {
	if u.closed {
		return nil
	}

	u.closed = true

	return u.file.Close()
}

func (u *uploadChannel) Free() {
	_ = u.Close()
}
