package cryptossh

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/ruffel/simplessh/engine"
)

var _ engine.ExecChannel = (*execChannel)(nil)

// execChannel carries one remote command over an ssh.Session. Output is
// pumped into streams by background goroutines so reads never block.
type execChannel struct {
	sess   *ssh.Session
	notify chan struct{}

	stdout stream
	stderr stream

	started    bool
	waited     bool
	waitErr    error
	exitStatus int
	exitSignal string
}

// Exec wires the output pipes, starts the remote command, and launches the
// stream pumps.
func (c *execChannel) Exec(command string) error {
	if c.started {
		return errors.New("cryptossh: command already started")
	}

	stdoutPipe, err := c.sess.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	stderrPipe, err := c.sess.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := c.sess.Start(command); err != nil {
		return err
	}

	c.started = true
	c.stdout.notify = c.notify
	c.stderr.notify = c.notify

	go c.stdout.fill(stdoutPipe)
	go c.stderr.fill(stderrPipe)

	return nil
}

func (c *execChannel) Read(p []byte) (int, error) {
	return c.stdout.read(p)
}

func (c *execChannel) ReadStderr(p []byte) (int, error) {
	return c.stderr.read(p)
}

// Close waits for the remote command and records its exit status and signal.
// A missing exit status is a close failure: the caller keeps its sentinel.
func (c *execChannel) Close() error {
	if c.waited {
		return c.waitErr
	}

	c.waited = true

	err := c.sess.Wait()

	var exitErr *ssh.ExitError

	switch {
	case err == nil:
		c.exitStatus = 0
	case errors.As(err, &exitErr):
		c.exitStatus = exitErr.ExitStatus()
		c.exitSignal = exitErr.Signal()
	default:
		c.waitErr = err

		return err
	}

	return nil
}

func (c *execChannel) ExitStatus() int {
	return c.exitStatus
}

func (c *execChannel) ExitSignal() string {
	return c.exitSignal
}

func (c *execChannel) Free() {
	_ = c.sess.Close()
}
