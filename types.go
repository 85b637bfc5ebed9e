package simplessh

// ExitCodeUnknown is the exit code reported when the remote command's status
// could not be determined, i.e. the channel failed to close cleanly. It
// distinguishes "ran but status unknown" from a real remote exit code.
const ExitCodeUnknown = 127

// Result holds the captured output of one remote command execution. It is
// owned solely by the caller after Exec returns and is never mutated by this
// package afterwards.
type Result struct {
	Stdout []byte // captured standard output, exact length
	Stderr []byte // captured standard error, exact length

	// ExitCode is the remote process's exit status, or ExitCodeUnknown when
	// the channel did not close cleanly.
	ExitCode int

	// ExitSignal is the name of the signal that terminated the remote
	// process, or the empty string if it exited normally.
	ExitSignal string
}

// Success reports whether the command ran to completion with exit code 0 and
// was not terminated by a signal.
func (r *Result) Success() bool {
	return r.ExitCode == 0 && r.ExitSignal == ""
}

// Failed reports whether the command failed (non-zero or unknown exit code,
// or termination by signal).
func (r *Result) Failed() bool {
	return !r.Success()
}
