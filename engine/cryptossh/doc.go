// Package cryptossh implements the simplessh engine contract on top of
// "golang.org/x/crypto/ssh", with uploads carried over SFTP ("github.com/pkg/sftp").
//
// One caveat is inherited from x/crypto/ssh: the wire key exchange is coupled
// to authentication, so Handshake only adopts the socket and the actual
// exchange completes inside the first Auth call. Handshake-stage failures
// therefore surface as authentication failures, and a rejected credential
// tears down the transport, so a fresh session is needed for another attempt.
//
// Command output is pumped off the channel by background goroutines into
// in-memory buffers, which lets Read and ReadStderr honor the non-blocking
// contract: they return engine.ErrAgain whenever the buffers are drained but
// the stream has not ended.
//
// Because the ssh multiplexer consumes the socket internally, socket
// readiness cannot signal buffered output. The engine therefore implements
// engine.Waiter: Wait blocks on a notify channel the stream pumps post to,
// so a would-block retry wakes as soon as a stream makes progress.
package cryptossh
