// Package simplessh provides a synchronous-looking client for executing
// remote commands and uploading files over SSH, driven on top of an
// inherently non-blocking protocol engine.
//
// # Model
//
// Every protocol operation may report a would-block signal instead of
// blocking. The package answers with one uniform pattern: wait (bounded)
// until the engine can plausibly make progress, then re-issue the operation.
// Engines that track their own readiness are asked directly; socket-driven
// engines are polled in whichever direction they report blocked on. Callers
// see none of this; Open, Auth*, Exec, Send and Close are plain synchronous
// calls.
//
// # Usage
//
//	sess, err := simplessh.Open("example.com", 22, 10*time.Second)
//	if err != nil {
//		return err
//	}
//	defer func() { _ = sess.Close() }()
//
//	if err := sess.AuthPassword("deploy", "secret"); err != nil {
//		return err
//	}
//
//	res, err := sess.Exec("uname -a")
//	if err != nil {
//		return err
//	}
//	fmt.Printf("%s (exit %d)\n", res.Stdout, res.ExitCode)
//
// # Errors
//
// Errors are data: every failure is an *Error tagged with a Kind (CONNECT,
// INIT, HANDSHAKE, AUTHENTICATION, CHANNEL_OPEN, CHANNEL_EXEC, READ, WRITE).
// Nothing is retried automatically except the engine's would-block signal.
//
// # Concurrency
//
// A Session is used by one goroutine at a time, and its operations are
// strictly sequential. Independent sessions are independent.
//
// The package targets Unix-like systems; socket readiness is implemented
// with poll(2).
package simplessh
