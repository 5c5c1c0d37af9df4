package terminal

import "errors"

var (
	// ErrWorkerUnavailable is returned when the session worker is no
	// longer running or went away before replying. The session cannot
	// be used anymore and should be started again.
	ErrWorkerUnavailable = errors.New("terminal worker is not running")

	// ErrProcessExited is returned by SendInput once the shell has
	// exited. Snapshots keep working.
	ErrProcessExited = errors.New("shell process has already exited")
)
