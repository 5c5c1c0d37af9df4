//go:build unix

package terminal

import (
	"fmt"
	"log/slog"
	"time"
)

const workerTick = 15 * time.Millisecond

// spawnProcess is replaced in tests to simulate spawn failures.
var spawnProcess = spawn

// worker owns the PTY, the shell and the screen. Nothing else touches
// them.
type worker struct {
	opts   Options
	proc   *process
	scr    *screen
	exited bool
	buf    []byte
}

// runWorker spawns the shell, reports readiness and then serves
// commands until Shutdown. Between commands it keeps draining shell
// output so the screen never goes stale. A fatal read error ends the
// loop; the shell is terminated on every exit path.
func runWorker(opts Options, cmds <-chan command, ready chan<- error) error {
	w := &worker{opts: opts, buf: make([]byte, readBufferSize)}

	proc, scr, err := w.spawn()
	if err != nil {
		ready <- err
		return nil
	}
	w.proc, w.scr = proc, scr
	ready <- nil

	defer func() {
		w.proc.terminate()
		w.scr.close()
	}()

	tick := time.NewTimer(workerTick)
	defer tick.Stop()

	for {
		if !w.exited {
			if err := w.pump(); err != nil {
				slog.Error("Terminal worker stopped", "error", err)
				return fmt.Errorf("failed to process PTY output: %w", err)
			}
		}

		tick.Reset(workerTick)
		select {
		case c := <-cmds:
			if stop := w.handle(c); stop {
				return nil
			}
		case <-tick.C:
		}
	}
}

func (w *worker) spawn() (*process, *screen, error) {
	proc, err := spawnProcess(w.opts)
	if err != nil {
		return nil, nil, err
	}
	return proc, newScreen(w.opts.Cols, w.opts.Rows), nil
}

// pump forwards pending emulator replies, drains shell output and
// notices when the shell has exited.
func (w *worker) pump() error {
	if replies := w.scr.takeReplies(); len(replies) > 0 {
		if err := w.proc.write(replies); err != nil {
			slog.Debug("Failed to forward terminal replies", "error", err)
		}
	}

	eof, err := w.proc.drain(w.scr, w.buf)
	if err != nil {
		return err
	}
	if (eof || w.proc.hasExited()) && !w.exited {
		w.exited = true
		pid := w.proc.cmd.Process.Pid
		if ok, waitErr := w.proc.reaped(); ok {
			slog.Info("Shell exited", "pid", pid, "error", waitErr)
		} else {
			slog.Info("Shell closed its terminal", "pid", pid)
		}
	}
	return nil
}

func (w *worker) handle(c command) (stop bool) {
	switch c.kind {
	case cmdSendInput:
		c.reply <- reply{err: w.sendInput(c.input)}
	case cmdSnapshot:
		if !w.exited {
			if _, err := w.proc.drain(w.scr, w.buf); err != nil {
				slog.Debug("Ignoring drain error before snapshot", "error", err)
			}
		}
		c.reply <- reply{snapshot: w.scr.snapshot()}
	case cmdReset:
		c.reply <- reply{err: w.reset()}
	case cmdShutdown:
		c.reply <- reply{}
		return true
	default:
		c.reply <- reply{err: fmt.Errorf("unknown terminal command %d", c.kind)}
	}
	return false
}

func (w *worker) sendInput(b []byte) error {
	if w.exited {
		return ErrProcessExited
	}
	if err := w.proc.write(b); err != nil {
		return fmt.Errorf("failed to write to PTY: %w", err)
	}
	return nil
}

// reset builds the replacement shell before tearing down the current
// one, so a failed spawn leaves the session untouched.
func (w *worker) reset() error {
	proc, scr, err := w.spawn()
	if err != nil {
		slog.Warn("Terminal reset failed, keeping current shell", "error", err)
		return err
	}

	old, oldScr := w.proc, w.scr
	w.proc, w.scr, w.exited = proc, scr, false
	old.terminate()
	oldScr.close()

	slog.Info("Terminal session reset", "pid", proc.cmd.Process.Pid)
	return nil
}
