// Package terminal runs an interactive shell inside a PTY and keeps a
// virtual screen of its output. A single worker goroutine owns the PTY,
// the child process and the screen; everything else talks to it through
// a command channel via Handle.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const shutdownAckTimeout = time.Second

// Options describes the shell to run and the fixed terminal size.
type Options struct {
	Program string
	Args    []string
	// Env is layered on top of the parent environment.
	Env  map[string]string
	Cols int
	Rows int
}

func (o Options) validate() error {
	if o.Program == "" {
		return errors.New("shell program must not be empty")
	}
	if o.Cols <= 0 || o.Rows <= 0 {
		return fmt.Errorf("terminal size must be positive (got %dx%d)", o.Cols, o.Rows)
	}
	if o.Cols > 0xffff || o.Rows > 0xffff {
		return fmt.Errorf("terminal size %dx%d exceeds PTY limits", o.Cols, o.Rows)
	}
	return nil
}

type commandKind int

const (
	cmdSendInput commandKind = iota
	cmdSnapshot
	cmdReset
	cmdShutdown
)

// command is consumed exactly once by the worker, which always sends
// exactly one reply.
type command struct {
	kind  commandKind
	input []byte
	reply chan reply
}

type reply struct {
	snapshot Snapshot
	err      error
}

// Session is a running terminal worker. Use Handle to get a shareable
// request/response view of it and Shutdown to stop it.
type Session struct {
	Handle

	done chan struct{}
	err  error
}

// Handle sends commands to a session worker. It is a small value that
// can be copied and used from any number of goroutines.
type Handle struct {
	cmds chan<- command
	done <-chan struct{}
}

// Start spawns the shell and the worker that owns it. It returns only
// once the shell is running, or with the exact spawn error otherwise.
func Start(ctx context.Context, opts Options) (*Session, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	cmds := make(chan command)
	done := make(chan struct{})
	ready := make(chan error, 1)

	s := &Session{
		Handle: Handle{cmds: cmds, done: done},
		done:   done,
	}
	go func() {
		defer close(done)
		s.err = runWorker(opts, cmds, ready)
	}()

	select {
	case err := <-ready:
		if err != nil {
			<-done
			return nil, fmt.Errorf("failed to initialize terminal session: %w", err)
		}
	case <-done:
		select {
		case err := <-ready:
			if err != nil {
				return nil, fmt.Errorf("failed to initialize terminal session: %w", err)
			}
		default:
		}
		return nil, errors.New("terminal worker exited before initialization")
	case <-ctx.Done():
		// The worker either comes up and is told to stop, or fails on
		// its own; either way nobody else holds a handle to it.
		go func() {
			if err := <-ready; err == nil {
				_ = s.Shutdown()
			}
		}()
		return nil, ctx.Err()
	}

	slog.Info("Terminal session started", "program", opts.Program, "cols", opts.Cols, "rows", opts.Rows)
	return s, nil
}

// Shutdown asks the worker to stop, waits up to a second for the
// acknowledgement and then waits for the worker to finish terminating
// the shell. It returns the error that ended the worker, if any. Calling
// it again is a no-op.
func (s *Session) Shutdown() error {
	select {
	case <-s.done:
		return s.err
	default:
	}

	ack := make(chan reply, 1)
	timer := time.NewTimer(shutdownAckTimeout)
	defer timer.Stop()

	select {
	case s.cmds <- command{kind: cmdShutdown, reply: ack}:
		select {
		case <-ack:
		case <-timer.C:
			slog.Warn("Terminal worker did not acknowledge shutdown in time")
		}
	case <-s.done:
	case <-timer.C:
		slog.Warn("Terminal worker did not accept shutdown in time")
	}

	<-s.done
	return s.err
}

// Done is closed once the worker has exited.
func (h Handle) Done() <-chan struct{} {
	return h.done
}

// SendInput writes b verbatim to the shell's terminal.
func (h Handle) SendInput(ctx context.Context, b []byte) error {
	input := make([]byte, len(b))
	copy(input, b)
	_, err := h.do(ctx, command{kind: cmdSendInput, input: input})
	return err
}

// Snapshot returns the current screen after a best-effort drain of
// pending output.
func (h Handle) Snapshot(ctx context.Context) (Snapshot, error) {
	r, err := h.do(ctx, command{kind: cmdSnapshot})
	return r.snapshot, err
}

// Reset replaces the shell with a freshly spawned one using the same
// options. If the new shell cannot be started the old one keeps running
// and the spawn error is returned.
func (h Handle) Reset(ctx context.Context) error {
	_, err := h.do(ctx, command{kind: cmdReset})
	return err
}

func (h Handle) do(ctx context.Context, c command) (reply, error) {
	if h.cmds == nil {
		return reply{}, ErrWorkerUnavailable
	}
	c.reply = make(chan reply, 1)

	select {
	case h.cmds <- c:
	case <-h.done:
		return reply{}, ErrWorkerUnavailable
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}

	select {
	case r := <-c.reply:
		return r, r.err
	case <-h.done:
		// The worker may have replied right before exiting.
		select {
		case r := <-c.reply:
			return r, r.err
		default:
			return reply{}, ErrWorkerUnavailable
		}
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}
