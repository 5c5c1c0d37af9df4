//go:build unix

package terminal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

const (
	termGrace = 400 * time.Millisecond
	killGrace = 400 * time.Millisecond
	pollTick  = 20 * time.Millisecond

	writeRetryDelay = 5 * time.Millisecond
	readBufferSize  = 8192
)

// process is a shell attached to the subordinate side of a PTY. The
// master side is non-blocking and accessed through its raw descriptor.
type process struct {
	ptmx *os.File
	fd   int
	cmd  *exec.Cmd

	exited  chan struct{}
	waitErr error
}

// spawn opens a PTY, sizes it and starts the configured program as a
// session leader with the PTY as its controlling terminal. The line
// discipline is left in its default canonical mode so control bytes
// such as ^C and ^Z raise signals in the foreground process group.
func spawn(opts Options) (*process, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open PTY master: %w", err)
	}
	defer tty.Close() //nolint:errcheck

	if err := pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(opts.Rows), Cols: uint16(opts.Cols)}); err != nil {
		_ = ptmx.Close()
		return nil, fmt.Errorf("failed to resize PTY: %w", err)
	}
	// Fd switches the descriptor back to blocking mode, so no call that
	// goes through it may follow SetNonblock.
	fd := int(ptmx.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = ptmx.Close()
		return nil, fmt.Errorf("failed to set PTY nonblocking mode: %w", err)
	}

	c := exec.Command(opts.Program, opts.Args...)
	c.Env = opts.environ()
	c.Stdin = tty
	c.Stdout = tty
	c.Stderr = tty
	c.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	if err := c.Start(); err != nil {
		_ = ptmx.Close()
		return nil, fmt.Errorf("failed to spawn %s: %w", opts.Program, err)
	}

	p := &process{ptmx: ptmx, fd: fd, cmd: c, exited: make(chan struct{})}
	go func() {
		p.waitErr = c.Wait()
		close(p.exited)
	}()

	slog.Debug("Spawned shell", "program", opts.Program, "pid", c.Process.Pid, "cols", opts.Cols, "rows", opts.Rows)
	return p, nil
}

func (o Options) environ() []string {
	env := os.Environ()
	keys := make([]string, 0, len(o.Env))
	for k := range o.Env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		env = append(env, k+"="+o.Env[k])
	}
	return env
}

// reaped reports whether Wait has returned and, if so, its error.
func (p *process) reaped() (bool, error) {
	if !p.hasExited() {
		return false, nil
	}
	return true, p.waitErr
}

func (p *process) hasExited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// drain reads everything currently available on the master into the
// screen. It reports eof when the subordinate side is gone; EIO is how
// Linux signals that once the last holder of the tty has exited.
func (p *process) drain(scr *screen, buf []byte) (eof bool, err error) {
	for {
		n, err := unix.Read(p.fd, buf)
		switch {
		case err == nil && n == 0:
			return true, nil
		case err == nil:
			scr.feed(buf[:n])
		case errors.Is(err, unix.EIO):
			return true, nil
		case errors.Is(err, unix.EAGAIN):
			return false, nil
		case errors.Is(err, unix.EINTR):
			continue
		default:
			return false, err
		}
	}
}

// write delivers all of b, sleeping briefly and retrying when the
// master would block or the call is interrupted.
func (p *process) write(b []byte) error {
	for len(b) > 0 {
		n, err := unix.Write(p.fd, b)
		switch {
		case err == nil && n == 0:
			return errors.New("write returned zero bytes")
		case err == nil:
			b = b[n:]
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			time.Sleep(writeRetryDelay)
		default:
			return err
		}
	}
	return nil
}

// terminate stops the shell and everything in its process group:
// SIGTERM, then SIGKILL, then a direct kill of the child, each followed
// by a bounded wait. It never goes back to a weaker step.
func (p *process) terminate() {
	defer p.ptmx.Close() //nolint:errcheck

	if p.hasExited() {
		return
	}
	pgid := p.cmd.Process.Pid

	steps := []struct {
		name  string
		send  func() error
		grace time.Duration
	}{
		{"SIGTERM", func() error { return groupSignal(pgid, unix.SIGTERM) }, termGrace},
		{"SIGKILL", func() error { return groupSignal(pgid, unix.SIGKILL) }, killGrace},
		{"kill", p.cmd.Process.Kill, killGrace},
	}
	for _, step := range steps {
		if err := step.send(); err != nil {
			slog.Warn("Failed to signal shell", "pid", pgid, "signal", step.name, "error", err)
		}
		if p.waitExit(step.grace) {
			slog.Debug("Shell terminated", "pid", pgid, "signal", step.name)
			return
		}
	}
	slog.Warn("Shell did not exit after kill", "pid", pgid)
}

// groupSignal is replaced in tests to simulate a group that survives
// both group signals.
var groupSignal = signalGroup

func signalGroup(pgid int, sig unix.Signal) error {
	err := unix.Kill(-pgid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func (p *process) waitExit(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollTick)
	defer ticker.Stop()
	for {
		if p.hasExited() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		select {
		case <-p.exited:
			return true
		case <-ticker.C:
		}
	}
}
