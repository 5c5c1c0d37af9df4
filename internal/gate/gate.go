// Package gate serializes byte injection into the terminal. Each call
// holds a single token for the whole "confirm, send, wait, snapshot"
// sequence so two callers never interleave their input or wait windows.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/CaptainPhantasy/gibberish/internal/terminal"
	"golang.org/x/sync/semaphore"
)

// Terminal is the part of a terminal session the gate drives.
type Terminal interface {
	SendInput(ctx context.Context, b []byte) error
	Snapshot(ctx context.Context) (terminal.Snapshot, error)
}

// Request describes a pending injection shown to the human approver.
type Request struct {
	Tool  string
	Spec  string
	Bytes []byte
}

// Confirmer asks a human whether a request may proceed.
type Confirmer interface {
	Confirm(ctx context.Context, req Request) (bool, error)
}

// Recorder receives completed tool calls for the session transcript.
type Recorder interface {
	RecordToolCall(tool string, params any, snapshot string)
}

// ToolCall is an injection requested by the agent.
type ToolCall struct {
	Name string
	// Spec is the request as shown to the approver.
	Spec string
	// Params is what the agent sent, recorded verbatim.
	Params any
	Bytes  []byte
	// Wait is in seconds.
	Wait float64
}

type Gate struct {
	term        Terminal
	sem         *semaphore.Weighted
	autoApprove bool
	confirmer   Confirmer
	recorder    Recorder
}

type Option func(*Gate)

// WithAutoApprove skips confirmation for every tool call.
func WithAutoApprove(v bool) Option {
	return func(g *Gate) { g.autoApprove = v }
}

func WithConfirmer(c Confirmer) Option {
	return func(g *Gate) { g.confirmer = c }
}

func WithRecorder(r Recorder) Option {
	return func(g *Gate) { g.recorder = r }
}

func New(term Terminal, opts ...Option) *Gate {
	g := &Gate{term: term, sem: semaphore.NewWeighted(1)}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ExecuteToolCall runs an agent-issued injection. Without auto-approve
// the confirmer is asked first; a denial sends nothing and returns the
// current screen with a denial notice.
func (g *Gate) ExecuteToolCall(ctx context.Context, call ToolCall) (string, error) {
	if err := ValidateWait(call.Wait); err != nil {
		return "", err
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer g.sem.Release(1)

	approved, err := g.confirm(ctx, call)
	if err != nil {
		return "", err
	}

	var out string
	if approved {
		out, err = g.executeLocked(ctx, call.Bytes, call.Wait)
	} else {
		slog.Info("Tool call denied", "tool", call.Name)
		out, err = g.denied(ctx, call.Name)
	}
	if err != nil {
		return "", err
	}

	if g.recorder != nil {
		g.recorder.RecordToolCall(call.Name, call.Params, out)
	}
	return out, nil
}

// ExecuteUserInput runs an injection typed by the user. It takes the
// same token as tool calls but never asks for confirmation.
func (g *Gate) ExecuteUserInput(ctx context.Context, b []byte, wait float64) (string, error) {
	if err := ValidateWait(wait); err != nil {
		return "", err
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer g.sem.Release(1)

	return g.executeLocked(ctx, b, wait)
}

func (g *Gate) confirm(ctx context.Context, call ToolCall) (bool, error) {
	if g.autoApprove {
		return true, nil
	}
	if g.confirmer == nil {
		return false, nil
	}
	ok, err := g.confirmer.Confirm(ctx, Request{Tool: call.Name, Spec: call.Spec, Bytes: call.Bytes})
	if err != nil {
		return false, fmt.Errorf("failed to confirm tool call: %w", err)
	}
	return ok, nil
}

func (g *Gate) denied(ctx context.Context, tool string) (string, error) {
	snap, err := g.term.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("User denied the `%s` tool call. No bytes were sent.\n\n%s", tool, snap.Render()), nil
}

func (g *Gate) executeLocked(ctx context.Context, b []byte, wait float64) (string, error) {
	if err := g.term.SendInput(ctx, b); err != nil {
		return "", err
	}

	if wait > 0 {
		t := time.NewTimer(seconds(wait))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		}
	}

	snap, err := g.term.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	slog.Debug("Snapshot after input", "snapshot", snap.String(), "bytes", len(b), "wait", wait)
	return snap.Render(), nil
}

func seconds(v float64) time.Duration {
	ns := v * float64(time.Second)
	if ns >= math.MaxInt64 {
		return math.MaxInt64
	}
	return time.Duration(ns)
}
