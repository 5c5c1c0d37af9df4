package gate

import (
	"bufio"
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CaptainPhantasy/gibberish/internal/terminal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fakeTerminal struct {
	mu     sync.Mutex
	events []string
	sent   []byte
	err    error
}

func (f *fakeTerminal) SendInput(_ context.Context, b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, "send:"+string(b))
	f.sent = append(f.sent, b...)
	return nil
}

func (f *fakeTerminal) Snapshot(context.Context) (terminal.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "snap")
	return terminal.Snapshot{Cols: 10, Rows: 1, Cursor: &terminal.Cursor{}, Lines: []string{"$ "}}, nil
}

func (f *fakeTerminal) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

type fixedConfirmer struct {
	answer bool
	calls  int
	last   Request
}

func (c *fixedConfirmer) Confirm(_ context.Context, req Request) (bool, error) {
	c.calls++
	c.last = req
	return c.answer, nil
}

type recordedCall struct {
	tool     string
	params   any
	snapshot string
}

type fakeRecorder struct {
	calls []recordedCall
}

func (r *fakeRecorder) RecordToolCall(tool string, params any, snapshot string) {
	r.calls = append(r.calls, recordedCall{tool, params, snapshot})
}

func TestExecuteToolCallApproved(t *testing.T) {
	t.Parallel()

	term := &fakeTerminal{}
	confirmer := &fixedConfirmer{answer: true}
	recorder := &fakeRecorder{}
	g := New(term, WithConfirmer(confirmer), WithRecorder(recorder))

	params := map[string]any{"str": `ls\n`, "float": 0.0}
	out, err := g.ExecuteToolCall(t.Context(), ToolCall{
		Name:   "raw_input",
		Spec:   `"ls\\n"`,
		Params: params,
		Bytes:  []byte("ls\n"),
	})
	require.NoError(t, err)
	require.Equal(t, "▮\nCursor info: row=0, col=0, char=\"$\"", out)
	require.Equal(t, []string{"send:ls\n", "snap"}, term.log())

	require.Equal(t, 1, confirmer.calls)
	require.Equal(t, Request{Tool: "raw_input", Spec: `"ls\\n"`, Bytes: []byte("ls\n")}, confirmer.last)

	require.Len(t, recorder.calls, 1)
	require.Equal(t, "raw_input", recorder.calls[0].tool)
	require.Equal(t, params, recorder.calls[0].params)
	require.Equal(t, out, recorder.calls[0].snapshot)
}

func TestExecuteToolCallDenied(t *testing.T) {
	t.Parallel()

	term := &fakeTerminal{}
	recorder := &fakeRecorder{}
	g := New(term, WithConfirmer(&fixedConfirmer{answer: false}), WithRecorder(recorder))

	start := time.Now()
	out, err := g.ExecuteToolCall(t.Context(), ToolCall{Name: "raw_input", Bytes: []byte("rm -rf /\n"), Wait: 30})
	require.NoError(t, err)
	require.Less(t, time.Since(start), 5*time.Second, "denial must not wait")

	require.True(t, strings.HasPrefix(out, "User denied the `raw_input` tool call. No bytes were sent.\n\n"))
	require.True(t, strings.HasSuffix(out, "Cursor info: row=0, col=0, char=\"$\""))
	require.Equal(t, []string{"snap"}, term.log())
	require.Empty(t, term.sent)
	require.Len(t, recorder.calls, 1)
}

func TestExecuteToolCallAutoApprove(t *testing.T) {
	t.Parallel()

	term := &fakeTerminal{}
	confirmer := &fixedConfirmer{answer: false}
	g := New(term, WithAutoApprove(true), WithConfirmer(confirmer))

	_, err := g.ExecuteToolCall(t.Context(), ToolCall{Name: "raw_input", Bytes: []byte("pwd\n")})
	require.NoError(t, err)
	require.Zero(t, confirmer.calls)
	require.Equal(t, []byte("pwd\n"), term.sent)
}

func TestExecuteToolCallWithoutConfirmerDenies(t *testing.T) {
	t.Parallel()

	term := &fakeTerminal{}
	out, err := New(term).ExecuteToolCall(t.Context(), ToolCall{Name: "raw_input", Bytes: []byte("x")})
	require.NoError(t, err)
	require.Contains(t, out, "No bytes were sent.")
	require.Empty(t, term.sent)
}

func TestExecuteUserInputSkipsConfirmation(t *testing.T) {
	t.Parallel()

	term := &fakeTerminal{}
	confirmer := &fixedConfirmer{answer: false}
	recorder := &fakeRecorder{}
	g := New(term, WithConfirmer(confirmer), WithRecorder(recorder))

	out, err := g.ExecuteUserInput(t.Context(), []byte{0x03}, 0)
	require.NoError(t, err)
	require.Contains(t, out, "Cursor info:")
	require.Zero(t, confirmer.calls)
	require.Empty(t, recorder.calls)
	require.Equal(t, []byte{0x03}, term.sent)
}

func TestExecuteWaitsBeforeSnapshot(t *testing.T) {
	t.Parallel()

	g := New(&fakeTerminal{}, WithAutoApprove(true))
	start := time.Now()
	_, err := g.ExecuteUserInput(t.Context(), []byte("x"), 0.05)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestInvalidWaitRejectedBeforeGate(t *testing.T) {
	t.Parallel()

	term := &fakeTerminal{}
	g := New(term, WithAutoApprove(true))

	// Hold the token: validation must still answer immediately.
	require.NoError(t, g.sem.Acquire(t.Context(), 1))
	defer g.sem.Release(1)

	for _, wait := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := g.ExecuteToolCall(t.Context(), ToolCall{Name: "raw_input", Bytes: []byte("x"), Wait: wait})
		var inputErr *InputError
		require.True(t, errors.As(err, &inputErr))

		_, err = g.ExecuteUserInput(t.Context(), []byte("x"), wait)
		require.True(t, errors.As(err, &inputErr))
	}
	require.Empty(t, term.log())
}

func TestExecuteSendError(t *testing.T) {
	t.Parallel()

	term := &fakeTerminal{err: terminal.ErrProcessExited}
	recorder := &fakeRecorder{}
	g := New(term, WithAutoApprove(true), WithRecorder(recorder))

	_, err := g.ExecuteToolCall(t.Context(), ToolCall{Name: "raw_input", Bytes: []byte("x")})
	require.ErrorIs(t, err, terminal.ErrProcessExited)
	require.Empty(t, recorder.calls)
}

func TestConcurrentCallsDoNotInterleave(t *testing.T) {
	t.Parallel()

	term := &fakeTerminal{}
	g := New(term, WithAutoApprove(true))

	eg, ctx := errgroup.WithContext(t.Context())
	for _, payload := range []string{"AAAA", "BBBB", "CCCC"} {
		eg.Go(func() error {
			_, err := g.ExecuteToolCall(ctx, ToolCall{Name: "raw_input", Bytes: []byte(payload), Wait: 0.02})
			return err
		})
	}
	require.NoError(t, eg.Wait())

	events := term.log()
	require.Len(t, events, 6)
	for i := 0; i < len(events); i += 2 {
		require.True(t, strings.HasPrefix(events[i], "send:"), "event %d: %v", i, events)
		require.Equal(t, "snap", events[i+1], "event %d: %v", i+1, events)
	}
}

func TestCancelledWaitReleasesGate(t *testing.T) {
	t.Parallel()

	g := New(&fakeTerminal{}, WithAutoApprove(true))
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	_, err := g.ExecuteUserInput(ctx, []byte("sleep\n"), 60)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = g.ExecuteUserInput(t.Context(), []byte("next\n"), 0)
	require.NoError(t, err)
}

func TestPromptConfirmer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"yes\n", true},
		{"  YES \r\n", true},
		{"Y", true},
		{"n\n", false},
		{"\n", false},
		{"yep\n", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			var out strings.Builder
			c := NewPromptConfirmer(bufio.NewReader(strings.NewReader(tt.input)), &out, false)
			got, err := c.Confirm(t.Context(), Request{Tool: "raw_input", Spec: `"ls\\n"`, Bytes: []byte("ls\n")})
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Contains(t, out.String(), "approval required for LLM tool call\n")
			require.Contains(t, out.String(), "tool: raw_input\n")
			require.Contains(t, out.String(), `input: "ls\\n"`+"\n")
			require.Contains(t, out.String(), `bytes: ls\n`+"\n")
			require.True(t, strings.HasSuffix(out.String(), "allow sending these bytes to the shell? [y/N]: "))
		})
	}
}

func TestPromptConfirmerReadsOneLine(t *testing.T) {
	t.Parallel()

	in := bufio.NewReader(strings.NewReader("y\nnext prompt\n"))
	c := NewPromptConfirmer(in, io.Discard, false)
	ok, err := c.Confirm(t.Context(), Request{Tool: "raw_input"})
	require.NoError(t, err)
	require.True(t, ok)

	rest, err := in.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "next prompt\n", rest)
}

func TestPromptConfirmerCancelled(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	c := NewPromptConfirmer(bufio.NewReader(pr), io.Discard, true)
	ok, err := c.Confirm(ctx, Request{Tool: "raw_input"})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, ok)
}
