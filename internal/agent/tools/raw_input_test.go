package tools

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/CaptainPhantasy/gibberish/internal/gate"
	"github.com/stretchr/testify/require"
)

type recordingExecutor struct {
	calls []gate.ToolCall
	out   string
	err   error
}

func (r *recordingExecutor) ExecuteToolCall(_ context.Context, call gate.ToolCall) (string, error) {
	r.calls = append(r.calls, call)
	return r.out, r.err
}

func TestRunRawInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		params    RawInputParams
		wantBytes []byte
		wantSpec  string
		wantErr   string
	}{
		{
			name:      "decodes escapes",
			params:    RawInputParams{Str: `ls\n`, Float: 0.4},
			wantBytes: []byte("ls\n"),
			wantSpec:  `"ls\\n"`,
		},
		{
			name:      "control byte",
			params:    RawInputParams{Str: `\x03`},
			wantBytes: []byte{0x03},
			wantSpec:  `"\\x03"`,
		},
		{
			name:    "bad escape never reaches the gate",
			params:  RawInputParams{Str: `\q`},
			wantErr: `unsupported escape sequence: \q`,
		},
		{
			name:    "negative wait",
			params:  RawInputParams{Str: "ls", Float: -1},
			wantErr: "float must be non-negative",
		},
		{
			name:    "nan wait",
			params:  RawInputParams{Str: "ls", Float: math.NaN()},
			wantErr: "float must be a finite number",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			exec := &recordingExecutor{out: "screen\n"}
			out, err := runRawInput(context.Background(), exec, tt.params)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				require.Empty(t, exec.calls)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "screen\n", out)
			require.Len(t, exec.calls, 1)
			call := exec.calls[0]
			require.Equal(t, RawInputToolName, call.Name)
			require.Equal(t, tt.wantBytes, call.Bytes)
			require.Equal(t, tt.wantSpec, call.Spec)
			require.Equal(t, tt.params, call.Params)
			require.Equal(t, tt.params.Float, call.Wait)
		})
	}
}

func TestRunRawInputPropagatesGateErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("terminal worker is not running")
	_, err := runRawInput(context.Background(), &recordingExecutor{err: boom}, RawInputParams{Str: "x"})
	require.ErrorIs(t, err, boom)
}

func TestNewRawInputTool(t *testing.T) {
	t.Parallel()

	tool := NewRawInputTool(&recordingExecutor{})
	info := tool.Info()
	require.Equal(t, RawInputToolName, info.Name)
	require.Equal(t, "Decode the escaped input string and send the exact bytes to the terminal. Returns a snapshot after waiting float seconds.", info.Description)
	require.Contains(t, info.Parameters, "str")
	require.Contains(t, info.Parameters, "float")
}
