package log

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelForVerbosity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		v    int
		want slog.Level
	}{
		{v: -1, want: slog.LevelWarn},
		{v: 0, want: slog.LevelWarn},
		{v: 1, want: slog.LevelInfo},
		{v: 2, want: slog.LevelDebug},
		{v: 5, want: slog.LevelDebug},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, LevelForVerbosity(tt.v), "verbosity %d", tt.v)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	l, ok := parseLevel(" debug ")
	require.True(t, ok)
	require.Equal(t, slog.LevelDebug, l)

	l, ok = parseLevel("ERROR")
	require.True(t, ok)
	require.Equal(t, slog.LevelError, l)

	_, ok = parseLevel("chatty")
	require.False(t, ok)
}

// The Setup tests replace the default logger and read the environment.
func TestSetup(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	t.Run("verbosity filters stderr", func(t *testing.T) {
		t.Setenv(LevelEnvVar, "")
		os.Unsetenv(LevelEnvVar)

		var buf bytes.Buffer
		closeFn, err := Setup(Options{Verbosity: 1, Writer: &buf})
		require.NoError(t, err)
		defer closeFn()

		slog.Debug("hidden detail")
		slog.Info("spawned shell", "pid", 42)
		require.NotContains(t, buf.String(), "hidden detail")
		require.Contains(t, buf.String(), "spawned shell")
		require.Contains(t, buf.String(), "pid=42")
	})

	t.Run("env overrides verbosity", func(t *testing.T) {
		t.Setenv(LevelEnvVar, "debug")

		var buf bytes.Buffer
		closeFn, err := Setup(Options{Writer: &buf})
		require.NoError(t, err)
		defer closeFn()

		slog.Debug("tick")
		require.Contains(t, buf.String(), "tick")
	})

	t.Run("invalid env level", func(t *testing.T) {
		t.Setenv(LevelEnvVar, "loud")

		_, err := Setup(Options{Writer: &bytes.Buffer{}})
		require.EqualError(t, err, "invalid GIBBERISH_LOG_LEVEL: loud")
	})

	t.Run("file receives debug records", func(t *testing.T) {
		t.Setenv(LevelEnvVar, "")
		os.Unsetenv(LevelEnvVar)

		path := filepath.Join(t.TempDir(), "gibberish.log")
		var buf bytes.Buffer
		closeFn, err := Setup(Options{File: path, Writer: &buf})
		require.NoError(t, err)

		slog.Debug("pty drained", "bytes", 12)
		require.NoError(t, closeFn())

		require.Empty(t, buf.String())
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(data), `"msg":"pty drained"`)
	})
}

func TestFanoutEnabled(t *testing.T) {
	t.Parallel()

	warn := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	debug := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug})

	require.False(t, fanout{warn}.Enabled(context.Background(), slog.LevelInfo))
	require.True(t, fanout{warn, debug}.Enabled(context.Background(), slog.LevelInfo))
}
