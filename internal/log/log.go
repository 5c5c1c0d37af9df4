// Package log configures the process-wide slog logger.
package log

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "charm.land/log/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelEnvVar overrides the level derived from -v.
const LevelEnvVar = "GIBBERISH_LOG_LEVEL"

type Options struct {
	// Verbosity is the number of -v flags.
	Verbosity int
	// File, when set, also receives logs with size based rotation.
	File string
	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// LevelForVerbosity maps -v counts: none is warn, one is info, more is
// debug.
func LevelForVerbosity(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelWarn
	case v == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func parseLevel(s string) (slog.Level, bool) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, false
	}
	return l, true
}

// Setup installs the default slog logger and returns a function that
// flushes and closes the log file, if any.
func Setup(opts Options) (func() error, error) {
	level := LevelForVerbosity(opts.Verbosity)
	if v, ok := os.LookupEnv(LevelEnvVar); ok {
		l, ok := parseLevel(v)
		if !ok {
			return nil, errors.New("invalid " + LevelEnvVar + ": " + v)
		}
		level = l
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	handlers := []slog.Handler{newHandler(w, level, charmlog.TextFormatter)}
	closeFn := func() error { return nil }

	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		handlers = append(handlers, newHandler(rotator, slog.LevelDebug, charmlog.JSONFormatter))
		closeFn = rotator.Close
	}

	slog.SetDefault(slog.New(fanout(handlers)))
	return closeFn, nil
}

func newHandler(w io.Writer, level slog.Level, f charmlog.Formatter) slog.Handler {
	return charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmlog.Level(level),
		ReportTimestamp: true,
		Formatter:       f,
	})
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
