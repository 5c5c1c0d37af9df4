package cmd

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"errors"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/CaptainPhantasy/gibberish/internal/agent"
	"github.com/CaptainPhantasy/gibberish/internal/capture"
	"github.com/CaptainPhantasy/gibberish/internal/config"
	apperrors "github.com/CaptainPhantasy/gibberish/internal/errors"
	"github.com/CaptainPhantasy/gibberish/internal/gate"
	"github.com/CaptainPhantasy/gibberish/internal/log"
	"github.com/CaptainPhantasy/gibberish/internal/repl"
	"github.com/CaptainPhantasy/gibberish/internal/terminal"
	"github.com/CaptainPhantasy/gibberish/internal/version"
	"github.com/MakeNowJust/heredoc"
	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/exp/charmtone"
	"github.com/charmbracelet/x/term"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type flags struct {
	verbose     int
	configPath  string
	yolo        bool
	command     string
	login       bool
	interactive bool
	sessionHTML string
	logFile     string
}

func newRootCmd() (*cobra.Command, *flags) {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "gibberish",
		Short: "Let a language model drive a real shell",
		Long:  "Runs a shell in a pseudo-terminal and lets a language model operate it one keystroke batch at a time, with every injection confirmed by you",
		Example: heredoc.Doc(`
			# Start the interactive session
			gibberish

			# Run one line through the agent and exit
			gibberish -c "list the files in this directory"

			# Skip confirmation prompts for agent input
			gibberish --yolo

			# Keep an HTML transcript of the session
			gibberish --session-html session.html
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}

	fl := cmd.Flags()
	fl.CountVarP(&f.verbose, "verbose", "v", "Increase log verbosity (use -vv for more detail)")
	fl.StringVar(&f.configPath, "config", "", "Path to TOML config file (default: ~/.config/gibberish/config.toml)")
	fl.BoolVar(&f.yolo, "yolo", false, "Disable confirmation prompts for LLM-issued terminal input")
	fl.StringVarP(&f.command, "command", "c", "", "Execute one REPL line and exit")
	fl.BoolVarP(&f.login, "login", "l", false, "Start the configured shell as a login shell (accepted for compatibility)")
	fl.BoolVarP(&f.interactive, "interactive", "i", false, "Force the configured shell into interactive mode (accepted for compatibility)")
	fl.StringVar(&f.sessionHTML, "session-html", "", "Write a single-file HTML capture of the session history to this path")
	fl.StringVar(&f.logFile, "log-file", "", "Also write logs to this file, rotated by size")
	return cmd, f
}

var rootCmd, _ = newRootCmd()

var heartbit = lipgloss.NewStyle().Foreground(charmtone.Charple).SetString(`
       _ _     _               _     _
  __ _(_) |__ | |__   ___ _ __(_)___| |__
 / _' | | '_ \| '_ \ / _ \ '__| / __| '_ \
| (_| | | |_) | |_) |  __/ |  | \__ \ | | |
 \__, |_|_.__/|_.__/ \___|_|  |_|___/_| |_|
 |___/
`)

// copied from cobra:
const defaultVersionTemplate = `{{with .DisplayName}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`

func Execute() {
	if term.IsTerminal(os.Stdout.Fd()) {
		var b bytes.Buffer
		w := colorprofile.NewWriter(os.Stdout, os.Environ())
		w.Forward = &b
		_, _ = w.WriteString(heartbit.String())
		rootCmd.SetVersionTemplate(b.String() + "\n" + defaultVersionTemplate)
	}
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(version.Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

// displayError renders user errors with their resolution hints.
type displayError struct{ err error }

func (d displayError) Error() string {
	return strings.TrimPrefix(apperrors.FormatErrorForDisplay(d.err), "Error: ")
}

func (d displayError) Unwrap() error { return d.err }

// loadEnv reads the global env file and then ./.env on top of it.
// Variables already set in the process keep their values.
func loadEnv() {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "gibberish", ".env"))
	}
	loadEnvFiles(append(paths, ".env")...)
}

// loadEnvFiles merges paths in order, later files overriding earlier
// ones. Missing or unreadable files are skipped.
func loadEnvFiles(paths ...string) {
	merged := map[string]string{}
	for _, path := range paths {
		vals, err := godotenv.Read(path)
		if err != nil {
			continue
		}
		maps.Copy(merged, vals)
	}
	for k, v := range merged {
		if _, ok := os.LookupEnv(k); !ok {
			_ = os.Setenv(k, v)
		}
	}
}

func run(ctx context.Context, f *flags) error {
	loadEnv()

	closeLog, err := log.Setup(log.Options{Verbosity: f.verbose, File: f.logFile})
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return displayError{err}
	}
	opts, err := cfg.TerminalOptions()
	if err != nil {
		return displayError{err}
	}
	if f.login || f.interactive {
		slog.Debug("Shell mode flags are accepted for compatibility and ignored", "login", f.login, "interactive", f.interactive)
	}

	session, err := terminal.Start(ctx, opts)
	if err != nil {
		return displayError{apperrors.EnsureUserError(err, "failed to start the shell", apperrors.UserErrorOptions{
			Level:      apperrors.ErrorLevelFatal,
			Category:   apperrors.ErrorCategoryTerminal,
			Details:    map[string]any{"program": opts.Program},
			Resolution: []string{"Check shell.program and shell.args in the config file"},
		})}
	}

	var rec *capture.Capture
	if f.sessionHTML != "" {
		rec = capture.New()
		slog.Info("Recording session", "id", rec.ID(), "path", f.sessionHTML)
	}

	replErr := runSession(ctx, f, cfg, session, rec)
	if errors.Is(replErr, context.Canceled) {
		replErr = nil
	}

	var shutdownErr error
	if err := session.Shutdown(); err != nil {
		shutdownErr = displayError{shutdownFailure(err)}
	}

	var captureErr error
	if rec != nil {
		if err := rec.WriteHTML(f.sessionHTML); err != nil {
			captureErr = displayError{captureFailure(f.sessionHTML, err)}
		}
	}

	return cmp.Or(replErr, shutdownErr, captureErr)
}

func shutdownFailure(err error) *apperrors.UserError {
	return apperrors.EnsureUserError(err, "failed to shut down terminal session", apperrors.UserErrorOptions{
		Level:      apperrors.ErrorLevelError,
		Category:   apperrors.ErrorCategoryTerminal,
		Resolution: []string{"Check for leftover processes started from the shell"},
	})
}

// captureFailure is only a warning: the session itself already ran.
func captureFailure(path string, err error) *apperrors.UserError {
	return apperrors.EnsureUserError(err, "failed to write session capture HTML to "+path, apperrors.UserErrorOptions{
		Level:      apperrors.ErrorLevelWarning,
		Category:   apperrors.ErrorCategoryFileSystem,
		Details:    map[string]any{"path": path},
		Resolution: []string{"Make sure the directory passed to --session-html exists and is writable"},
	})
}

func agentFailure(model string, err error) *apperrors.UserError {
	return apperrors.EnsureUserError(err, "failed to set up the language model", apperrors.UserErrorOptions{
		Level:      apperrors.ErrorLevelFatal,
		Category:   apperrors.ErrorCategoryAIService,
		Details:    map[string]any{"model": model},
		Resolution: []string{"Check llm.model, llm.base_url and llm.api_key in the config file"},
	})
}

func runSession(ctx context.Context, f *flags, cfg *config.Config, session *terminal.Session, rec *capture.Capture) error {
	stdin := bufio.NewReader(os.Stdin)
	styledOut := term.IsTerminal(os.Stdout.Fd())

	gateOpts := []gate.Option{
		gate.WithAutoApprove(f.yolo || cfg.Yolo),
		gate.WithConfirmer(gate.NewPromptConfirmer(stdin, os.Stderr, term.IsTerminal(os.Stderr.Fd()))),
	}
	replOpts := repl.Options{
		WaitMS:      cfg.WaitMS,
		Skin:        cfg.LLM.Skin,
		Verbosity:   f.verbose,
		In:          stdin,
		Out:         os.Stdout,
		ErrOut:      os.Stderr,
		Styled:      styledOut,
		ProgressBar: supportsProgressBar(),
		Width:       terminalWidth,
	}
	if rec != nil {
		gateOpts = append(gateOpts, gate.WithRecorder(rec))
		replOpts.Recorder = rec
	}
	g := gate.New(session, gateOpts...)

	rt, err := agent.New(ctx, agent.Options{
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		BaseURL:      cfg.LLM.BaseURL,
		SystemPrompt: cfg.LLM.InitialPrompt,
	}, g)
	if err != nil {
		return displayError{agentFailure(cfg.LLM.Model, err)}
	}

	r, err := repl.New(session, rt, replOpts)
	if err != nil {
		return err
	}
	if f.command != "" {
		return r.RunLine(ctx, f.command)
	}
	return r.Run(ctx)
}

func terminalWidth() int {
	w, _, err := term.GetSize(os.Stdout.Fd())
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// supportsProgressBar tries to determine whether the current terminal supports
// progress bars by looking into environment variables.
func supportsProgressBar() bool {
	if !term.IsTerminal(os.Stderr.Fd()) {
		return false
	}
	termProg := os.Getenv("TERM_PROGRAM")
	_, isWindowsTerminal := os.LookupEnv("WT_SESSION")

	return isWindowsTerminal || strings.Contains(strings.ToLower(termProg), "ghostty")
}
