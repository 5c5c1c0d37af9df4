// Package repl reads lines from the user and routes them: ":" commands
// act on the terminal directly, everything else goes to the agent.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"charm.land/glamour/v2"
	"charm.land/lipgloss/v2"
	"github.com/CaptainPhantasy/gibberish/internal/agent"
	"github.com/CaptainPhantasy/gibberish/internal/config"
	"github.com/CaptainPhantasy/gibberish/internal/terminal"
	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/exp/charmtone"
	"github.com/dustin/go-humanize"
)

const helpText = "commands: :raw <spec> (send escaped bytes), :snap (snapshot now), " +
	":reset (restart shell + clear agent state), :quit (exit). every other line is sent to the agent"

type Session interface {
	Snapshot(ctx context.Context) (terminal.Snapshot, error)
	Reset(ctx context.Context) error
}

type Agent interface {
	Prompt(ctx context.Context, input string) (agent.Response, error)
	SendRawInput(ctx context.Context, spec string, wait float64) (string, error)
	Reset()
}

// Recorder receives the user's lines and the agent's replies.
type Recorder interface {
	RecordUserInput(text string)
	RecordAssistantResponse(markdown string)
}

type Options struct {
	WaitMS    uint64
	Skin      config.Skin
	Verbosity int
	In        *bufio.Reader
	Out       io.Writer
	ErrOut    io.Writer
	// Styled enables colors and markdown styling.
	Styled bool
	// ProgressBar shows a terminal progress indicator while the agent
	// works.
	ProgressBar bool
	Recorder    Recorder
	// Width reports the output width; nil means 80 columns.
	Width func() int
}

var (
	separatorStyle = lipgloss.NewStyle().Foreground(charmtone.Squid)
	clockStyle     = lipgloss.NewStyle().Foreground(charmtone.Squid).Italic(true)
	tokenStyle     = lipgloss.NewStyle().Foreground(charmtone.Guac).Bold(true)
	promptStyle    = lipgloss.NewStyle().Foreground(charmtone.Charple)
)

type REPL struct {
	session  Session
	agent    Agent
	opts     Options
	renderer *glamour.TermRenderer
	wait     float64

	lastTokens *int64
	now        func() time.Time
}

func New(session Session, ag Agent, opts Options) (*REPL, error) {
	if opts.Width == nil {
		opts.Width = func() int { return 80 }
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(styleName(opts.Skin, opts.Styled)),
		glamour.WithWordWrap(max(opts.Width(), 20)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &REPL{
		session:  session,
		agent:    ag,
		opts:     opts,
		renderer: renderer,
		wait:     (time.Duration(opts.WaitMS) * time.Millisecond).Seconds(),
		now:      time.Now,
	}, nil
}

func styleName(skin config.Skin, styled bool) string {
	switch skin {
	case config.SkinLight:
		return "light"
	case config.SkinDark:
		return "dark"
	}
	if styled {
		return "dark"
	}
	return "notty"
}

// Run prompts and processes lines until end of input, ":quit", or a
// cancelled context.
func (r *REPL) Run(ctx context.Context) error {
	slog.Info("Interactive mode: prompts go to agent; commands: :raw, :snap, :reset, :help, :quit")
	for {
		r.printPrompt()

		line, err := r.readLine(ctx)
		if line != "" {
			quit, perr := r.processLine(ctx, line)
			if perr != nil {
				return perr
			}
			if quit {
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// RunLine processes a single line as if it had been typed.
func (r *REPL) RunLine(ctx context.Context, line string) error {
	_, err := r.processLine(ctx, line)
	return err
}

func (r *REPL) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := r.opts.In.ReadString('\n')
		ch <- result{line, err}
	}()
	select {
	case res := <-ch:
		if res.err != nil && !errors.Is(res.err, io.EOF) {
			return "", fmt.Errorf("failed to read repl line: %w", res.err)
		}
		return res.line, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// processLine handles one line. Snapshot and reset failures are
// returned; agent and :raw failures are printed and the loop goes on.
func (r *REPL) processLine(ctx context.Context, line string) (quit bool, err error) {
	trimmed := strings.TrimRight(line, "\r\n")
	if trimmed != "" && r.opts.Recorder != nil {
		r.opts.Recorder.RecordUserInput(trimmed)
	}

	switch trimmed {
	case "":
		return false, nil
	case ":quit", ":q":
		return true, nil
	case ":help":
		fmt.Fprintln(r.opts.ErrOut, helpText)
		return false, nil
	case ":snap":
		return false, r.printSnapshot(ctx)
	case ":reset":
		if err := r.session.Reset(ctx); err != nil {
			return false, err
		}
		r.agent.Reset()
		r.lastTokens = nil
		return false, r.printSnapshot(ctx)
	}

	if strings.HasPrefix(trimmed, ":") {
		spec, ok := parsePrefixedArg(trimmed, ":raw")
		if !ok {
			fmt.Fprintf(r.opts.ErrOut, "command error: unknown command `%s`\n", trimmed)
			return false, nil
		}
		out, err := r.agent.SendRawInput(ctx, spec, r.wait)
		if err != nil {
			fmt.Fprintf(r.opts.ErrOut, "command error: %v\n", err)
			return false, nil
		}
		fmt.Fprintln(r.opts.Out, out)
		return false, nil
	}

	r.startProgress()
	resp, err := r.agent.Prompt(ctx, trimmed)
	r.stopProgress()
	if err != nil {
		fmt.Fprintf(r.opts.ErrOut, "agent error: %v\n", err)
		return false, nil
	}
	tokens := resp.TotalTokens
	r.lastTokens = &tokens
	r.printMarkdown(resp.Output)
	if r.opts.Recorder != nil {
		r.opts.Recorder.RecordAssistantResponse(resp.Output)
	}
	return false, nil
}

// parsePrefixedArg matches prefix alone (empty argument) or prefix
// followed by whitespace and the argument.
func parsePrefixedArg(line, prefix string) (string, bool) {
	if line == prefix {
		return "", true
	}
	rest, ok := strings.CutPrefix(line, prefix)
	if !ok {
		return "", false
	}
	first, _ := utf8.DecodeRuneInString(rest)
	if !unicode.IsSpace(first) {
		return "", false
	}
	return strings.TrimLeftFunc(rest, unicode.IsSpace), true
}

func (r *REPL) printSnapshot(ctx context.Context) error {
	snap, err := r.session.Snapshot(ctx)
	if err != nil {
		return err
	}
	switch {
	case r.opts.Verbosity > 1:
		slog.Debug("Snapshot", "size", fmt.Sprintf("%dx%d", snap.Cols, snap.Rows), "summary", snap.String())
	case r.opts.Verbosity > 0:
		slog.Info("Snapshot", "size", fmt.Sprintf("%dx%d", snap.Cols, snap.Rows), "summary", snap.String())
	}
	fmt.Fprintln(r.opts.Out, snap.Render())
	return nil
}

func (r *REPL) printMarkdown(md string) {
	out, err := r.renderer.Render(md)
	if err != nil {
		slog.Warn("Failed to render markdown", "error", err)
		out = md + "\n"
	}
	fmt.Fprint(r.opts.Out, out)
}

func (r *REPL) printPrompt() {
	separator := strings.Repeat("─", max(r.opts.Width(), 1))
	clock := r.now().Format("15:04:05")
	tokens := "n/a"
	if r.lastTokens != nil {
		tokens = humanize.Comma(*r.lastTokens)
	}
	arrow := "❯ "
	if r.opts.Styled {
		separator = separatorStyle.Render(separator)
		clock = clockStyle.Render(clock)
		tokens = tokenStyle.Render(tokens)
		arrow = promptStyle.Render("❯") + " "
	}
	fmt.Fprintf(r.opts.Out, "%s\n%s %s %s", separator, clock, tokens, arrow)
}

func (r *REPL) startProgress() {
	if r.opts.ProgressBar {
		fmt.Fprint(r.opts.ErrOut, ansi.SetIndeterminateProgressBar)
	}
}

func (r *REPL) stopProgress() {
	if r.opts.ProgressBar {
		fmt.Fprint(r.opts.ErrOut, ansi.ResetProgressBar)
	}
}
