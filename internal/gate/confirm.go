package gate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

var bannerStyle = lipgloss.NewStyle().Foreground(charmtone.Dolly).Bold(true)

// PromptConfirmer asks on a terminal. It shares its reader with the REPL
// so buffered input is never lost between the two.
type PromptConfirmer struct {
	in     *bufio.Reader
	out    io.Writer
	styled bool
}

func NewPromptConfirmer(in *bufio.Reader, out io.Writer, styled bool) *PromptConfirmer {
	return &PromptConfirmer{in: in, out: out, styled: styled}
}

// Confirm prints the request and reads one answer line. Only "y" and
// "yes" approve; end of input denies. The read runs on its own
// goroutine so a cancelled context does not wait for the human.
func (p *PromptConfirmer) Confirm(ctx context.Context, req Request) (bool, error) {
	banner := "approval required for LLM tool call"
	if p.styled {
		banner = bannerStyle.Render(banner)
	}
	fmt.Fprintf(p.out, "\n%s\ntool: %s\ninput: %s\nbytes: %s\n", banner, req.Tool, req.Spec, RenderBytes(req.Bytes))
	fmt.Fprint(p.out, "allow sending these bytes to the shell? [y/N]: ")

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		if err == io.EOF {
			err = nil
		}
		ch <- answer{line, err}
	}()

	select {
	case a := <-ch:
		if a.err != nil {
			return false, fmt.Errorf("failed to read confirmation response: %w", a.err)
		}
		return isYes(a.line), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	}
	return false
}
