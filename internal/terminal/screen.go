package terminal

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/vt"
)

// screen is the virtual terminal state for one shell instance. Output
// bytes from the PTY are fed into a vt emulator which keeps the
// visible grid and cursor; only the visible grid is ever read back.
//
// screen is owned by the session worker. The only concurrent access is
// the reply pump, which collects the emulator's answers to terminal
// queries (device attributes, cursor reports) so the worker can forward
// them to the PTY on its next iteration.
type screen struct {
	emu  *vt.SafeEmulator
	cols int
	rows int

	// carry holds a trailing partial UTF-8 sequence between feeds.
	carry []byte

	mu            sync.Mutex
	cursorVisible bool
	replies       []byte

	pumpDone chan struct{}
}

func newScreen(cols, rows int) *screen {
	s := &screen{
		emu:           vt.NewSafeEmulator(cols, rows),
		cols:          cols,
		rows:          rows,
		cursorVisible: true,
		pumpDone:      make(chan struct{}),
	}
	s.emu.SetCallbacks(vt.Callbacks{
		CursorVisibility: func(visible bool) {
			s.mu.Lock()
			s.cursorVisible = visible
			s.mu.Unlock()
		},
	})

	// The emulator writes replies to an internal pipe and Write blocks
	// until somebody reads them.
	go s.pumpReplies()
	return s
}

func (s *screen) pumpReplies() {
	defer close(s.pumpDone)
	buf := make([]byte, 4096)
	for {
		n, err := s.emu.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.replies = append(s.replies, buf[:n]...)
			s.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// takeReplies returns and clears pending emulator replies.
func (s *screen) takeReplies() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replies) == 0 {
		return nil
	}
	out := s.replies
	s.replies = nil
	return out
}

// feed decodes a chunk of PTY output as best-effort UTF-8 and writes it
// to the emulator. Invalid sequences become U+FFFD; a sequence split
// across reads is held back until the rest arrives.
func (s *screen) feed(chunk []byte) {
	data := chunk
	if len(s.carry) > 0 {
		data = append(s.carry, chunk...)
		s.carry = nil
	}

	if tail := incompleteSuffix(data); tail > 0 {
		s.carry = append([]byte(nil), data[len(data)-tail:]...)
		data = data[:len(data)-tail]
	}
	if len(data) == 0 {
		return
	}
	_, _ = s.emu.Write(bytes.ToValidUTF8(data, []byte("�")))
}

// incompleteSuffix reports how many trailing bytes form the start of a
// multi-byte sequence that is not finished yet.
func incompleteSuffix(p []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(p); i++ {
		b := p[len(p)-i]
		if utf8.RuneStart(b) {
			if b >= utf8.RuneSelf && !utf8.FullRune(p[len(p)-i:]) {
				return i
			}
			return 0
		}
	}
	return 0
}

func (s *screen) snapshot() Snapshot {
	lines := make([]string, s.rows)
	for y := range s.rows {
		lines[y] = s.line(y)
	}

	snap := Snapshot{Cols: s.cols, Rows: s.rows, Lines: lines}

	s.mu.Lock()
	visible := s.cursorVisible
	s.mu.Unlock()
	if visible {
		pos := s.emu.CursorPosition()
		snap.Cursor = &Cursor{Col: pos.X, Row: pos.Y}
	}
	return snap
}

// line returns row y as plain text, one entry per occupied cell. The
// trailing cells of wide characters are skipped.
func (s *screen) line(y int) string {
	var b strings.Builder
	skip := 0
	for x := range s.cols {
		c := s.emu.CellAt(x, y)
		switch {
		case c == nil:
			b.WriteByte(' ')
		case c.Content == "":
			if skip > 0 {
				skip--
				continue
			}
			b.WriteByte(' ')
		default:
			b.WriteString(c.Content)
			skip = wideTail(c)
		}
	}
	return b.String()
}

func wideTail(c *uv.Cell) int {
	if c.Width > 1 {
		return c.Width - 1
	}
	return 0
}

// close ends the reply pump before closing the emulator. Emulator.Read
// is not synchronized with Close, so the pump must be out of Read first.
func (s *screen) close() {
	if pw, ok := s.emu.InputPipe().(io.Closer); ok {
		_ = pw.Close()
		<-s.pumpDone
	}
	_ = s.emu.Close()
}
