package terminal

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// CursorMarker replaces the character under the cursor in rendered
// snapshots.
const CursorMarker = '▮'

// Cursor is a zero-based cell position on the visible grid.
type Cursor struct {
	Col int
	Row int
}

// Snapshot is a point-in-time copy of the visible screen. It is built
// fresh for every request and never mutated afterwards.
type Snapshot struct {
	Cols int
	Rows int
	// Cursor is nil when the cursor is hidden.
	Cursor *Cursor
	// Lines may hold fewer than Rows entries.
	Lines []string
}

// Render turns the snapshot into the text handed to the agent: the
// visible rows with trailing whitespace removed, the cursor cell
// replaced by CursorMarker, and a footer line describing the cursor.
//
// The output is byte-stable for identical snapshots.
func (s Snapshot) Render() string {
	rendered := make([]string, len(s.Lines))
	for i, line := range s.Lines {
		rendered[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}

	footer := `Cursor info: row=-, col=-, char=""`
	if s.Cursor != nil {
		col, row := max(s.Cursor.Col, 0), max(s.Cursor.Row, 0)

		under := ' '
		if row < len(s.Lines) {
			if r, ok := runeAt(s.Lines[row], col); ok {
				under = r
			}
		}

		for len(rendered) <= row {
			rendered = append(rendered, "")
		}
		cells := []rune(rendered[row])
		for len(cells) <= col {
			cells = append(cells, ' ')
		}
		cells[col] = CursorMarker
		rendered[row] = string(cells)

		footer = fmt.Sprintf(`Cursor info: row=%d, col=%d, char="%s"`, row, col, escapeChar(under))
	}

	var b strings.Builder
	b.WriteString(strings.Join(rendered, "\n"))
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	b.WriteString(footer)
	return b.String()
}

// String implements fmt.Stringer with a one-line summary used in logs.
func (s Snapshot) String() string {
	cursor := "hidden"
	if s.Cursor != nil {
		cursor = fmt.Sprintf("(%d,%d)", s.Cursor.Col, s.Cursor.Row)
	}
	return fmt.Sprintf("%dx%d cursor=%s lines=%d", s.Cols, s.Rows, cursor, len(s.Lines))
}

func runeAt(line string, idx int) (rune, bool) {
	i := 0
	for _, r := range line {
		if i == idx {
			return r, true
		}
		i++
	}
	return 0, false
}

// escapeChar makes a single character safe to embed in the footer's
// double-quoted field. Printable ASCII passes through, quotes and
// backslashes are escaped, common controls use their short form and
// everything else becomes \u{hex}.
func escapeChar(r rune) string {
	switch r {
	case '\t':
		return `\t`
	case '\r':
		return `\r`
	case '\n':
		return `\n`
	case '\\':
		return `\\`
	case '\'':
		return `\'`
	case '"':
		return `\"`
	}
	if r >= 0x20 && r <= 0x7e {
		return string(r)
	}
	return `\u{` + strconv.FormatInt(int64(r), 16) + `}`
}
