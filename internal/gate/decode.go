package gate

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/CaptainPhantasy/gibberish/internal/validation"
)

// InputError reports a request that was rejected before anything was
// sent to the terminal. The caller can fix the input and try again.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string {
	return e.Msg
}

func inputErrorf(format string, args ...any) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// DecodeInput turns an escaped text spec into raw bytes. Supported
// escapes are \n, \r, \t, \\ and \xNN; any other character is copied as
// UTF-8.
func DecodeInput(spec string) ([]byte, error) {
	chars := []rune(spec)
	out := make([]byte, 0, len(spec))

	for i := 0; i < len(chars); i++ {
		if chars[i] != '\\' {
			out = utf8.AppendRune(out, chars[i])
			continue
		}

		i++
		if i >= len(chars) {
			return nil, inputErrorf("dangling trailing backslash in input: %s", strconv.Quote(spec))
		}
		switch chars[i] {
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case '\\':
			out = append(out, '\\')
		case 'x':
			if i+2 >= len(chars) {
				return nil, inputErrorf(`expected two hex digits after \x in input: %s`, strconv.Quote(spec))
			}
			hi, ok := hexDigit(chars[i+1])
			if !ok {
				return nil, inputErrorf(`invalid first hex digit in \xNN escape`)
			}
			lo, ok := hexDigit(chars[i+2])
			if !ok {
				return nil, inputErrorf(`invalid second hex digit in \xNN escape`)
			}
			out = append(out, hi<<4|lo)
			i += 2
		default:
			return nil, inputErrorf(`unsupported escape sequence: \%c`, chars[i])
		}
	}
	return out, nil
}

func hexDigit(r rune) (byte, bool) {
	switch {
	case r >= '0' && r <= '9':
		return byte(r - '0'), true
	case r >= 'a' && r <= 'f':
		return byte(r-'a') + 10, true
	case r >= 'A' && r <= 'F':
		return byte(r-'A') + 10, true
	}
	return 0, false
}

// RenderBytes returns a printable preview of b for confirmation prompts.
func RenderBytes(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		switch {
		case c == '\\':
			sb.WriteString(`\\`)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c >= 0x20 && c <= 0x7e:
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, `\x%02X`, c)
		}
	}
	return sb.String()
}

// ValidateWait checks a wait duration given in seconds.
func ValidateWait(seconds float64) error {
	if !validation.IsFinite(seconds) {
		return inputErrorf("float must be a finite number")
	}
	if seconds < 0 {
		return inputErrorf("float must be non-negative")
	}
	return nil
}
