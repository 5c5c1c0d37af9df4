// Package capture records a session transcript (user lines, tool calls
// with their resulting screens, assistant replies) and renders it as a
// single self-contained HTML page.
package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// TimestampLayout is used for every timestamp in the page.
const TimestampLayout = "2006-01-02 15:04:05.000 -07:00"

type eventKind int

const (
	eventUserInput eventKind = iota
	eventToolCall
	eventAssistantResponse
)

type event struct {
	kind      eventKind
	timestamp string
	// text is the user line, the params JSON or the markdown source.
	text     string
	tool     string
	snapshot string
}

// Capture is safe for concurrent use. A nil *Capture records nothing, so
// callers can hold one unconditionally.
type Capture struct {
	id        string
	mu        sync.Mutex
	startedAt string
	events    []event
	now       func() time.Time
}

func New() *Capture {
	c := &Capture{id: uuid.NewString(), now: time.Now}
	c.startedAt = c.timestamp()
	return c
}

func (c *Capture) ID() string {
	if c == nil {
		return ""
	}
	return c.id
}

func (c *Capture) timestamp() string {
	return c.now().Format(TimestampLayout)
}

func (c *Capture) push(e event) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e.timestamp = c.timestamp()
	c.events = append(c.events, e)
}

func (c *Capture) RecordUserInput(text string) {
	c.push(event{kind: eventUserInput, text: text})
}

// RecordToolCall stores params as indented JSON. Params that cannot be
// encoded are replaced by an object carrying the encoding error.
func (c *Capture) RecordToolCall(tool string, params any, snapshot string) {
	if c == nil {
		return
	}
	c.push(event{kind: eventToolCall, tool: tool, text: paramsJSON(params), snapshot: snapshot})
}

func (c *Capture) RecordAssistantResponse(markdown string) {
	c.push(event{kind: eventAssistantResponse, text: markdown})
}

func paramsJSON(params any) string {
	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		msg, _ := json.Marshal(err.Error())
		return "{\n  \"serialization_error\": " + string(msg) + "\n}"
	}
	return string(data)
}

// WriteHTML renders the transcript to path.
func (c *Capture) WriteHTML(path string) error {
	if c == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(c.RenderHTML()), 0o644); err != nil {
		return fmt.Errorf("failed to write session HTML to %s: %w", path, err)
	}
	slog.Info("Wrote session capture", "path", path, "id", c.id)
	return nil
}

// RenderHTML returns the full page. Every user supplied string is
// escaped; assistant replies are rendered from markdown.
func (c *Capture) RenderHTML() string {
	if c == nil {
		return ""
	}
	c.mu.Lock()
	startedAt := c.startedAt
	events := append([]event(nil), c.events...)
	c.mu.Unlock()

	var users, tools, assistant int
	for _, e := range events {
		switch e.kind {
		case eventUserInput:
			users++
		case eventToolCall:
			tools++
		case eventAssistantResponse:
			assistant++
		}
	}

	var b strings.Builder
	b.WriteString(pageHead)
	b.WriteString("      <h1>gibberish session capture</h1>\n")
	fmt.Fprintf(&b, "      <p><strong>Started:</strong> %s</p>\n", escapeHTML(startedAt))
	fmt.Fprintf(&b, "      <p><strong>Generated:</strong> %s</p>\n", escapeHTML(c.timestamp()))
	if c.id != "" {
		fmt.Fprintf(&b, "      <p><strong>Capture:</strong> %s</p>\n", escapeHTML(c.id))
	}
	fmt.Fprintf(&b, "      <p><strong>User inputs:</strong> %d | <strong>Tool calls:</strong> %d | <strong>Assistant responses:</strong> %d</p>\n",
		users, tools, assistant)
	b.WriteString("    </section>\n")

	for i, e := range events {
		n := i + 1
		switch e.kind {
		case eventUserInput:
			b.WriteString("    <section class=\"event user\">\n")
			fmt.Fprintf(&b, "      <h2>#%d User Input</h2>\n", n)
			fmt.Fprintf(&b, "      <div class=\"meta\">%s</div>\n", escapeHTML(e.timestamp))
			b.WriteString("      <span class=\"label\">Command</span>\n")
			fmt.Fprintf(&b, "      <pre>%s</pre>\n", escapeHTML(e.text))
		case eventToolCall:
			b.WriteString("    <section class=\"event tool\">\n")
			fmt.Fprintf(&b, "      <h2>#%d Tool Call: %s</h2>\n", n, escapeHTML(e.tool))
			fmt.Fprintf(&b, "      <div class=\"meta\">%s</div>\n", escapeHTML(e.timestamp))
			b.WriteString("      <span class=\"label\">Parameters</span>\n")
			fmt.Fprintf(&b, "      <pre>%s</pre>\n", escapeHTML(e.text))
			b.WriteString("      <span class=\"label\">Tool Response Snapshot</span>\n")
			fmt.Fprintf(&b, "      <pre>%s</pre>\n", escapeHTML(e.snapshot))
		case eventAssistantResponse:
			b.WriteString("    <section class=\"event assistant\">\n")
			fmt.Fprintf(&b, "      <h2>#%d Assistant Response</h2>\n", n)
			fmt.Fprintf(&b, "      <div class=\"meta\">%s</div>\n", escapeHTML(e.timestamp))
			b.WriteString("      <span class=\"label\">Rendered Markdown</span>\n")
			fmt.Fprintf(&b, "      <div class=\"assistant-body\">%s</div>\n", markdownToHTML(e.text))
		}
		b.WriteString("    </section>\n")
	}

	b.WriteString("  </main>\n</body>\n</html>\n")
	return b.String()
}

var (
	mdOnce sync.Once
	md     goldmark.Markdown
)

func markdownToHTML(src string) string {
	mdOnce.Do(func() {
		md = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		slog.Warn("Failed to render assistant markdown", "error", err)
		return "<pre>" + escapeHTML(src) + "</pre>"
	}
	return buf.String()
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&#39;",
	`"`, "&quot;",
)

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
