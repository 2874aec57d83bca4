// Package render draws a turn's event sequence on a terminal.
//
// The Renderer is the client side of the event contract: it buffers thinking
// and answer fragments into panels, pairs tool calls with their results by id
// (buffering whichever side arrives first), frames sub-agent activity and
// shows errors. It never looks at raw engine payloads.
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/hupe1980/captain/core"
)

// DefaultMaxResultLen is the number of characters of a tool result shown
// before it is truncated.
const DefaultMaxResultLen = 1000

const (
	defaultWidth = 100
	minWidth     = 40
	truncatedTag = "\n... (truncated)"
)

// Options configures a Renderer.
type Options struct {
	// Out receives the rendered output. Defaults to os.Stdout.
	Out io.Writer
	// Width is the panel width. Zero detects the terminal width of Out.
	Width int
	// Markdown renders answers through glamour.
	Markdown bool
	// MarkdownStyle is a glamour standard style name. Empty selects the
	// style from the terminal background.
	MarkdownStyle string
	// MaxResultLen caps tool result text. Zero means DefaultMaxResultLen.
	MaxResultLen int
}

type pendingCall struct {
	name     string
	args     string
	subAgent string
}

type pendingResult struct {
	name     string
	content  string
	subAgent string
}

// Renderer consumes the events of one or more turns. It is not safe for
// concurrent use; a REPL drives it from a single goroutine.
type Renderer struct {
	out          io.Writer
	width        int
	md           *glamour.TermRenderer
	maxResultLen int

	calls   map[string]pendingCall
	results map[string]pendingResult

	// text buffers of the speaker currently talking; owner is "" for root.
	owner    string
	thinking strings.Builder
	answer   strings.Builder
}

// New creates a Renderer.
func New(optFns ...func(o *Options)) (*Renderer, error) {
	opts := Options{Out: os.Stdout, Markdown: true}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.MaxResultLen <= 0 {
		opts.MaxResultLen = DefaultMaxResultLen
	}
	width := opts.Width
	if width <= 0 {
		width = detectWidth(opts.Out)
	}
	if width < minWidth {
		width = minWidth
	}

	r := &Renderer{
		out:          opts.Out,
		width:        width,
		maxResultLen: opts.MaxResultLen,
		calls:        make(map[string]pendingCall),
		results:      make(map[string]pendingResult),
	}

	if opts.Markdown {
		style := glamour.WithAutoStyle()
		if opts.MarkdownStyle != "" {
			style = glamour.WithStandardStyle(opts.MarkdownStyle)
		}
		md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width-4))
		if err != nil {
			return nil, fmt.Errorf("create markdown renderer: %w", err)
		}
		r.md = md
	}
	return r, nil
}

func detectWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}

// Width returns the panel width in use.
func (r *Renderer) Width() int { return r.width }

// Render draws one event. Text fragments are buffered and drawn once the
// speaker changes or the turn is flushed.
func (r *Renderer) Render(ev core.Event) error {
	switch ev.Type {
	case core.EventModelThinking, core.EventSubAgentThinking:
		if err := r.switchOwner(ev.SubAgent); err != nil {
			return err
		}
		if r.answer.Len() > 0 {
			if err := r.flushText(); err != nil {
				return err
			}
		}
		r.thinking.WriteString(ev.Content)
		return nil

	case core.EventModelAnswer, core.EventSubAgentAnswer:
		if err := r.switchOwner(ev.SubAgent); err != nil {
			return err
		}
		if r.thinking.Len() > 0 {
			if err := r.flushThinking(); err != nil {
				return err
			}
		}
		r.answer.WriteString(ev.Content)
		return nil

	case core.EventToolCall, core.EventSubAgentToolCall:
		if err := r.flushText(); err != nil {
			return err
		}
		return r.onCall(ev)

	case core.EventToolResult, core.EventSubAgentToolResult:
		if err := r.flushText(); err != nil {
			return err
		}
		return r.onResult(ev)

	case core.EventSubAgentStart:
		if err := r.flushText(); err != nil {
			return err
		}
		body := labelStyle.Render("Task: ") + ev.Task
		return r.print(panel(r.width, subAgentColor, "🤖 Sub-agent: "+ev.SubAgent, body))

	case core.EventSubAgentEnd:
		if err := r.flushText(); err != nil {
			return err
		}
		return r.print(panel(r.width, subAgentColor, "🏁 "+ev.SubAgent+" - Complete", r.truncate(ev.Content)))

	case core.EventError:
		if err := r.flushText(); err != nil {
			return err
		}
		return r.print(panel(r.width, errorColor, "❌ Error", ev.Content))
	}
	return nil
}

// Run renders every event received on ch and flushes when the channel is
// closed or ctx is done.
func (r *Renderer) Run(ctx context.Context, ch <-chan core.Event) error {
	for {
		select {
		case <-ctx.Done():
			return r.Flush()
		case ev, ok := <-ch:
			if !ok {
				return r.Flush()
			}
			if err := r.Render(ev); err != nil {
				return err
			}
		}
	}
}

// Flush draws buffered text and any tool call or result whose counterpart
// never arrived, then resets the per-turn state.
func (r *Renderer) Flush() error {
	if err := r.flushText(); err != nil {
		return err
	}
	for _, id := range sortedKeys(r.calls) {
		c := r.calls[id]
		body := toolHeader(c.name, c.args) + "\n\n" + warnStyle.Render("⚠ no result received")
		if err := r.print(panel(r.width, warnColor, titleFor(c.subAgent, "🔧 "+c.name+" - Incomplete"), body)); err != nil {
			return err
		}
	}
	for _, id := range sortedKeys(r.results) {
		res := r.results[id]
		body := resultLabel.Render("✅ Result:") + "\n" + resultStyle.Render(res.content)
		if err := r.print(panel(r.width, warnColor, titleFor(res.subAgent, "🔧 "+res.name+" - Unmatched result"), body)); err != nil {
			return err
		}
	}
	r.Reset()
	return nil
}

// Reset drops all per-turn state without drawing it.
func (r *Renderer) Reset() {
	r.calls = make(map[string]pendingCall)
	r.results = make(map[string]pendingResult)
	r.thinking.Reset()
	r.answer.Reset()
	r.owner = ""
}

func (r *Renderer) onCall(ev core.Event) error {
	c := pendingCall{name: ev.Name, args: formatArgs(ev.Args), subAgent: ev.SubAgent}
	if res, ok := r.results[ev.ID]; ok {
		delete(r.results, ev.ID)
		return r.printComplete(c, res.content)
	}
	r.calls[ev.ID] = c
	// A root call that is not pending is immediately followed by its result.
	if ev.Type == core.EventToolCall && !ev.Pending {
		return nil
	}
	body := toolHeader(c.name, c.args) + "\n\n" + processingStyle.Render("⏳ Processing...")
	return r.print(panel(r.width, callColor, titleFor(c.subAgent, "🔧 Tool Call: "+c.name), body))
}

func (r *Renderer) onResult(ev core.Event) error {
	content := r.truncate(ev.Content)
	if c, ok := r.calls[ev.ID]; ok {
		delete(r.calls, ev.ID)
		return r.printComplete(c, content)
	}
	r.results[ev.ID] = pendingResult{name: ev.Name, content: content, subAgent: ev.SubAgent}
	return nil
}

func (r *Renderer) printComplete(c pendingCall, content string) error {
	body := toolHeader(c.name, c.args) + "\n\n" + resultLabel.Render("✅ Result:") + "\n" + resultStyle.Render(content)
	return r.print(panel(r.width, doneColor, titleFor(c.subAgent, "✅ "+c.name+" - Complete"), body))
}

func (r *Renderer) switchOwner(owner string) error {
	if owner == r.owner {
		return nil
	}
	if err := r.flushText(); err != nil {
		return err
	}
	r.owner = owner
	return nil
}

func (r *Renderer) flushText() error {
	if err := r.flushThinking(); err != nil {
		return err
	}
	if r.answer.Len() == 0 {
		return nil
	}
	text := r.answer.String()
	r.answer.Reset()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return r.print(panel(r.width, doneColor, titleFor(r.owner, "💬 Answer"), r.markdown(text)))
}

func (r *Renderer) flushThinking() error {
	if r.thinking.Len() == 0 {
		return nil
	}
	text := r.thinking.String()
	r.thinking.Reset()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return r.print(panel(r.width, thinkingColor, titleFor(r.owner, "🤔 Thinking"), strings.TrimSpace(text)))
}

func (r *Renderer) markdown(text string) string {
	if r.md == nil {
		return strings.TrimSpace(text)
	}
	out, err := r.md.Render(text)
	if err != nil {
		return strings.TrimSpace(text)
	}
	lines := strings.Split(out, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

func (r *Renderer) truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= r.maxResultLen {
		return s
	}
	return string(runes[:r.maxResultLen]) + truncatedTag
}

func (r *Renderer) print(s string) error {
	_, err := lipgloss.Fprintln(r.out, s)
	return err
}

func titleFor(subAgent, title string) string {
	if subAgent == "" {
		return title
	}
	return subAgent + " › " + title
}

func toolHeader(name, args string) string {
	return toolNameStyle.Render("🔧 "+name) + "\n" + labelStyle.Render("Args: ") + argsStyle.Render(args)
}

func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return fmt.Sprint(args)
	}
	return string(b)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
