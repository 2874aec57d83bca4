package render

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/captain/core"
)

func newTestRenderer(t *testing.T, optFns ...func(o *Options)) (*Renderer, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	fns := append([]func(o *Options){func(o *Options) {
		o.Out = &buf
		o.Width = 100
		o.Markdown = false
	}}, optFns...)
	r, err := New(fns...)
	require.NoError(t, err)
	return r, &buf
}

func renderAll(t *testing.T, r *Renderer, events ...core.Event) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, r.Render(ev))
	}
	require.NoError(t, r.Flush())
}

func TestRenderer_PendingCallThenResult(t *testing.T) {
	r, buf := newTestRenderer(t)
	renderAll(t, r,
		core.NewToolCallEvent("search", "1", map[string]any{"q": "go"}, true),
		core.NewToolResultEvent("search", "1", "ok"),
	)

	out := buf.String()
	assert.Contains(t, out, "Tool Call: search")
	assert.Contains(t, out, "Processing...")
	assert.Contains(t, out, "search - Complete")
	assert.Contains(t, out, `"q": "go"`)
	assert.Less(t, strings.Index(out, "Processing..."), strings.Index(out, "search - Complete"))
}

func TestRenderer_CompletedPairSkipsProvisionalPanel(t *testing.T) {
	r, buf := newTestRenderer(t)
	renderAll(t, r,
		core.NewToolCallEvent("search", "2", nil, false),
		core.NewToolResultEvent("search", "2", "x"),
	)

	out := buf.String()
	assert.NotContains(t, out, "Processing...")
	assert.Equal(t, 1, strings.Count(out, "search - Complete"))
}

func TestRenderer_BuffersResultUntilCall(t *testing.T) {
	r, buf := newTestRenderer(t)
	require.NoError(t, r.Render(core.NewSubAgentToolResultEvent("researcher", "fetch_url", "5", "page")))
	assert.Empty(t, buf.String())

	renderAll(t, r, core.NewSubAgentToolCallEvent("researcher", "fetch_url", "5", map[string]any{"url": "http://x"}))
	out := buf.String()
	assert.Contains(t, out, "researcher › ✅ fetch_url - Complete")
	assert.NotContains(t, out, "Processing...")
}

func TestRenderer_ThinkingThenAnswer(t *testing.T) {
	r, buf := newTestRenderer(t)
	renderAll(t, r,
		core.NewModelThinkingEvent("let me "),
		core.NewModelThinkingEvent("think"),
		core.NewModelAnswerEvent("Hello "),
		core.NewModelAnswerEvent("world"),
	)

	out := buf.String()
	assert.Contains(t, out, "let me think")
	assert.Contains(t, out, "Hello world")
	assert.Less(t, strings.Index(out, "Thinking"), strings.Index(out, "Answer"))
}

func TestRenderer_SubAgentFraming(t *testing.T) {
	r, buf := newTestRenderer(t)
	renderAll(t, r,
		core.NewSubAgentStartEvent("researcher", "find X", "9"),
		core.NewSubAgentAnswerEvent("researcher", "found it"),
		core.NewSubAgentEndEvent("researcher", "9", "done"),
		core.NewModelAnswerEvent("summary"),
	)

	out := buf.String()
	start := strings.Index(out, "Sub-agent: researcher")
	answer := strings.Index(out, "researcher › 💬 Answer")
	end := strings.Index(out, "researcher - Complete")
	root := strings.Index(out, "summary")
	require.True(t, start >= 0 && answer >= 0 && end >= 0 && root >= 0, out)
	assert.Less(t, start, answer)
	assert.Less(t, answer, end)
	assert.Less(t, end, root)
	assert.Contains(t, out, "Task: find X")
}

func TestRenderer_ErrorPanel(t *testing.T) {
	r, buf := newTestRenderer(t)
	renderAll(t, r, core.NewErrorEvent("boom"))

	assert.Contains(t, buf.String(), "Error")
	assert.Contains(t, buf.String(), "boom")
}

func TestRenderer_FlushReportsDanglingAndResets(t *testing.T) {
	r, buf := newTestRenderer(t)
	require.NoError(t, r.Render(core.NewToolCallEvent("shell_exec", "7", nil, true)))
	require.NoError(t, r.Render(core.NewToolResultEvent("fetch_url", "8", "orphan")))
	require.NoError(t, r.Flush())

	out := buf.String()
	assert.Contains(t, out, "shell_exec - Incomplete")
	assert.Contains(t, out, "fetch_url - Unmatched result")
	assert.Empty(t, r.calls)
	assert.Empty(t, r.results)
}

func TestRenderer_Truncate(t *testing.T) {
	r, _ := newTestRenderer(t, func(o *Options) { o.MaxResultLen = 10 })

	assert.Equal(t, "short", r.truncate("short"))
	assert.Equal(t, "0123456789"+truncatedTag, r.truncate("0123456789abc"))
	assert.Equal(t, "ääääääääää"+truncatedTag, r.truncate(strings.Repeat("ä", 12)))
}

func TestRenderer_DefaultResultLimit(t *testing.T) {
	r, _ := newTestRenderer(t)

	got := r.truncate(strings.Repeat("a", 1500))
	assert.True(t, strings.HasSuffix(got, truncatedTag))
	assert.Len(t, strings.TrimSuffix(got, truncatedTag), DefaultMaxResultLen)
}

func TestRenderer_Markdown(t *testing.T) {
	r, buf := newTestRenderer(t, func(o *Options) {
		o.Markdown = true
		o.MarkdownStyle = "notty"
	})
	renderAll(t, r, core.NewModelAnswerEvent("## Title\n\nsome *text*"))

	out := buf.String()
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "text")
}

func TestRenderer_Run(t *testing.T) {
	r, buf := newTestRenderer(t)
	ch := make(chan core.Event, 2)
	ch <- core.NewModelAnswerEvent("hi")
	ch <- core.NewErrorEvent("late failure")
	close(ch)

	require.NoError(t, r.Run(context.Background(), ch))
	assert.Contains(t, buf.String(), "hi")
	assert.Contains(t, buf.String(), "late failure")
}

func TestRenderer_Banner(t *testing.T) {
	r, buf := newTestRenderer(t)
	require.NoError(t, r.Banner(BannerInfo{
		Model:      "gpt-4o",
		Tools:      []string{"shell_exec", "read_image"},
		Workspace:  "/tmp/ws",
		Checkpoint: "/tmp/ws/.captain/checkpoint.db",
	}))

	out := buf.String()
	assert.Contains(t, out, "gpt-4o")
	assert.Contains(t, out, "2 loaded")
	assert.Contains(t, out, "read_image")
	assert.NotContains(t, out, "Prompts")
}

func TestRenderer_ShellAndPrompts(t *testing.T) {
	r, buf := newTestRenderer(t)
	require.NoError(t, r.Shell("ls", "a.txt"))
	require.NoError(t, r.Prompts([]PromptInfo{{Name: "review", Description: "Review a file"}, {Name: "explain"}}))
	require.NoError(t, r.Warning("unknown prompt template"))

	out := buf.String()
	assert.Contains(t, out, "$ ls")
	assert.Contains(t, out, "a.txt")
	assert.Contains(t, out, "/review")
	assert.Contains(t, out, "Review a file")
	assert.Contains(t, out, "/explain")
	assert.Contains(t, out, "unknown prompt template")

	buf.Reset()
	require.NoError(t, r.Prompts(nil))
	assert.Contains(t, buf.String(), "No prompt templates configured.")
}

func TestDetectWidth_NonTerminal(t *testing.T) {
	assert.Equal(t, defaultWidth, detectWidth(&bytes.Buffer{}))
}
