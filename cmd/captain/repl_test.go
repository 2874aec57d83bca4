package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/captain/config"
	"github.com/hupe1980/captain/core"
	"github.com/hupe1980/captain/render"
)

type recordingChat struct {
	mu       sync.Mutex
	messages []string
}

func (c *recordingChat) chat(_ context.Context, msg string) <-chan core.Event {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	ch := make(chan core.Event, 1)
	ch <- core.NewModelAnswerEvent("echo: " + msg)
	close(ch)
	return ch
}

func newTestREPL(t *testing.T, input string, chat chatFunc, optFns ...func(o *replOptions)) (*repl, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	r, err := render.New(func(o *render.Options) {
		o.Out = &out
		o.Width = 80
		o.Markdown = false
	})
	require.NoError(t, err)
	rp, err := newREPL(strings.NewReader(input), &out, chat, r, optFns...)
	require.NoError(t, err)
	return rp, &out
}

func TestREPL_RunsTurnsUntilQuit(t *testing.T) {
	rc := &recordingChat{}
	rp, out := newTestREPL(t, "hello\n\n   \nsecond\nQUIT\nignored\n", rc.chat)

	require.NoError(t, rp.run(context.Background()))

	assert.Equal(t, []string{"hello", "second"}, rc.messages)
	assert.Contains(t, out.String(), "echo: hello")
	assert.Contains(t, out.String(), "echo: second")
	assert.Contains(t, out.String(), "Goodbye!")
}

func TestREPL_EndsOnEOF(t *testing.T) {
	rc := &recordingChat{}
	rp, out := newTestREPL(t, "only", rc.chat)

	require.NoError(t, rp.run(context.Background()))
	assert.Equal(t, []string{"only"}, rc.messages)
	assert.Contains(t, out.String(), "Goodbye!")
}

func TestREPL_InterruptCancelsTurn(t *testing.T) {
	started := make(chan struct{})
	blocking := func(ctx context.Context, _ string) <-chan core.Event {
		ch := make(chan core.Event)
		go func() {
			defer close(ch)
			close(started)
			<-ctx.Done()
		}()
		return ch
	}
	rp, out := newTestREPL(t, "long task\n", blocking)
	assert.False(t, rp.interrupt(), "no turn is running yet")

	done := make(chan error, 1)
	go func() { done <- rp.run(context.Background()) }()

	<-started
	require.Eventually(t, rp.interrupt, time.Second, 5*time.Millisecond)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("repl did not finish")
	}
	assert.Contains(t, out.String(), "Interrupted")
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want command
	}{
		{"   ", command{kind: cmdEmpty}},
		{"Q", command{kind: cmdExit}},
		{"exit", command{kind: cmdExit}},
		{"!ls -la", command{kind: cmdShell, text: "ls -la"}},
		{"shell  pwd", command{kind: cmdShell, text: "pwd"}},
		{"shellfish recipes", command{kind: cmdChat, text: "shellfish recipes"}},
		{"/list", command{kind: cmdListPrompts}},
		{"/review main.go  ", command{kind: cmdPrompt, name: "review", text: "main.go"}},
		{"/", command{kind: cmdChat, text: "/"}},
		{" what is 2+2? ", command{kind: cmdChat, text: "what is 2+2?"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCommand(tt.line))
		})
	}
}

func TestExpandPrompt(t *testing.T) {
	out, err := expandPrompt(config.PromptTemplate{Template: "Review {{.Input}} ({{len .Args}} files)"}, "a.go b.go")
	require.NoError(t, err)
	assert.Equal(t, "Review a.go b.go (2 files)", out)

	out, err = expandPrompt(config.PromptTemplate{Template: "Summarize the repo.\n"}, "briefly")
	require.NoError(t, err)
	assert.Equal(t, "Summarize the repo.\n\nbriefly", out)

	out, err = expandPrompt(config.PromptTemplate{Template: "Summarize the repo."}, "")
	require.NoError(t, err)
	assert.Equal(t, "Summarize the repo.", out)

	_, err = expandPrompt(config.PromptTemplate{Template: "{{.Input"}, "x")
	assert.Error(t, err)
}

func TestREPL_PromptTemplates(t *testing.T) {
	rc := &recordingChat{}
	prompts := map[string]config.PromptTemplate{
		"review": {Description: "Review a file", Template: "Please review {{.Input}}."},
	}
	rp, out := newTestREPL(t, "/list\n/review main.go\n/missing x\nexit\n", rc.chat, func(o *replOptions) {
		o.Prompts = prompts
	})

	require.NoError(t, rp.run(context.Background()))

	assert.Equal(t, []string{"Please review main.go."}, rc.messages)
	text := out.String()
	assert.Contains(t, text, "/review")
	assert.Contains(t, text, "Review a file")
	assert.Contains(t, text, "Prompt: review")
	assert.Contains(t, text, "Unknown template: missing")
}

func TestREPL_ShellPassthrough(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix shell required")
	}
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "marker.txt"), []byte("x"), 0o600))

	rc := &recordingChat{}
	rp, out := newTestREPL(t, "!ls\n!\nshell exit 3\nq\n", rc.chat, func(o *replOptions) {
		o.Workspace = ws
	})

	require.NoError(t, rp.run(context.Background()))

	assert.Empty(t, rc.messages, "shell commands never reach the model")
	text := out.String()
	assert.Contains(t, text, "$ ls")
	assert.Contains(t, text, "marker.txt")
	assert.Contains(t, text, "Please provide a command")
	assert.Contains(t, text, "Error: command failed with code 3")
}

func TestREPL_HistoryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".captain", "history.txt")
	rc := &recordingChat{}
	rp, _ := newTestREPL(t, "hello\n\n/list\nquit\n", rc.chat, func(o *replOptions) {
		o.HistoryFile = path
	})

	require.NoError(t, rp.run(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n/list\nquit\n", string(data))
}
