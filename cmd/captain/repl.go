package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/captain/config"
	"github.com/hupe1980/captain/core"
	"github.com/hupe1980/captain/render"
	"github.com/hupe1980/captain/tool"
)

const maxLineBytes = 1 << 20

type chatFunc func(ctx context.Context, message string) <-chan core.Event

type replOptions struct {
	// Workspace is the directory shell commands run in.
	Workspace    string
	ShellTimeout time.Duration
	Prompts      map[string]config.PromptTemplate
	// HistoryFile receives every submitted line; empty disables it.
	HistoryFile string
}

// repl reads one line at a time, runs prompt commands and renders the turn a
// chat message starts.
type repl struct {
	in       io.Reader
	out      io.Writer
	chat     chatFunc
	renderer *render.Renderer
	opts     replOptions
	history  *history

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newREPL(in io.Reader, out io.Writer, chat chatFunc, r *render.Renderer, optFns ...func(o *replOptions)) (*repl, error) {
	opts := replOptions{Workspace: "."}
	for _, fn := range optFns {
		fn(&opts)
	}
	h, err := newHistory(opts.HistoryFile)
	if err != nil {
		return nil, err
	}
	return &repl{in: in, out: out, chat: chat, renderer: r, opts: opts, history: h}, nil
}

// interrupt cancels the running turn. It reports false when no turn runs.
func (r *repl) interrupt() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

func (r *repl) run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r.in)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		if _, err := fmt.Fprint(r.out, "\n> "); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return r.goodbye()
		case line, ok := <-lines:
			if !ok {
				return r.goodbye()
			}
			cmd := parseCommand(line)
			if cmd.kind == cmdEmpty {
				continue
			}
			if err := r.history.add(strings.TrimSpace(line)); err != nil {
				if err := r.renderer.Warning("history not saved: " + err.Error()); err != nil {
					return err
				}
			}
			if cmd.kind == cmdExit {
				return r.goodbye()
			}
			if err := r.handle(ctx, cmd); err != nil {
				return err
			}
		}
	}
}

func (r *repl) handle(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case cmdShell:
		if cmd.text == "" {
			return r.renderer.Warning("Please provide a command after '!'")
		}
		out, err := tool.RunShell(ctx, r.opts.Workspace, cmd.text, r.opts.ShellTimeout)
		if err != nil {
			out = "Error: " + err.Error()
		}
		return r.renderer.Shell(cmd.text, out)
	case cmdListPrompts:
		names := make([]string, 0, len(r.opts.Prompts))
		for name := range r.opts.Prompts {
			names = append(names, name)
		}
		sort.Strings(names)
		infos := make([]render.PromptInfo, len(names))
		for i, name := range names {
			infos[i] = render.PromptInfo{Name: name, Description: r.opts.Prompts[name].Description}
		}
		return r.renderer.Prompts(infos)
	case cmdPrompt:
		tpl, ok := r.opts.Prompts[cmd.name]
		if !ok {
			return r.renderer.Warning(fmt.Sprintf("Unknown template: %s (use /list to see available templates)", cmd.name))
		}
		message, err := expandPrompt(tpl, cmd.text)
		if err != nil {
			return r.renderer.Warning(err.Error())
		}
		if err := r.renderer.Notice("📝 Prompt: " + cmd.name); err != nil {
			return err
		}
		return r.turn(ctx, message)
	default:
		return r.turn(ctx, cmd.text)
	}
}

func (r *repl) turn(ctx context.Context, message string) error {
	turnCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
		cancel()
	}()

	if _, err := fmt.Fprintln(r.out); err != nil {
		return err
	}
	if err := r.renderer.Run(turnCtx, r.chat(turnCtx, message)); err != nil {
		return err
	}
	if turnCtx.Err() != nil && ctx.Err() == nil {
		return r.renderer.Notice("⚠️  Interrupted")
	}
	return nil
}

func (r *repl) goodbye() error {
	return r.renderer.Notice("👋 Goodbye!")
}
