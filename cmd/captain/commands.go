package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/captain/config"
	"github.com/hupe1980/captain/internal/util"
)

type commandKind int

const (
	cmdEmpty commandKind = iota
	cmdExit
	cmdShell
	cmdListPrompts
	cmdPrompt
	cmdChat
)

// command is one parsed prompt line.
type command struct {
	kind commandKind
	// text is the shell command, the template arguments or the chat message.
	text string
	// name is the template name of a cmdPrompt.
	name string
}

// parseCommand classifies a line typed at the prompt:
//
//	exit, quit, q      end the session
//	!<cmd>, shell <cmd> run a shell command in the workspace
//	/list              list the prompt templates
//	/<name> [args]     expand a prompt template and send it
//
// Everything else is a chat message.
func parseCommand(line string) command {
	line = strings.TrimSpace(line)
	lower := strings.ToLower(line)
	switch {
	case line == "":
		return command{kind: cmdEmpty}
	case lower == "exit" || lower == "quit" || lower == "q":
		return command{kind: cmdExit}
	case strings.HasPrefix(line, "!"):
		return command{kind: cmdShell, text: strings.TrimSpace(line[1:])}
	case lower == "shell" || strings.HasPrefix(lower, "shell "):
		return command{kind: cmdShell, text: strings.TrimSpace(line[len("shell"):])}
	case strings.HasPrefix(line, "/") && len(line) > 1:
		name, args, _ := strings.Cut(line[1:], " ")
		if name == config.ListPromptsCommand {
			return command{kind: cmdListPrompts}
		}
		return command{kind: cmdPrompt, name: name, text: strings.TrimSpace(args)}
	default:
		return command{kind: cmdChat, text: line}
	}
}

// expandPrompt renders a prompt template. Templates see the argument text as
// {{.Input}} and its words as {{.Args}}; a template without placeholders gets
// the arguments appended.
func expandPrompt(tpl config.PromptTemplate, args string) (string, error) {
	if !strings.Contains(tpl.Template, "{{") {
		if args == "" {
			return tpl.Template, nil
		}
		return strings.TrimRight(tpl.Template, "\n") + "\n\n" + args, nil
	}
	fields := strings.Fields(args)
	words := make([]any, len(fields))
	for i, f := range fields {
		words[i] = f
	}
	out, err := util.RenderTemplate(tpl.Template, map[string]any{"Input": args, "Args": words})
	if err != nil {
		return "", fmt.Errorf("expand prompt: %w", err)
	}
	return out, nil
}

// history appends every submitted line to a file. It is a log for the user;
// lines are not recalled at the prompt.
type history struct {
	path string
}

func newHistory(path string) (*history, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	return &history{path: path}, nil
}

func (h *history) add(line string) error {
	if h == nil || line == "" {
		return nil
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f, line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
