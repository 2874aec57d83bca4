package render

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"
)

// BannerInfo is the session summary shown when the REPL starts.
type BannerInfo struct {
	Model      string
	Tools      []string
	SubAgents  []string
	Workspace  string
	Checkpoint string
	Prompts    []string
}

// Banner prints the welcome header and session summary.
func (r *Renderer) Banner(info BannerInfo) error {
	var b strings.Builder
	b.WriteString(bannerStyle.Render("🚀 Welcome to Captain"))
	b.WriteString("\n\n")
	row := func(k, v string) {
		b.WriteString(keyStyle.Render(fmt.Sprintf("%-12s", k)))
		b.WriteString(valueStyle.Render(v))
		b.WriteString("\n")
	}
	row("Model", info.Model)
	row("Tools", fmt.Sprintf("%d loaded", len(info.Tools)))
	for _, t := range info.Tools {
		row("  →", t)
	}
	if len(info.SubAgents) > 0 {
		row("Sub-agents", strings.Join(info.SubAgents, ", "))
	}
	row("Workspace", info.Workspace)
	row("Checkpoint", info.Checkpoint)
	if len(info.Prompts) > 0 {
		row("Prompts", strings.Join(info.Prompts, ", "))
	}
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Type 'exit' or 'quit' to exit, '!<cmd>' to run a shell command, '/list' for prompt templates"))
	_, err := lipgloss.Fprintln(r.out, b.String())
	return err
}

// Notice prints a single dim status line.
func (r *Renderer) Notice(msg string) error {
	_, err := lipgloss.Fprintln(r.out, labelStyle.Render(msg))
	return err
}

// Warning prints a single highlighted line.
func (r *Renderer) Warning(msg string) error {
	_, err := lipgloss.Fprintln(r.out, warnStyle.Render("⚠️  "+msg))
	return err
}

// Shell prints the output of a command run from the prompt.
func (r *Renderer) Shell(command, output string) error {
	body := toolNameStyle.Render("$ "+command) + "\n\n" + resultStyle.Render(r.truncate(output))
	return r.print(panel(r.width, callColor, "🐚 Shell", body))
}

// PromptInfo describes a prompt template for Prompts.
type PromptInfo struct {
	Name        string
	Description string
}

// Prompts lists the prompt templates.
func (r *Renderer) Prompts(prompts []PromptInfo) error {
	if len(prompts) == 0 {
		return r.Notice("No prompt templates configured.")
	}
	var b strings.Builder
	for i, p := range prompts {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(keyStyle.Render("/" + p.Name))
		if p.Description != "" {
			b.WriteString(labelStyle.Render("  " + p.Description))
		}
	}
	return r.print(panel(r.width, callColor, "📝 Prompt templates", b.String()))
}
