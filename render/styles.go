package render

import (
	"image/color"

	"charm.land/lipgloss/v2"
)

var (
	thinkingColor = lipgloss.Color("3")
	doneColor     = lipgloss.Color("2")
	callColor     = lipgloss.Color("6")
	subAgentColor = lipgloss.Color("5")
	warnColor     = lipgloss.Color("11")
	errorColor    = lipgloss.Color("1")
)

var (
	labelStyle      = lipgloss.NewStyle().Faint(true)
	toolNameStyle   = lipgloss.NewStyle().Bold(true)
	argsStyle       = lipgloss.NewStyle().Foreground(callColor)
	resultLabel     = lipgloss.NewStyle().Bold(true).Foreground(doneColor)
	resultStyle     = lipgloss.NewStyle().Foreground(doneColor)
	processingStyle = lipgloss.NewStyle().Italic(true).Foreground(thinkingColor)
	warnStyle       = lipgloss.NewStyle().Foreground(warnColor)
	keyStyle        = lipgloss.NewStyle().Foreground(callColor)
	valueStyle      = lipgloss.NewStyle().Foreground(doneColor)
	bannerStyle     = lipgloss.NewStyle().Bold(true).Foreground(callColor)
)

// panel draws a rounded box with a bold title line.
func panel(width int, border color.Color, title, body string) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(border).Render(title)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(width).
		Render(header + "\n" + body)
}
