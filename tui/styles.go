package tui

import "github.com/charmbracelet/lipgloss"

var (
	accentColor = lipgloss.Color("#9146FF") // twitch purple
	mutedColor  = lipgloss.Color("#ADADB8")
	errorColor  = lipgloss.Color("#EB0400")
)

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	statusStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)
)
