package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7D79F6"}
	muted  = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#6C6C6C"}
	danger = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF5F6D"}

	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	badgeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(danger).Padding(0, 1)
	paneStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(muted).Padding(0, 1)
	focusedPane   = paneStyle.BorderForeground(accent)
	titleStyle    = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	cursorStyle   = lipgloss.NewStyle().Foreground(accent).Bold(true)
	selectedStyle = lipgloss.NewStyle().Underline(true)
	movingStyle   = lipgloss.NewStyle().Foreground(danger)
	dimStyle      = lipgloss.NewStyle().Foreground(muted)
	statusStyle   = lipgloss.NewStyle().Padding(0, 1)
	errorStyle    = statusStyle.Foreground(danger)
	promptStyle   = statusStyle.Bold(true).Foreground(danger)
)
