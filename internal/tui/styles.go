package tui

import "github.com/charmbracelet/lipgloss"

// styles holds the lipgloss styles used by View.
type styles struct {
	Title    lipgloss.Style
	Label    lipgloss.Style
	Value    lipgloss.Style
	Muted    lipgloss.Style
	Error    lipgloss.Style
	Fallback lipgloss.Style
	Spinner  lipgloss.Style
	Panel    lipgloss.Style
}

func defaultStyles() styles {
	accent := lipgloss.Color("#bd93f9")
	danger := lipgloss.Color("#ff5555")
	muted := lipgloss.Color("#6272a4")
	return styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent).
			MarginBottom(1),
		Label: lipgloss.NewStyle().
			Foreground(muted).
			Width(12),
		Value:   lipgloss.NewStyle().Foreground(lipgloss.Color("#f8f8f2")),
		Muted:   lipgloss.NewStyle().Foreground(muted),
		Error:   lipgloss.NewStyle().Foreground(danger),
		Spinner: lipgloss.NewStyle().Foreground(accent),
		Fallback: lipgloss.NewStyle().
			Foreground(danger).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(danger).
			Padding(0, 1),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(muted).
			Padding(0, 1),
	}
}
