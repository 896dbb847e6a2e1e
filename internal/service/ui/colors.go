package ui

import "github.com/charmbracelet/lipgloss"

var (
	// TitleStyle ANSI 6 (Cyan) reads well on light and dark terminals
	TitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true).MarginBottom(1)

	// UsageStyle ANSI 2 (Green) for arguments and usage lines
	UsageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))

	// DescStyle ANSI 8 (Gray) keeps descriptions and notices in the background
	DescStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	// FlagStyle ANSI 3 (Yellow) for flags
	FlagStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))

	// WarnStyle ANSI 3 (Yellow) once usage crosses the warning threshold
	WarnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)

	// AlertStyle ANSI 1 (Red) at the auto-summarize threshold and for errors
	AlertStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)
