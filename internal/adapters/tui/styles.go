package tui

import (
	"github.com/charmbracelet/lipgloss"
	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/tern/internal/ui/style"
)

var (
	colorWhite = lipgloss.Color("#FFFFFF")

	// Pane Styles.
	listStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(style.Slate).
			MarginRight(1).
			PaddingRight(1)

	logStyle = lipgloss.NewStyle().
			PaddingLeft(1)

	// Test Status Styles.
	pendingStyle = lipgloss.NewStyle().
			Foreground(style.Slate)

	runningStyle = lipgloss.NewStyle().
			Foreground(style.Iris).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(style.Yellow)

	selectedStyle = lipgloss.NewStyle().
			Foreground(style.Iris).
			Bold(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(style.Slate).
			Faint(true)

	// Header Styles.
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Background(style.Iris).
			Foreground(colorWhite)
)

func statusStyle(s domain.Status) lipgloss.Style {
	_, color := style.ForStatus(s)
	return lipgloss.NewStyle().Foreground(color)
}
