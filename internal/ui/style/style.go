// Package style provides the shared colors and icons of the terminal output.
package style

import (
	"github.com/charmbracelet/lipgloss"
	"go.trai.ch/tern/internal/core/domain"
)

// Brand Colors.
var (
	Iris   = lipgloss.Color("#8B5CF6")
	Slate  = lipgloss.Color("#667085")
	Green  = lipgloss.Color("#22A06B")
	Red    = lipgloss.Color("#D93025")
	Yellow = lipgloss.Color("#F59E0B")
)

// Icons.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
	Tilde   = "~"
	Dot     = "●"
	Circle  = "○"
)

// ForStatus returns the icon and color of a terminal status.
func ForStatus(s domain.Status) (string, lipgloss.Color) {
	switch s {
	case domain.StatusPassed:
		return Check, Green
	case domain.StatusFailed:
		return Cross, Red
	case domain.StatusSkipped:
		return Circle, Slate
	case domain.StatusCancelled:
		return Tilde, Yellow
	default:
		return Dot, Iris
	}
}
