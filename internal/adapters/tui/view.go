package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/tern/internal/ui/style"
)

// View renders the test list next to the log pane of the active test.
func (m *Model) View() string {
	if m.Viewport.Height == 0 {
		return "Initializing..."
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		lipgloss.JoinHorizontal(
			lipgloss.Top,
			m.testList(),
			m.logPane(),
		),
		m.footer(),
	)
}

func (m *Model) testList() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("TESTS") + "\n\n")

	for _, node := range m.Tests {
		var (
			st   lipgloss.Style
			icon string
		)
		switch {
		case node.Running:
			st = runningStyle
			icon = m.spinner.View()
		case node.Status != "":
			st = statusStyle(node.Status)
			icon, _ = style.ForStatus(node.Status)
		default:
			st = pendingStyle
			icon = style.Circle
		}

		line := fmt.Sprintf("%s %s", icon, node.ID)
		if node.Attempt > 1 {
			line += fmt.Sprintf(" (attempt %d)", node.Attempt)
		}
		if node.ID == m.Active {
			s.WriteString(selectedStyle.Render("> ") + st.Render(line) + "\n")
		} else {
			s.WriteString("  " + st.Render(line) + "\n")
		}
	}

	return listStyle.Render(s.String())
}

func (m *Model) logPane() string {
	var header string
	if m.Active != "" {
		header = titleStyle.Render("LOGS: " + m.Active)
	} else {
		header = titleStyle.Render("LOGS (Waiting...)")
	}

	return logStyle.Render(
		lipgloss.JoinVertical(
			lipgloss.Left,
			header,
			m.Viewport.View(),
		),
	)
}

func (m *Model) footer() string {
	counts := make(map[domain.Status]int)
	running := 0
	for _, node := range m.Tests {
		if node.Running {
			running++
		}
		counts[node.Status]++
	}

	text := fmt.Sprintf("%d running, %d passed, %d failed, %d skipped",
		running, counts[domain.StatusPassed], counts[domain.StatusFailed], counts[domain.StatusSkipped])
	if n := counts[domain.StatusCancelled]; n > 0 {
		text += fmt.Sprintf(", %d cancelled", n)
	}
	if m.Done {
		text += " - done, press q to quit"
	} else {
		text += " - j/k select, f follow, q quit"
	}
	return footerStyle.Render(text)
}
