// Package tui renders a running session as an interactive terminal interface.
package tui

import (
	"bytes"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.trai.ch/tern/internal/core/domain"
)

const (
	testListWidthRatio = 0.3
	logPaneBorderWidth = 4
)

// TestNode is a single test in the list.
type TestNode struct {
	ID      string
	Unit    string
	Running bool
	Attempt int
	// Status is empty until the test is terminal.
	Status   domain.Status
	Reason   domain.Reason
	Started  time.Time
	Duration time.Duration
	Logs     bytes.Buffer
}

// Model is the Bubble Tea model of a session.
type Model struct {
	Tests    []*TestNode
	index    map[string]*TestNode
	Viewport viewport.Model
	spinner  spinner.Model

	AutoScroll bool
	// Follow moves the focus to the most recently started test.
	Follow bool
	Active string
	Done   bool
}

// NewModel creates a new TUI model with default settings.
func NewModel() *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return &Model{
		index:      make(map[string]*TestNode),
		Viewport:   viewport.New(0, 0),
		spinner:    s,
		AutoScroll: true,
		Follow:     true,
	}
}

// Init starts the spinner.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		listWidth := int(float64(msg.Width) * testListWidthRatio)
		m.Viewport.Width = msg.Width - listWidth - logPaneBorderWidth
		m.Viewport.Height = msg.Height - 2

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case MsgDiscovered:
		if _, ok := m.index[msg.ID]; !ok {
			node := &TestNode{ID: msg.ID, Unit: msg.Unit}
			m.Tests = append(m.Tests, node)
			m.index[msg.ID] = node
		}

	case MsgStarted:
		if node, ok := m.index[msg.ID]; ok {
			node.Running = true
			node.Attempt = msg.Attempt
			node.Started = msg.Time
			if m.Follow {
				m.focus(msg.ID)
			}
		}

	case MsgRetrying:
		if node, ok := m.index[msg.ID]; ok {
			node.Attempt = msg.Attempt
			m.appendLog(node, fmt.Appendf(nil, "! retrying (attempt %d)\n", msg.Attempt))
		}

	case MsgOutput:
		if node, ok := m.index[msg.ID]; ok {
			m.appendLog(node, msg.Data)
		}

	case MsgTerminal:
		if node, ok := m.index[msg.ID]; ok {
			node.Running = false
			node.Status = msg.Outcome.Status
			node.Reason = msg.Outcome.Reason
			node.Duration = msg.Outcome.Duration
			if err := msg.Outcome.Err(); err != nil {
				m.appendLog(node, []byte(err.Error()+"\n"))
			}
		}

	case MsgSessionDone:
		m.Done = true
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		m.Follow = false
		m.move(-1)
	case "down", "j":
		m.Follow = false
		m.move(1)
	case "f":
		m.Follow = true
	default:
		var cmd tea.Cmd
		m.Viewport, cmd = m.Viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) move(delta int) {
	if len(m.Tests) == 0 {
		return
	}
	current := -1
	for i, node := range m.Tests {
		if node.ID == m.Active {
			current = i
			break
		}
	}
	next := min(max(current+delta, 0), len(m.Tests)-1)
	m.focus(m.Tests[next].ID)
}

func (m *Model) focus(id string) {
	m.Active = id
	if node, ok := m.index[id]; ok {
		m.Viewport.SetContent(node.Logs.String())
		if m.AutoScroll {
			m.Viewport.GotoBottom()
		}
	}
}

func (m *Model) appendLog(node *TestNode, data []byte) {
	node.Logs.Write(data)
	if node.ID == m.Active {
		m.Viewport.SetContent(node.Logs.String())
		if m.AutoScroll {
			m.Viewport.GotoBottom()
		}
	}
}

// Test returns the node of a test.
func (m *Model) Test(id string) (*TestNode, bool) {
	node, ok := m.index[id]
	return node, ok
}
