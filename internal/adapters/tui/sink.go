package tui

import (
	"io"
	"slices"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"go.trai.ch/tern/internal/core/domain"
)

// Sink drives a Bubble Tea program from the result stream.
// It implements ports.ResultSink, ports.OutputSink and ports.Flusher.
type Sink struct {
	program *tea.Program
	model   *Model
	// inspect keeps the interface open after the session until the user quits.
	inspect bool

	done      chan struct{}
	err       error
	startOnce sync.Once
}

// NewSink creates a Sink around a fresh Model.
func NewSink(inspect bool, opts ...tea.ProgramOption) *Sink {
	model := NewModel()
	return &Sink{
		program: tea.NewProgram(model, opts...),
		model:   model,
		inspect: inspect,
		done:    make(chan struct{}),
	}
}

// Start launches the program in a background goroutine.
func (s *Sink) Start() {
	s.startOnce.Do(func() {
		go func() {
			_, s.err = s.program.Run()
			close(s.done)
		}()
	})
}

// Done is closed once the program has exited, either after Close or because the user quit.
func (s *Sink) Done() <-chan struct{} {
	return s.done
}

// Publish implements ports.ResultSink.
func (s *Sink) Publish(ev domain.Event) {
	id := ev.ID()
	switch ev.Kind {
	case domain.EventDiscovered:
		s.program.Send(MsgDiscovered{ID: id, Unit: ev.Test.Unit.String()})
	case domain.EventStarted:
		s.program.Send(MsgStarted{ID: id, Attempt: ev.Attempt, Time: ev.Time})
	case domain.EventRetrying:
		s.program.Send(MsgRetrying{ID: id, Attempt: ev.Attempt})
	case domain.EventTerminal:
		s.program.Send(MsgTerminal{ID: id, Outcome: ev.Outcome})
	}
}

// TestOutput implements ports.OutputSink.
func (s *Sink) TestOutput(test *domain.TestDescriptor) io.Writer {
	return &logWriter{program: s.program, id: test.ID.String()}
}

// Flush marks the session as finished.
func (s *Sink) Flush() error {
	s.program.Send(MsgSessionDone{})
	return nil
}

// Close stops the program, or waits for the user to quit in inspect mode.
func (s *Sink) Close() error {
	s.Start()
	if !s.inspect {
		s.program.Quit()
	}
	<-s.done
	return s.err
}

// Model returns the model. It must only be read after Close returned.
func (s *Sink) Model() *Model {
	return s.model
}

type logWriter struct {
	program *tea.Program
	id      string
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.program.Send(MsgOutput{ID: w.id, Data: slices.Clone(p)})
	return len(p), nil
}
