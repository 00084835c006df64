// Package progrock records the result stream as progrock vertices, one per test.
package progrock

import (
	"fmt"
	"io"
	"sync"

	"github.com/opencontainers/go-digest"
	"github.com/vito/progrock"
	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/zerr"
)

// Sink implements ports.ResultSink and ports.OutputSink on a progrock recorder.
type Sink struct {
	w   progrock.Writer
	rec *progrock.Recorder

	mu       sync.Mutex
	vertices map[string]*progrock.VertexRecorder
}

// New creates a Sink writing status updates to w.
func New(w progrock.Writer) *Sink {
	return &Sink{
		w:        w,
		rec:      progrock.NewRecorder(w),
		vertices: make(map[string]*progrock.VertexRecorder),
	}
}

// Publish implements ports.ResultSink.
func (s *Sink) Publish(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case domain.EventStarted:
		s.vertexLocked(ev.Test)
	case domain.EventRetrying:
		v := s.vertexLocked(ev.Test)
		_, _ = fmt.Fprintf(v.Stderr(), "retrying (attempt %d)\n", ev.Attempt)
	case domain.EventTerminal:
		v := s.vertexLocked(ev.Test)
		delete(s.vertices, ev.ID())
		complete(v, ev.Outcome)
	}
}

// TestOutput implements ports.OutputSink.
func (s *Sink) TestOutput(test *domain.TestDescriptor) io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vertexLocked(test).Stdout()
}

// Flush completes the vertices of tests that never reached a terminal event.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, v := range s.vertices {
		v.Done(zerr.New("no terminal outcome"))
		delete(s.vertices, id)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (s *Sink) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	return s.w.Close()
}

func (s *Sink) vertexLocked(test *domain.TestDescriptor) *progrock.VertexRecorder {
	id := test.ID.String()
	if v, ok := s.vertices[id]; ok {
		return v
	}
	v := s.rec.Vertex(digest.FromString(id), id)
	s.vertices[id] = v
	return v
}

func complete(v *progrock.VertexRecorder, o domain.Outcome) {
	switch o.Status {
	case domain.StatusPassed:
		v.Done(nil)
	case domain.StatusSkipped:
		if o.Reason != domain.ReasonNone {
			_, _ = fmt.Fprintf(v.Stderr(), "skipped: %s\n", o.Reason)
		}
		v.Cached()
		v.Done(nil)
	default:
		err := o.Err()
		if err == nil {
			err = zerr.New(string(o.Status))
		}
		v.Done(err)
	}
}
