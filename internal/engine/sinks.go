package engine

import (
	"errors"
	"io"

	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/tern/internal/core/ports"
)

// fanout forwards the result stream to every registered sink.
type fanout []ports.ResultSink

func (f fanout) Publish(ev domain.Event) {
	for _, s := range f {
		s.Publish(ev)
	}
}

// TestOutput tees test output to every sink that captures it.
func (f fanout) TestOutput(test *domain.TestDescriptor) io.Writer {
	var writers []io.Writer
	for _, s := range f {
		if os, ok := s.(ports.OutputSink); ok {
			if w := os.TestOutput(test); w != nil {
				writers = append(writers, w)
			}
		}
	}
	switch len(writers) {
	case 0:
		return io.Discard
	case 1:
		return writers[0]
	default:
		return io.MultiWriter(writers...)
	}
}

func (f fanout) Flush() error {
	var errs []error
	for _, s := range f {
		if fl, ok := s.(ports.Flusher); ok {
			if err := fl.Flush(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
