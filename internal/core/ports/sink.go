package ports

import (
	"io"

	"go.trai.ch/tern/internal/core/domain"
)

//go:generate mockgen -source=sink.go -destination=mocks/mock_sink.go -package=mocks

// ResultSink consumes the engine's result stream.
// Publish is called concurrently for different tests; events of one test arrive in order.
type ResultSink interface {
	Publish(ev domain.Event)
}

// OutputSink is implemented by sinks that capture what a test writes.
// TestOutput is called after the test's Started event has been published.
type OutputSink interface {
	TestOutput(test *domain.TestDescriptor) io.Writer
}

// Flusher is implemented by sinks that buffer and need a final flush when the session ends.
type Flusher interface {
	Flush() error
}
