package telemetry

import (
	"context"
	"io"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.trai.ch/tern/internal/core/domain"
)

// InstrumentationName names the tracer used for every span.
const InstrumentationName = "go.trai.ch/tern"

// SpanSink turns the result stream into spans: one root span per session and one child span
// per test, from its Started event to its Terminal event. Test output is attached to the test
// span as "output" events.
type SpanSink struct {
	tracer trace.Tracer

	mu      sync.Mutex
	rootCtx context.Context
	root    trace.Span
	tests   map[string]*testSpan
}

type testSpan struct {
	span   trace.Span
	output *Batcher
}

// NewSpanSink creates a SpanSink using a tracer from tp.
func NewSpanSink(tp trace.TracerProvider) *SpanSink {
	return &SpanSink{
		tracer: tp.Tracer(InstrumentationName),
		tests:  make(map[string]*testSpan),
	}
}

// Publish implements ports.ResultSink.
func (s *SpanSink) Publish(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureRootLocked(ev)

	switch ev.Kind {
	case domain.EventDiscovered:
		if ev.Verdict.Excluded {
			s.root.AddEvent("excluded", trace.WithAttributes(
				attribute.String("test.id", ev.ID()),
				attribute.String("test.reason", string(ev.Verdict.Reason)),
			))
		}
	case domain.EventStarted:
		s.startLocked(ev)
	case domain.EventRetrying:
		if ts, ok := s.tests[ev.ID()]; ok {
			ts.span.AddEvent("retry", trace.WithTimestamp(ev.Time), trace.WithAttributes(
				attribute.Int("test.attempt", ev.Attempt),
			))
		}
	case domain.EventTerminal:
		s.endLocked(ev)
	}
}

// TestOutput implements ports.OutputSink.
func (s *SpanSink) TestOutput(test *domain.TestDescriptor) io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.tests[test.ID.String()]
	if !ok {
		return io.Discard
	}
	if ts.output == nil {
		span := ts.span
		ts.output = NewBatcher(0, 0, func(data []byte) {
			span.AddEvent("output", trace.WithAttributes(attribute.String("data", string(data))))
		})
	}
	return ts.output
}

// Flush ends the spans of the finished session. Spans of tests that never reached a terminal
// event are ended with an error status.
func (s *SpanSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ts := range s.tests {
		closeOutput(ts)
		ts.span.SetStatus(codes.Error, "no terminal outcome")
		ts.span.End()
		delete(s.tests, id)
	}
	if s.root != nil {
		s.root.End()
		s.root = nil
		s.rootCtx = nil
	}
	return nil
}

func (s *SpanSink) ensureRootLocked(ev domain.Event) {
	if s.root != nil {
		return
	}
	s.rootCtx, s.root = s.tracer.Start(context.Background(), "session", trace.WithTimestamp(ev.Time))
}

func (s *SpanSink) startLocked(ev domain.Event) *testSpan {
	if ts, ok := s.tests[ev.ID()]; ok {
		return ts
	}

	d := ev.Test
	_, span := s.tracer.Start(s.rootCtx, d.ID.String(),
		trace.WithTimestamp(ev.Time),
		trace.WithAttributes(
			attribute.String("test.id", d.ID.String()),
			attribute.String("test.unit", d.Unit.String()),
			attribute.String("test.module", d.Module.String()),
			attribute.String("test.constraint", d.Constraint.String()),
			attribute.Int("test.priority", d.Priority),
		),
	)
	ts := &testSpan{span: span}
	s.tests[ev.ID()] = ts
	return ts
}

func (s *SpanSink) endLocked(ev domain.Event) {
	// Skipped, excluded and cancelled tests may never have started.
	ts := s.startLocked(ev)
	delete(s.tests, ev.ID())
	closeOutput(ts)

	o := ev.Outcome
	ts.span.SetAttributes(
		attribute.String("test.status", string(o.Status)),
		attribute.Int("test.attempts", o.Attempts),
	)
	if o.Reason != domain.ReasonNone {
		ts.span.SetAttributes(attribute.String("test.reason", string(o.Reason)))
	}

	for _, err := range o.Errors {
		ts.span.RecordError(err)
	}

	switch o.Status {
	case domain.StatusPassed:
		ts.span.SetStatus(codes.Ok, "")
	case domain.StatusFailed, domain.StatusCancelled:
		desc := string(o.Status)
		if err := o.Err(); err != nil {
			desc = err.Error()
		}
		ts.span.SetStatus(codes.Error, desc)
	default:
		ts.span.SetStatus(codes.Unset, "")
	}

	ts.span.End(trace.WithTimestamp(ev.Time))
}

func closeOutput(ts *testSpan) {
	if ts.output != nil {
		_ = ts.output.Close()
	}
}
