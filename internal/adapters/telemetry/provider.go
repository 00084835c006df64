package telemetry

import (
	"io"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewProvider creates a tracer provider that exports every span to w as soon as it ends.
// The caller must shut it down.
func NewProvider(w io.Writer) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(NewJSONExporter(w)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
}
