package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/zerr"
)

// JSONExporter writes finished spans as JSON lines.
type JSONExporter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

var _ sdktrace.SpanExporter = (*JSONExporter)(nil)

type spanRecord struct {
	Name        string         `json:"name"`
	TraceID     string         `json:"trace_id"`
	SpanID      string         `json:"span_id"`
	ParentID    string         `json:"parent_id,omitempty"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
	Status      string         `json:"status"`
	Description string         `json:"description,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Events      []eventRecord  `json:"events,omitempty"`
}

type eventRecord struct {
	Name       string         `json:"name"`
	Time       time.Time      `json:"time"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// NewJSONExporter creates an exporter writing to w.
func NewJSONExporter(w io.Writer) *JSONExporter {
	return &JSONExporter{enc: json.NewEncoder(w)}
}

// ExportSpans writes one line per span.
func (e *JSONExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec := spanRecord{
			Name:        s.Name(),
			TraceID:     s.SpanContext().TraceID().String(),
			SpanID:      s.SpanContext().SpanID().String(),
			Start:       s.StartTime(),
			End:         s.EndTime(),
			Status:      s.Status().Code.String(),
			Description: s.Status().Description,
			Attributes:  attributes(s.Attributes()),
		}
		if p := s.Parent(); p.IsValid() {
			rec.ParentID = p.SpanID().String()
		}
		for _, ev := range s.Events() {
			rec.Events = append(rec.Events, eventRecord{
				Name:       ev.Name,
				Time:       ev.Time,
				Attributes: attributes(ev.Attributes),
			})
		}

		if err := e.enc.Encode(rec); err != nil {
			return zerr.Wrap(err, "export span")
		}
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *JSONExporter) Shutdown(context.Context) error {
	return nil
}

func attributes(kvs []attribute.KeyValue) map[string]any {
	if len(kvs) == 0 {
		return nil
	}
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}
