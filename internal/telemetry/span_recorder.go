package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace"
)

// SpanRecorder is an in-memory span exporter used by tests to assert on spans.
type SpanRecorder struct {
	mu    sync.RWMutex
	spans []trace.ReadOnlySpan
}

func NewSpanRecorder() *SpanRecorder {
	return &SpanRecorder{}
}

func (r *SpanRecorder) ExportSpans(_ context.Context, spans []trace.ReadOnlySpan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.spans = append(r.spans, spans...)
	return nil
}

func (r *SpanRecorder) Shutdown(context.Context) error {
	return nil
}

// NewTracerProvider returns a provider exporting synchronously to r.
func (r *SpanRecorder) NewTracerProvider(serviceName, serviceVersion string) *trace.TracerProvider {
	return trace.NewTracerProvider(
		trace.WithSyncer(r),
		trace.WithResource(newResource(serviceName, serviceVersion)),
	)
}

func (r *SpanRecorder) Spans() []trace.ReadOnlySpan {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]trace.ReadOnlySpan, len(r.spans))
	copy(out, r.spans)
	return out
}

func (r *SpanRecorder) SpansByName(name string) []trace.ReadOnlySpan {
	var out []trace.ReadOnlySpan
	for _, span := range r.Spans() {
		if span.Name() == name {
			out = append(out, span)
		}
	}
	return out
}

func (r *SpanRecorder) SpansByOperation(operation string) []trace.ReadOnlySpan {
	var out []trace.ReadOnlySpan
	for _, span := range r.Spans() {
		if v, ok := Attribute(span, "operation"); ok && v.AsString() == operation {
			out = append(out, span)
		}
	}
	return out
}

func (r *SpanRecorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.spans = nil
}

// Attribute looks up a span attribute by key.
func Attribute(span trace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, attr := range span.Attributes() {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}
