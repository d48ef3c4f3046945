package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yegor-mialyk/DbContextScope/dbscope"
)

// TracingCollector implements dbscope.TracingCollector using the OpenTelemetry tracing
// API, creating spans for scope commit operations and propagating trace context.
type TracingCollector struct {
	tracer trace.Tracer
}

// NewTracingCollector creates a collector over a tracer from your OpenTelemetry
// TracerProvider.
func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

// StartSpan creates a new OpenTelemetry span with the given name and attributes and
// returns a context carrying it together with a dbscope.SpanContext wrapper.
func (t *TracingCollector) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, dbscope.SpanContext) {
	spanOptions := make([]trace.SpanStartOption, 0, len(attrs))
	for key, value := range attrs {
		spanOptions = append(spanOptions, trace.WithAttributes(attribute.String(key, value)))
	}

	spanCtx, span := t.tracer.Start(ctx, name, spanOptions...)

	return spanCtx, &otelSpanContext{span: span}
}

// FinishSpan completes the span with the given status and final attributes.
func (t *TracingCollector) FinishSpan(spanCtx dbscope.SpanContext, status string, attrs map[string]string) {
	wrapped, ok := spanCtx.(*otelSpanContext)
	if !ok {
		return
	}

	for key, value := range attrs {
		wrapped.span.SetAttributes(attribute.String(key, value))
	}

	wrapped.SetStatus(status)
	wrapped.span.End()
}

// Ensure TracingCollector implements dbscope.TracingCollector.
var _ dbscope.TracingCollector = (*TracingCollector)(nil)

// otelSpanContext implements dbscope.SpanContext by wrapping an OpenTelemetry span.
type otelSpanContext struct {
	span trace.Span
}

// SetStatus maps the generic status string to an OpenTelemetry status code.
func (s *otelSpanContext) SetStatus(status string) {
	switch status {
	case "success", "ok":
		s.span.SetStatus(codes.Ok, "")
	case "error":
		s.span.SetStatus(codes.Error, status)
	default:
		s.span.SetStatus(codes.Unset, status)
	}
}

// AddAttribute adds a string attribute to the span.
func (s *otelSpanContext) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}
