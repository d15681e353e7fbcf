// Package observability provides OpenTelemetry tracing for spawnpool
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span wraps a trace span and buffers its attributes until End.
type Span struct {
	span       trace.Span
	startTime  time.Time
	attributes []attribute.KeyValue
}

// NewSpan starts a span on tracer.
func NewSpan(ctx context.Context, tracer trace.Tracer, operationName string) (context.Context, *Span) {
	ctx, span := tracer.Start(ctx, operationName)

	return ctx, &Span{
		span:      span,
		startTime: time.Now(),
	}
}

// SetAttribute adds an attribute to the span
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	case fmt.Stringer:
		attr = attribute.String(key, v.String())
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Fail records err and marks the span as failed. A nil err marks it ok.
func (s *Span) Fail(err error) {
	if err == nil {
		s.span.SetStatus(codes.Ok, "")
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// End ends the span after flushing the buffered attributes.
func (s *Span) End() {
	s.attributes = append(s.attributes, attribute.Int64("duration_us", time.Since(s.startTime).Microseconds()))
	s.span.SetAttributes(s.attributes...)
	s.span.End()
}

// PhaseTracer names the spans of one simulation run.
type PhaseTracer struct {
	tracer trace.Tracer
	runID  string
}

// NewPhaseTracer creates a tracer whose spans carry runID.
func NewPhaseTracer(tracer trace.Tracer, runID string) *PhaseTracer {
	return &PhaseTracer{tracer: tracer, runID: runID}
}

// Trace runs fn inside a span named "spawnpool.<phase>" and records its error.
func (pt *PhaseTracer) Trace(ctx context.Context, phase string, fn func(ctx context.Context, span *Span) error) error {
	ctx, span := NewSpan(ctx, pt.tracer, "spawnpool."+phase)
	defer span.End()

	span.SetAttribute("run.id", pt.runID)
	span.SetAttribute("phase", phase)

	err := fn(ctx, span)
	span.Fail(err)
	return err
}
