package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span represents a single named and timed operation of a workflow.
type Span struct {
	recorder *Recorder
	span     trace.Span
	start    time.Time
	attrs    []Attr
}

// StartSpan starts a new span and records the operation as in-flight.
func (r *Recorder) StartSpan(
	ctx context.Context,
	name string,
	attrs ...Attr,
) (context.Context, *Span) {
	ctx, span := r.tracer.Start(
		ctx,
		name,
		trace.WithAttributes(asAttrKeyValues(attrs)...),
	)

	op := String("operation", name)
	r.operationCount(ctx, 1, op)
	r.operationsInFlightCount(ctx, 1, op)

	return ctx, &Span{
		recorder: r,
		span:     span,
		start:    time.Now(),
		attrs:    []Attr{op},
	}
}

// SetAttributes sets attributes on the span.
func (s *Span) SetAttributes(attrs ...Attr) {
	s.span.SetAttributes(asAttrKeyValues(attrs)...)
}

// Elapsed returns the time since the span started.
func (s *Span) Elapsed() time.Duration {
	return time.Since(s.start)
}

// End completes the span.
func (s *Span) End() {
	s.recorder.operationsInFlightCount(context.Background(), -1, s.attrs...)
	s.span.End()
}

// SetError marks the span as failed.
func (s *Span) SetError(err error) {
	s.span.SetStatus(codes.Error, err.Error())
	s.span.RecordError(err)
}
