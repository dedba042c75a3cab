package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Debug logs a debug message to the log and as a span event.
func (r *Recorder) Debug(ctx context.Context, event, message string, attrs ...Attr) {
	r.recordEvent(ctx, slog.LevelDebug, event, message, nil, attrs)
}

// Info logs an informational message to the log and as a span event.
func (r *Recorder) Info(ctx context.Context, event, message string, attrs ...Attr) {
	r.recordEvent(ctx, slog.LevelInfo, event, message, nil, attrs)
}

// Warn logs a warning message to the log and as a span event.
func (r *Recorder) Warn(ctx context.Context, event, message string, attrs ...Attr) {
	r.recordEvent(ctx, slog.LevelWarn, event, message, nil, attrs)
}

// Error logs an error message to the log and as a span event.
//
// It marks the span as an error and increments the "errors" metric.
func (r *Recorder) Error(ctx context.Context, event string, err error, attrs ...Attr) {
	r.recordEvent(ctx, slog.LevelError, event, err.Error(), err, attrs)
	r.errorCount(ctx, 1)

	span := trace.SpanFromContext(ctx)
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}

func (r *Recorder) recordEvent(
	ctx context.Context,
	level slog.Level,
	event, message string,
	err error,
	attrs []Attr,
) {
	if !r.logger.Enabled(ctx, level) {
		return
	}

	trace.SpanFromContext(ctx).AddEvent(
		event,
		trace.WithAttributes(attribute.String("message", message)),
		trace.WithAttributes(asAttrKeyValues(attrs)...),
	)

	args := append(
		[]any{slog.String("event", event)},
		asSlogAttrs(attrs)...,
	)

	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}

	r.logger.Log(ctx, level, message, args...)
}
