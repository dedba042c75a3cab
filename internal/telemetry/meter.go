package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument is a function that records a metric value of type T.
type Instrument[T any] func(context.Context, T, ...Attr)

// Counter returns a new monotonic counter instrument.
func (r *Recorder) Counter(name, unit, desc string) Instrument[int64] {
	c, err := r.meter.Int64Counter(
		name,
		metric.WithUnit(unit),
		metric.WithDescription(desc),
	)
	must(err)

	return func(ctx context.Context, v int64, attrs ...Attr) {
		c.Add(ctx, v, r.measurement(attrs))
	}
}

// UpDownCounter returns a new counter instrument that can increase or decrease.
func (r *Recorder) UpDownCounter(name, unit, desc string) Instrument[int64] {
	c, err := r.meter.Int64UpDownCounter(
		name,
		metric.WithUnit(unit),
		metric.WithDescription(desc),
	)
	must(err)

	return func(ctx context.Context, v int64, attrs ...Attr) {
		c.Add(ctx, v, r.measurement(attrs))
	}
}

// Histogram returns a new histogram instrument.
func (r *Recorder) Histogram(name, unit, desc string) Instrument[int64] {
	h, err := r.meter.Int64Histogram(
		name,
		metric.WithUnit(unit),
		metric.WithDescription(desc),
	)
	must(err)

	return func(ctx context.Context, v int64, attrs ...Attr) {
		h.Record(ctx, v, r.measurement(attrs))
	}
}

// measurement returns the option that attaches the recorder's attributes, and
// any additional attributes, to a single measurement.
func (r *Recorder) measurement(attrs []Attr) metric.MeasurementOption {
	if len(attrs) == 0 {
		return metric.WithAttributeSet(r.attrKVs)
	}

	return metric.WithAttributeSet(
		attribute.NewSet(
			append(
				r.attrKVs.ToSlice(),
				asAttrKeyValues(attrs)...,
			)...,
		),
	)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
