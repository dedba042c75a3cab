package telemetry

import (
	"log/slog"
	"reflect"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/constraints"
)

// Attr is a telemetry attribute, recorded both as a log attribute and as an
// OpenTelemetry attribute.
type Attr struct {
	slog slog.Attr
}

// String returns a string attribute.
func String[T ~string](k string, v T) Attr {
	return Attr{slog.String(k, string(v))}
}

// Type returns a string attribute set to the name of v's type, with any
// pointer indirection removed.
func Type(k string, v any) Attr {
	t := reflect.TypeOf(v)
	if t == nil {
		return String(k, "<nil>")
	}

	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return String(k, t.String())
}

// Bool returns a boolean attribute.
func Bool[T ~bool](k string, v T) Attr {
	return Attr{slog.Bool(k, bool(v))}
}

// Int returns an integer attribute. Unsigned values that overflow int64 wrap.
func Int[T constraints.Integer](k string, v T) Attr {
	return Attr{slog.Int64(k, int64(v))}
}

// Duration returns a duration attribute. It is recorded as a string in
// OpenTelemetry.
func Duration(k string, v time.Duration) Attr {
	return Attr{slog.Duration(k, v)}
}

func (a Attr) asAttrKeyValue() (attribute.KeyValue, bool) {
	k := a.slog.Key
	v := a.slog.Value

	switch v.Kind() {
	case slog.KindString:
		return attribute.String(k, v.String()), true
	case slog.KindBool:
		return attribute.Bool(k, v.Bool()), true
	case slog.KindInt64:
		return attribute.Int64(k, v.Int64()), true
	case slog.KindDuration:
		return attribute.String(k, v.Duration().String()), true
	default:
		return attribute.KeyValue{}, false
	}
}

func asAttrKeyValues(attrs []Attr) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs))

	for _, a := range attrs {
		if kv, ok := a.asAttrKeyValue(); ok {
			kvs = append(kvs, kv)
		}
	}

	return kvs
}

func asSlogAttrs(attrs []Attr) []any {
	args := make([]any, 0, len(attrs))

	for _, a := range attrs {
		if a.slog.Key != "" {
			args = append(args, a.slog)
		}
	}

	return args
}
