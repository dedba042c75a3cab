package kv

import (
	"context"

	"github.com/dogmatiq/ledger/internal/telemetry"
)

// WithTelemetry returns a [Store] that records traces, metrics and logs for
// each operation performed on s.
func WithTelemetry(s Store, p *telemetry.Provider) Store {
	return &instrumentedStore{
		Next:      s,
		Telemetry: p,
	}
}

type instrumentedStore struct {
	Next      Store
	Telemetry *telemetry.Provider
}

var (
	readDirection  = telemetry.String("io.direction", "read")
	writeDirection = telemetry.String("io.direction", "write")
)

func (s *instrumentedStore) Open(ctx context.Context, name string) (Keyspace, error) {
	r := s.Telemetry.Recorder(
		"persistence/kv",
		telemetry.Type("store", s.Next),
		telemetry.String("keyspace", name),
	)

	ctx, span := r.StartSpan(ctx, "keyspace.open")
	defer span.End()

	next, err := s.Next.Open(ctx, name)
	if err != nil {
		r.Error(ctx, "keyspace.open.failed", err)
		return nil, err
	}

	ks := &instrumentedKeyspace{
		Next:      next,
		Telemetry: r,
		OpenCount: r.UpDownCounter(
			"keyspaces.open",
			"{keyspace}",
			"The number of keyspaces that are currently open.",
		),
		DataIO: r.Counter(
			"keyspace.io",
			"By",
			"The cumulative size of the keys and values that have been read and written.",
		),
		PairIO: r.Counter(
			"keyspace.pair.io",
			"{pair}",
			"The number of key/value pairs that have been read and written.",
		),
	}

	ks.OpenCount(ctx, 1)
	r.Debug(ctx, "keyspace.open.ok", "opened keyspace")

	return ks, nil
}

type instrumentedKeyspace struct {
	Next      Keyspace
	Telemetry *telemetry.Recorder

	OpenCount telemetry.Instrument[int64]
	DataIO    telemetry.Instrument[int64]
	PairIO    telemetry.Instrument[int64]
}

func (ks *instrumentedKeyspace) Get(ctx context.Context, k []byte) ([]byte, error) {
	ctx, span := ks.Telemetry.StartSpan(
		ctx,
		"keyspace.get",
		telemetry.Int("key_size", len(k)),
	)
	defer span.End()

	v, err := ks.Next.Get(ctx, k)
	if err != nil {
		span.SetError(err)
		ks.Telemetry.Error(ctx, "keyspace.get.failed", err)
		return nil, err
	}

	span.SetAttributes(
		telemetry.Bool("found", len(v) != 0),
		telemetry.Int("value_size", len(v)),
	)

	if len(v) != 0 {
		ks.DataIO(ctx, int64(len(k)+len(v)), readDirection)
		ks.PairIO(ctx, 1, readDirection)
	}

	return v, nil
}

func (ks *instrumentedKeyspace) Has(ctx context.Context, k []byte) (bool, error) {
	ctx, span := ks.Telemetry.StartSpan(
		ctx,
		"keyspace.has",
		telemetry.Int("key_size", len(k)),
	)
	defer span.End()

	ok, err := ks.Next.Has(ctx, k)
	if err != nil {
		span.SetError(err)
		ks.Telemetry.Error(ctx, "keyspace.has.failed", err)
		return false, err
	}

	span.SetAttributes(telemetry.Bool("found", ok))

	return ok, nil
}

func (ks *instrumentedKeyspace) Set(ctx context.Context, k, v []byte) error {
	op := "keyspace.set"
	if len(v) == 0 {
		op = "keyspace.delete"
	}

	ctx, span := ks.Telemetry.StartSpan(
		ctx,
		op,
		telemetry.Int("key_size", len(k)),
		telemetry.Int("value_size", len(v)),
	)
	defer span.End()

	if err := ks.Next.Set(ctx, k, v); err != nil {
		span.SetError(err)
		ks.Telemetry.Error(ctx, op+".failed", err)
		return err
	}

	ks.DataIO(ctx, int64(len(k)+len(v)), writeDirection)
	ks.PairIO(ctx, 1, writeDirection)

	return nil
}

func (ks *instrumentedKeyspace) Range(ctx context.Context, fn RangeFunc) error {
	ctx, span := ks.Telemetry.StartSpan(ctx, "keyspace.range")
	defer span.End()

	var (
		count, size int64
		stopped     bool
	)

	err := ks.Next.Range(
		ctx,
		func(ctx context.Context, k, v []byte) (bool, error) {
			count++
			size += int64(len(k) + len(v))

			ks.DataIO(ctx, int64(len(k)+len(v)), readDirection)
			ks.PairIO(ctx, 1, readDirection)

			ok, err := fn(ctx, k, v)
			if !ok && err == nil {
				stopped = true
			}
			return ok, err
		},
	)

	span.SetAttributes(
		telemetry.Int("pairs_read", count),
		telemetry.Int("bytes_read", size),
		telemetry.Bool("reached_end", !stopped && err == nil),
	)

	if err != nil {
		span.SetError(err)
		ks.Telemetry.Error(ctx, "keyspace.range.failed", err)
		return err
	}

	return nil
}

func (ks *instrumentedKeyspace) Truncate(ctx context.Context) error {
	ctx, span := ks.Telemetry.StartSpan(ctx, "keyspace.truncate")
	defer span.End()

	if err := Truncate(ctx, ks.Next); err != nil {
		span.SetError(err)
		ks.Telemetry.Error(ctx, "keyspace.truncate.failed", err)
		return err
	}

	ks.Telemetry.Debug(ctx, "keyspace.truncate.ok", "truncated keyspace")

	return nil
}

func (ks *instrumentedKeyspace) Close() error {
	ctx := context.Background()

	if ks.Next == nil {
		ks.Telemetry.Warn(ctx, "keyspace.close.redundant", "keyspace is already closed")
		return nil
	}

	next := ks.Next
	ks.Next = nil
	ks.OpenCount(ctx, -1)

	if err := next.Close(); err != nil {
		ks.Telemetry.Error(ctx, "keyspace.close.failed", err)
		return err
	}

	ks.Telemetry.Debug(ctx, "keyspace.close.ok", "closed keyspace")

	return nil
}
