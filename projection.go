package ledger

import (
	"context"
	"errors"

	"github.com/dogmatiq/ledger/projection"
)

// RegisterInline registers a projection that is applied within the write path
// of every session created by e. Its read models are stored in the engine's
// key/value store.
func RegisterInline[K ~string, M any](
	ctx context.Context,
	e *Engine,
	d projection.Descriptor,
	p projection.Projection[K, M],
) (*projection.Handle[K, M], error) {
	return register(ctx, e, d, p, projection.RegisterInline[K, M])
}

// RegisterAsync registers a projection that is applied in the background by
// e. Its read models are stored in the engine's key/value store.
func RegisterAsync[K ~string, M any](
	ctx context.Context,
	e *Engine,
	d projection.Descriptor,
	p projection.Projection[K, M],
) (*projection.Handle[K, M], error) {
	return register(ctx, e, d, p, projection.RegisterAsync[K, M])
}

func register[K ~string, M any](
	ctx context.Context,
	e *Engine,
	d projection.Descriptor,
	p projection.Projection[K, M],
	fn func(
		*projection.Registry,
		projection.Descriptor,
		projection.Projection[K, M],
		projection.ReadModelStore[K, M],
	) (*projection.Handle[K, M], error),
) (*projection.Handle[K, M], error) {
	ks, err := e.store.Open(ctx, readModelKeyspace+d.Name)
	if err != nil {
		return nil, err
	}

	h, err := fn(
		e.registry,
		d,
		p,
		&projection.KeyspaceStore[K, M]{Keyspace: ks},
	)
	if err != nil {
		return nil, errors.Join(err, ks.Close())
	}

	e.keyspaces = append(e.keyspaces, ks)

	return h, nil
}
