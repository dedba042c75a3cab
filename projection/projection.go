package projection

import (
	"context"
)

// Projection folds events into read models of type M, each identified by a
// key of type K.
//
// Events may be delivered more than once, so Apply must be idempotent.
type Projection[K comparable, M any] interface {
	// ExtractKey returns the key of the read model that event applies to.
	ExtractKey(event any) (K, error)

	// CreateInitial returns the read model to use when no model exists for
	// key.
	CreateInitial(key K) M

	// Apply returns the result of applying event to model.
	Apply(model M, event any) (M, error)
}

// Funcs is an implementation of [Projection] that delegates to functions.
type Funcs[K comparable, M any] struct {
	ExtractKeyFunc    func(event any) (K, error)
	CreateInitialFunc func(key K) M
	ApplyFunc         func(model M, event any) (M, error)
}

// ExtractKey returns the key of the read model that event applies to.
func (p Funcs[K, M]) ExtractKey(event any) (K, error) {
	return p.ExtractKeyFunc(event)
}

// CreateInitial returns the read model to use when no model exists for key.
func (p Funcs[K, M]) CreateInitial(key K) M {
	if p.CreateInitialFunc == nil {
		var zero M
		return zero
	}
	return p.CreateInitialFunc(key)
}

// Apply returns the result of applying event to model.
func (p Funcs[K, M]) Apply(model M, event any) (M, error) {
	return p.ApplyFunc(model, event)
}

// ReadModelStore persists the read models produced by a projection.
type ReadModelStore[K comparable, M any] interface {
	// Load returns the read model with the given key. ok is false if there is
	// no such model.
	Load(ctx context.Context, key K) (model M, ok bool, err error)

	// Save persists a read model.
	Save(ctx context.Context, key K, model M) error

	// Delete removes the read model with the given key, if it exists.
	Delete(ctx context.Context, key K) error

	// Clear removes all read models.
	Clear(ctx context.Context) error
}

// ReadModelResult is the result of querying a read model.
type ReadModelResult[M any] struct {
	// Value is the read model. It is the zero value if Found is false.
	Value M

	// Found is true if the read model exists.
	Found bool

	// IsStale is true if the projection is being rebuilt, in which case
	// neither Value nor Found is meaningful.
	IsStale bool
}
