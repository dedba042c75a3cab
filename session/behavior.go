package session

import (
	"fmt"
	"reflect"

	"github.com/dogmatiq/ledger/persistence/eventstore"
)

// Factory constructs a new aggregate from the event that created it.
type Factory func(id eventstore.StreamID, event any) (any, error)

// Applier returns the result of applying an event to an aggregate.
//
// It may mutate and return the aggregate in place, or return a new value.
type Applier func(aggregate, event any) (any, error)

// BehaviorProvider supplies the functions used to construct and mutate
// aggregates in response to events.
type BehaviorProvider interface {
	// Factory returns the function that creates an aggregate of the given type
	// from an event of the given type.
	Factory(aggregateType, eventType string) (Factory, bool)

	// Applier returns the function that applies an event of the given type to
	// an aggregate of the given type.
	Applier(aggregateType, eventType string) (Applier, bool)
}

// AggregateType returns the aggregate type name used for T when looking up
// behaviors.
func AggregateType[T any]() string {
	return reflect.TypeFor[T]().String()
}

// Behaviors is a [BehaviorProvider] populated by registering functions.
//
// It must not be modified once it is in use by a [Session].
type Behaviors struct {
	factories map[behaviorKey]Factory
	appliers  map[behaviorKey]Applier
}

type behaviorKey struct {
	AggregateType string
	EventType     string
}

// Factory returns the function that creates an aggregate of the given type
// from an event of the given type.
func (b *Behaviors) Factory(aggregateType, eventType string) (Factory, bool) {
	f, ok := b.factories[behaviorKey{aggregateType, eventType}]
	return f, ok
}

// Applier returns the function that applies an event of the given type to an
// aggregate of the given type.
func (b *Behaviors) Applier(aggregateType, eventType string) (Applier, bool) {
	a, ok := b.appliers[behaviorKey{aggregateType, eventType}]
	return a, ok
}

// RegisterFactory registers the function that creates an aggregate of the
// given type from an event of the given type.
func (b *Behaviors) RegisterFactory(aggregateType, eventType string, f Factory) {
	k := behaviorKey{aggregateType, eventType}

	if _, ok := b.factories[k]; ok {
		panic(fmt.Sprintf("factory for %q events on %s is already registered", eventType, aggregateType))
	}

	if b.factories == nil {
		b.factories = map[behaviorKey]Factory{}
	}

	b.factories[k] = f
}

// RegisterApplier registers the function that applies an event of the given
// type to an aggregate of the given type.
func (b *Behaviors) RegisterApplier(aggregateType, eventType string, a Applier) {
	k := behaviorKey{aggregateType, eventType}

	if _, ok := b.appliers[k]; ok {
		panic(fmt.Sprintf("applier for %q events on %s is already registered", eventType, aggregateType))
	}

	if b.appliers == nil {
		b.appliers = map[behaviorKey]Applier{}
	}

	b.appliers[k] = a
}

// OnCreate registers a function that creates an aggregate of type A from an
// event of type E.
func OnCreate[A, E any](
	b *Behaviors,
	eventType string,
	fn func(eventstore.StreamID, E) (A, error),
) {
	b.RegisterFactory(
		AggregateType[A](),
		eventType,
		func(id eventstore.StreamID, event any) (any, error) {
			ev, ok := event.(E)
			if !ok {
				return nil, fmt.Errorf("expected %q event to be %s, got %T", eventType, reflect.TypeFor[E](), event)
			}
			return fn(id, ev)
		},
	)
}

// OnApply registers a function that applies an event of type E to an
// aggregate of type A.
func OnApply[A, E any](
	b *Behaviors,
	eventType string,
	fn func(A, E) (A, error),
) {
	b.RegisterApplier(
		AggregateType[A](),
		eventType,
		func(aggregate, event any) (any, error) {
			agg, ok := aggregate.(A)
			if !ok {
				return nil, fmt.Errorf("expected aggregate to be %s, got %T", reflect.TypeFor[A](), aggregate)
			}

			ev, ok := event.(E)
			if !ok {
				return nil, fmt.Errorf("expected %q event to be %s, got %T", eventType, reflect.TypeFor[E](), event)
			}

			return fn(agg, ev)
		},
	)
}
