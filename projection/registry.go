package projection

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dogmatiq/ledger/persistence/eventstore"
)

// Lifecycle determines when a projection is applied.
type Lifecycle int

const (
	// Inline projections are applied within the write path, before a session
	// commit returns.
	Inline Lifecycle = iota

	// Async projections are applied in the background by a [Processor].
	Async
)

func (l Lifecycle) String() string {
	switch l {
	case Inline:
		return "inline"
	case Async:
		return "async"
	default:
		return fmt.Sprintf("Lifecycle(%d)", int(l))
	}
}

// reservedPrefix is the prefix of names that are reserved for internal use
// within a [PositionStore].
const reservedPrefix = "$"

// Registry is a collection of projections, indexed by the event types they
// handle.
type Registry struct {
	m       sync.RWMutex
	byName  map[string]*Registration
	byEvent [2]map[string][]*Registration
	ordered [2][]*Registration
}

// Registration is a projection within a [Registry], with its key and read
// model types erased.
type Registration struct {
	descriptor Descriptor
	lifecycle  Lifecycle

	apply func(context.Context, any) error
	clear func(context.Context) error

	// m serializes application of events to the projection.
	m          sync.Mutex
	stale      atomic.Bool
	rebuilding atomic.Bool
}

// Name returns the projection's name.
func (r *Registration) Name() string {
	return r.descriptor.Name
}

// Descriptor returns the projection's descriptor.
func (r *Registration) Descriptor() Descriptor {
	return r.descriptor
}

// Lifecycle returns the projection's lifecycle.
func (r *Registration) Lifecycle() Lifecycle {
	return r.lifecycle
}

// Handles returns true if the projection handles events of the given type.
func (r *Registration) Handles(eventType string) bool {
	return r.descriptor.handles(eventType)
}

// IsStale returns true if the projection is being rebuilt, or if its most
// recent rebuild failed.
func (r *Registration) IsStale() bool {
	return r.stale.Load()
}

// applyEvent applies ev to the projection. r.m must be held.
func (r *Registration) applyEvent(ctx context.Context, ev eventstore.StoredEvent) error {
	err := ErrUnresolvedEvent
	if ev.Event != nil {
		err = r.apply(ctx, ev.Event)
	}

	if err != nil {
		return &ApplicationError{
			Projection:     r.descriptor.Name,
			EventID:        ev.EventID,
			EventType:      ev.EventType,
			GlobalSequence: ev.GlobalSequence,
			Cause:          err,
		}
	}

	return nil
}

// Handle provides typed access to a registered projection's read models.
type Handle[K comparable, M any] struct {
	registration *Registration
	store        ReadModelStore[K, M]
}

// Registration returns the projection's registration.
func (h *Handle[K, M]) Registration() *Registration {
	return h.registration
}

// Query returns the read model with the given key.
//
// If the projection is being rebuilt the result is marked as stale and the
// store is not consulted.
func (h *Handle[K, M]) Query(ctx context.Context, key K) (ReadModelResult[M], error) {
	if h.registration.IsStale() {
		return ReadModelResult[M]{IsStale: true}, nil
	}

	m, ok, err := h.store.Load(ctx, key)
	if err != nil {
		return ReadModelResult[M]{}, fmt.Errorf(
			"unable to query projection %q: %w",
			h.registration.Name(),
			err,
		)
	}

	return ReadModelResult[M]{Value: m, Found: ok}, nil
}

// RegisterInline registers a projection that is applied within the write
// path.
func RegisterInline[K comparable, M any](
	r *Registry,
	d Descriptor,
	p Projection[K, M],
	s ReadModelStore[K, M],
) (*Handle[K, M], error) {
	return register(r, Inline, d, p, s)
}

// RegisterAsync registers a projection that is applied in the background.
func RegisterAsync[K comparable, M any](
	r *Registry,
	d Descriptor,
	p Projection[K, M],
	s ReadModelStore[K, M],
) (*Handle[K, M], error) {
	return register(r, Async, d, p, s)
}

func register[K comparable, M any](
	r *Registry,
	lc Lifecycle,
	d Descriptor,
	p Projection[K, M],
	s ReadModelStore[K, M],
) (*Handle[K, M], error) {
	if p == nil {
		panic("projection must not be nil")
	}

	if s == nil {
		panic("read-model store must not be nil")
	}

	if d.Name == "" {
		return nil, &RegistrationError{d.Name, "name must not be empty"}
	}

	if strings.HasPrefix(d.Name, reservedPrefix) {
		return nil, &RegistrationError{d.Name, fmt.Sprintf("names beginning with %q are reserved", reservedPrefix)}
	}

	if len(d.EventTypes) == 0 {
		return nil, &RegistrationError{d.Name, "descriptor must specify at least one event type"}
	}

	d.EventTypes = slices.Clone(d.EventTypes)
	slices.Sort(d.EventTypes)
	d.EventTypes = slices.Compact(d.EventTypes)

	reg := &Registration{
		descriptor: d,
		lifecycle:  lc,
		apply: func(ctx context.Context, event any) error {
			key, err := p.ExtractKey(event)
			if err != nil {
				return fmt.Errorf("unable to extract key: %w", err)
			}

			model, ok, err := s.Load(ctx, key)
			if err != nil {
				return fmt.Errorf("unable to load read model: %w", err)
			}

			if !ok {
				model = p.CreateInitial(key)
			}

			model, err = p.Apply(model, event)
			if err != nil {
				return err
			}

			if err := s.Save(ctx, key, model); err != nil {
				return fmt.Errorf("unable to save read model: %w", err)
			}

			return nil
		},
		clear: s.Clear,
	}

	r.m.Lock()
	defer r.m.Unlock()

	if _, ok := r.byName[d.Name]; ok {
		return nil, &RegistrationError{d.Name, "a projection with the same name is already registered"}
	}

	if r.byName == nil {
		r.byName = map[string]*Registration{}
	}
	r.byName[d.Name] = reg

	index := r.byEvent[lc]
	if index == nil {
		index = map[string][]*Registration{}
		r.byEvent[lc] = index
	}

	for _, t := range d.EventTypes {
		index[t] = append(index[t], reg)
	}

	r.ordered[lc] = append(r.ordered[lc], reg)

	return &Handle[K, M]{reg, s}, nil
}

// ProjectionsFor returns the projections with the given lifecycle that
// handle events of the given type, in registration order.
func (r *Registry) ProjectionsFor(eventType string, lc Lifecycle) []*Registration {
	r.m.RLock()
	defer r.m.RUnlock()

	regs := r.byEvent[lc][eventType]
	return regs[:len(regs):len(regs)]
}

// SchemaHashOf returns the schema hash of the named projection, or an empty
// string if there is no such projection.
func (r *Registry) SchemaHashOf(name string) string {
	if reg, ok := r.Lookup(name); ok {
		return reg.descriptor.SchemaHash
	}
	return ""
}

// Lookup returns the named projection.
func (r *Registry) Lookup(name string) (*Registration, bool) {
	r.m.RLock()
	defer r.m.RUnlock()

	reg, ok := r.byName[name]
	return reg, ok
}

// Inline returns the inline projections, in registration order.
func (r *Registry) Inline() []*Registration {
	r.m.RLock()
	defer r.m.RUnlock()

	return slices.Clone(r.ordered[Inline])
}

// Async returns the async projections, in registration order.
func (r *Registry) Async() []*Registration {
	r.m.RLock()
	defer r.m.RUnlock()

	return slices.Clone(r.ordered[Async])
}
