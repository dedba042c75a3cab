package memory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dogmatiq/ledger/persistence/kv"
	"golang.org/x/exp/maps"
)

// KeyValueStore is an implementation of [kv.Store] that stores keyspaces in
// memory.
type KeyValueStore struct {
	m         sync.Mutex
	keyspaces map[string]*keyspaceData

	// BeforeSet, if non-nil, is called before a key in any keyspace is set or
	// deleted. If it returns an error the keyspace is left unchanged.
	BeforeSet func(keyspace string, k, v []byte) error
}

var _ kv.Store = (*KeyValueStore)(nil)

// errKeyspaceClosed is returned when a closed keyspace is used.
var errKeyspaceClosed = errors.New("keyspace is closed")

// Open returns the keyspace with the given name.
func (s *KeyValueStore) Open(ctx context.Context, name string) (kv.Keyspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.m.Lock()
	defer s.m.Unlock()

	data, ok := s.keyspaces[name]
	if !ok {
		if s.keyspaces == nil {
			s.keyspaces = map[string]*keyspaceData{}
		}

		data = &keyspaceData{}
		s.keyspaces[name] = data
	}

	return &keyspace{
		store: s,
		name:  name,
		data:  data,
	}, nil
}

type keyspaceData struct {
	m      sync.RWMutex
	values map[string][]byte
}

type keyspace struct {
	store  *KeyValueStore
	name   string
	data   *keyspaceData
	closed atomic.Bool
}

func (ks *keyspace) Get(ctx context.Context, k []byte) ([]byte, error) {
	if ks.closed.Load() {
		return nil, errKeyspaceClosed
	}

	ks.data.m.RLock()
	v := slices.Clone(ks.data.values[string(k)])
	ks.data.m.RUnlock()

	return v, ctx.Err()
}

func (ks *keyspace) Has(ctx context.Context, k []byte) (bool, error) {
	if ks.closed.Load() {
		return false, errKeyspaceClosed
	}

	ks.data.m.RLock()
	_, ok := ks.data.values[string(k)]
	ks.data.m.RUnlock()

	return ok, ctx.Err()
}

func (ks *keyspace) Set(ctx context.Context, k, v []byte) error {
	if ks.closed.Load() {
		return errKeyspaceClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if fn := ks.store.BeforeSet; fn != nil {
		if err := fn(ks.name, k, v); err != nil {
			return err
		}
	}

	ks.data.m.Lock()
	defer ks.data.m.Unlock()

	if len(v) == 0 {
		delete(ks.data.values, string(k))
		return nil
	}

	if ks.data.values == nil {
		ks.data.values = map[string][]byte{}
	}

	ks.data.values[string(k)] = slices.Clone(v)

	return nil
}

// Range calls fn for each key in ascending order. It operates on a snapshot of
// the keyspace, so fn may modify the keyspace.
func (ks *keyspace) Range(ctx context.Context, fn kv.RangeFunc) error {
	if ks.closed.Load() {
		return errKeyspaceClosed
	}

	ks.data.m.RLock()
	values := maps.Clone(ks.data.values)
	ks.data.m.RUnlock()

	keys := maps.Keys(values)
	slices.Sort(keys)

	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}

		ok, err := fn(ctx, []byte(k), values[k])
		if !ok || err != nil {
			return err
		}
	}

	return nil
}

// Truncate deletes every key in the keyspace.
func (ks *keyspace) Truncate(ctx context.Context) error {
	if ks.closed.Load() {
		return errKeyspaceClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	ks.data.m.Lock()
	ks.data.values = nil
	ks.data.m.Unlock()

	return nil
}

func (ks *keyspace) Close() error {
	if !ks.closed.CompareAndSwap(false, true) {
		return errKeyspaceClosed
	}
	return nil
}
