package projection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dogmatiq/ledger/persistence/kv"
)

// KeyspaceStore is an implementation of [ReadModelStore] that persists JSON
// encoded read models in a [kv.Keyspace].
type KeyspaceStore[K ~string, M any] struct {
	Keyspace kv.Keyspace
}

// Load returns the read model with the given key.
func (s *KeyspaceStore[K, M]) Load(ctx context.Context, key K) (M, bool, error) {
	var model M

	data, err := s.Keyspace.Get(ctx, []byte(key))
	if err != nil || len(data) == 0 {
		return model, false, err
	}

	if err := json.Unmarshal(data, &model); err != nil {
		return model, false, fmt.Errorf("unable to unmarshal read model %q: %w", key, err)
	}

	return model, true, nil
}

// Save persists a read model.
func (s *KeyspaceStore[K, M]) Save(ctx context.Context, key K, model M) error {
	data, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("unable to marshal read model %q: %w", key, err)
	}

	return s.Keyspace.Set(ctx, []byte(key), data)
}

// Delete removes the read model with the given key.
func (s *KeyspaceStore[K, M]) Delete(ctx context.Context, key K) error {
	return s.Keyspace.Set(ctx, []byte(key), nil)
}

// Clear removes all read models.
func (s *KeyspaceStore[K, M]) Clear(ctx context.Context) error {
	return kv.Truncate(ctx, s.Keyspace)
}
