package projection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dogmatiq/ledger/persistence/kv"
)

// Position records how far through the event log a projection has
// progressed.
type Position struct {
	// LastProcessedSequence is the global sequence of the last event that was
	// processed. It is meaningless if Processed is false.
	LastProcessedSequence uint64 `json:"last_processed_sequence"`

	// Processed is false if no events have been processed.
	Processed bool `json:"processed"`

	// SchemaHash is the schema hash of the projection when the position was
	// recorded.
	SchemaHash string `json:"schema_hash,omitempty"`
}

// Next returns the global sequence of the first event that has not been
// processed.
func (p Position) Next() uint64 {
	if p.Processed {
		return p.LastProcessedSequence + 1
	}
	return 1
}

// PositionStore persists the positions of projections.
type PositionStore interface {
	// LoadPosition returns the position of the named projection. ok is false
	// if no position has been recorded.
	LoadPosition(ctx context.Context, name string) (pos Position, ok bool, err error)

	// SavePosition records the position of the named projection.
	SavePosition(ctx context.Context, name string, pos Position) error

	// ResetPosition removes the position of the named projection.
	ResetPosition(ctx context.Context, name string) error
}

// KeyspacePositionStore is an implementation of [PositionStore] that persists
// JSON encoded positions in a [kv.Keyspace].
type KeyspacePositionStore struct {
	Keyspace kv.Keyspace
}

// LoadPosition returns the position of the named projection.
func (s *KeyspacePositionStore) LoadPosition(ctx context.Context, name string) (Position, bool, error) {
	data, err := s.Keyspace.Get(ctx, []byte(name))
	if err != nil || len(data) == 0 {
		return Position{}, false, err
	}

	var pos Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return Position{}, false, fmt.Errorf("unable to unmarshal position of %q: %w", name, err)
	}

	return pos, true, nil
}

// SavePosition records the position of the named projection.
func (s *KeyspacePositionStore) SavePosition(ctx context.Context, name string, pos Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("unable to marshal position of %q: %w", name, err)
	}

	return s.Keyspace.Set(ctx, []byte(name), data)
}

// ResetPosition removes the position of the named projection.
func (s *KeyspacePositionStore) ResetPosition(ctx context.Context, name string) error {
	return s.Keyspace.Set(ctx, []byte(name), nil)
}
