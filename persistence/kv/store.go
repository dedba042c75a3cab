package kv

import (
	"context"
)

// Store is a collection of keyspaces.
type Store interface {
	// Open returns the keyspace with the given name.
	//
	// Opening the same name more than once returns handles to the same
	// underlying data.
	Open(ctx context.Context, name string) (Keyspace, error)
}
