package kv

import "context"

// A RangeFunc is a function used to range over the key/value pairs in a
// [Keyspace].
//
// If err is non-nil, ranging stops and err is propagated up the stack.
// Otherwise, if ok is false, ranging stops without any error being propagated.
type RangeFunc func(ctx context.Context, k, v []byte) (ok bool, err error)

// A Keyspace is an isolated collection of key/value pairs.
//
// Read models, projection positions and dead-lettered events are all persisted
// in keyspaces.
type Keyspace interface {
	// Get returns the value associated with k.
	//
	// If the key does not exist v is empty.
	Get(ctx context.Context, k []byte) (v []byte, err error)

	// Has returns true if k is present in the keyspace.
	Has(ctx context.Context, k []byte) (ok bool, err error)

	// Set associates a value with k.
	//
	// If v is empty, the key is deleted.
	Set(ctx context.Context, k, v []byte) error

	// Range invokes fn for each key in the keyspace in an undefined order.
	//
	// fn must not modify the keyspace.
	Range(ctx context.Context, fn RangeFunc) error

	// Close closes the keyspace.
	Close() error
}

// Keys returns all of the keys in ks.
func Keys(ctx context.Context, ks Keyspace) ([][]byte, error) {
	var keys [][]byte

	err := ks.Range(
		ctx,
		func(_ context.Context, k, _ []byte) (bool, error) {
			keys = append(keys, k)
			return true, nil
		},
	)

	return keys, err
}

// Truncater is an optional interface implemented by a [Keyspace] that can
// delete all of its keys without ranging over them.
type Truncater interface {
	Truncate(ctx context.Context) error
}

// Truncate deletes every key in ks.
func Truncate(ctx context.Context, ks Keyspace) error {
	if t, ok := ks.(Truncater); ok {
		return t.Truncate(ctx)
	}

	keys, err := Keys(ctx, ks)
	if err != nil {
		return err
	}

	for _, k := range keys {
		if err := ks.Set(ctx, k, nil); err != nil {
			return err
		}
	}

	return nil
}
