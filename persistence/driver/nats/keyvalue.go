package nats

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dogmatiq/ledger/persistence/kv"
	"github.com/nats-io/nats.go/jetstream"
)

// KeyValueStore is an implementation of [kv.Store] that persists each keyspace
// in its own NATS JetStream key/value bucket.
type KeyValueStore struct {
	// JetStream is the JetStream context used to access buckets.
	JetStream jetstream.JetStream

	// Replicas is the number of replicas used when creating a bucket. If it
	// is zero the server default is used.
	Replicas int

	buckets sync.Map // map[string]jetstream.KeyValue
}

// Open returns the keyspace with the given name, creating its bucket if
// necessary.
func (s *KeyValueStore) Open(ctx context.Context, name string) (kv.Keyspace, error) {
	bucket := BucketName(name)

	if b, ok := s.buckets.Load(bucket); ok {
		return &keyspace{b.(jetstream.KeyValue)}, nil
	}

	b, err := s.JetStream.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		b, err = s.JetStream.CreateKeyValue(
			ctx,
			jetstream.KeyValueConfig{
				Bucket:      bucket,
				Description: "ledger keyspace: " + name,
				History:     1,
				Replicas:    s.Replicas,
			},
		)

		if errors.Is(err, jetstream.ErrBucketExists) {
			b, err = s.JetStream.KeyValue(ctx, bucket)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open bucket for keyspace %q: %w", name, err)
	}

	actual, _ := s.buckets.LoadOrStore(bucket, b)
	return &keyspace{actual.(jetstream.KeyValue)}, nil
}

// BucketName returns the name of the bucket used to store the keyspace with
// the given name.
//
// Keyspace names may contain characters that are not permitted in bucket
// names, so the name is derived from a hash of the keyspace name.
func BucketName(keyspace string) string {
	return "ledger_" + strconv.FormatUint(xxhash.Sum64String(keyspace), 16)
}

type keyspace struct {
	bucket jetstream.KeyValue
}

func encodeKey(k []byte) string {
	return base64.RawURLEncoding.EncodeToString(k)
}

func (ks *keyspace) Get(ctx context.Context, k []byte) ([]byte, error) {
	entry, err := ks.bucket.Get(ctx, encodeKey(k))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return entry.Value(), nil
}

func (ks *keyspace) Has(ctx context.Context, k []byte) (bool, error) {
	_, err := ks.bucket.Get(ctx, encodeKey(k))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return false, nil
	}

	return err == nil, err
}

func (ks *keyspace) Set(ctx context.Context, k, v []byte) error {
	key := encodeKey(k)

	if len(v) == 0 {
		err := ks.bucket.Delete(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil
		}
		return err
	}

	_, err := ks.bucket.Put(ctx, key, v)
	return err
}

func (ks *keyspace) Range(ctx context.Context, fn kv.RangeFunc) error {
	keys, err := ks.bucket.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, key := range keys {
		k, err := base64.RawURLEncoding.DecodeString(key)
		if err != nil {
			return fmt.Errorf("bucket contains an invalid key %q: %w", key, err)
		}

		entry, err := ks.bucket.Get(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			// deleted since the keys were listed
			continue
		}
		if err != nil {
			return err
		}

		ok, err := fn(ctx, k, entry.Value())
		if !ok || err != nil {
			return err
		}
	}

	return nil
}

func (ks *keyspace) Close() error {
	return nil
}
