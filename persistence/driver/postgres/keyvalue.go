package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dogmatiq/ledger/persistence/kv"
)

// KeyValueStore is an implementation of [kv.Store] that stores keyspaces in a
// PostgreSQL database.
//
// The schema must be created with [CreateSchema] before the store is used.
type KeyValueStore struct {
	DB *sql.DB
}

var _ kv.Store = (*KeyValueStore)(nil)

// Open returns the keyspace with the given name.
func (s *KeyValueStore) Open(ctx context.Context, name string) (kv.Keyspace, error) {
	return &keyspace{
		name: name,
		db:   s.DB,
	}, ctx.Err()
}

type keyspace struct {
	name string
	db   *sql.DB
}

var (
	_ kv.Keyspace  = (*keyspace)(nil)
	_ kv.Truncater = (*keyspace)(nil)
)

const (
	selectValue = `SELECT value FROM ledger.kv WHERE keyspace = $1 AND key = $2`
	selectKey   = `SELECT EXISTS (SELECT 1 FROM ledger.kv WHERE keyspace = $1 AND key = $2)`
	selectPairs = `SELECT key, value FROM ledger.kv WHERE keyspace = $1 ORDER BY key`
	deleteKey   = `DELETE FROM ledger.kv WHERE keyspace = $1 AND key = $2`
	deleteAll   = `DELETE FROM ledger.kv WHERE keyspace = $1`
	upsertPair  = `INSERT INTO ledger.kv (keyspace, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (keyspace, key) DO UPDATE SET
			value = excluded.value`
)

func (ks *keyspace) Get(ctx context.Context, k []byte) ([]byte, error) {
	var v []byte

	err := ks.db.QueryRowContext(ctx, selectValue, ks.name, k).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	return v, err
}

func (ks *keyspace) Has(ctx context.Context, k []byte) (bool, error) {
	var ok bool
	err := ks.db.QueryRowContext(ctx, selectKey, ks.name, k).Scan(&ok)
	return ok, err
}

func (ks *keyspace) Set(ctx context.Context, k, v []byte) error {
	var err error

	if len(v) == 0 {
		_, err = ks.db.ExecContext(ctx, deleteKey, ks.name, k)
	} else {
		_, err = ks.db.ExecContext(ctx, upsertPair, ks.name, k, v)
	}

	return err
}

// Range calls fn for each key in ascending order.
func (ks *keyspace) Range(ctx context.Context, fn kv.RangeFunc) error {
	rows, err := ks.db.QueryContext(ctx, selectPairs, ks.name)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}

		ok, err := fn(ctx, k, v)
		if !ok || err != nil {
			return err
		}
	}

	return rows.Err()
}

// Truncate deletes every key in the keyspace with a single statement.
func (ks *keyspace) Truncate(ctx context.Context) error {
	_, err := ks.db.ExecContext(ctx, deleteAll, ks.name)
	return err
}

func (ks *keyspace) Close() error {
	return nil
}
