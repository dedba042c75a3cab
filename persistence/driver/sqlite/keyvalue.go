package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dogmatiq/ledger/persistence/kv"
)

// KeyValueStore is an implementation of [kv.Store] that stores keyspaces in an
// SQLite database.
//
// The schema must be created with [CreateSchema] before the store is used.
type KeyValueStore struct {
	DB *sql.DB
}

// Open returns the keyspace with the given name.
func (s *KeyValueStore) Open(ctx context.Context, name string) (kv.Keyspace, error) {
	return &keyspace{
		Name: name,
		DB:   s.DB,
	}, ctx.Err()
}

type keyspace struct {
	Name string
	DB   *sql.DB
}

func (ks *keyspace) Get(ctx context.Context, k []byte) (v []byte, err error) {
	err = ks.DB.QueryRowContext(
		ctx,
		`SELECT value FROM kv WHERE keyspace = ? AND key = ?`,
		ks.Name,
		k,
	).Scan(&v)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	return v, err
}

func (ks *keyspace) Has(ctx context.Context, k []byte) (ok bool, err error) {
	err = ks.DB.QueryRowContext(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM kv WHERE keyspace = ? AND key = ?)`,
		ks.Name,
		k,
	).Scan(&ok)

	return ok, err
}

func (ks *keyspace) Set(ctx context.Context, k, v []byte) error {
	if len(v) == 0 {
		_, err := ks.DB.ExecContext(
			ctx,
			`DELETE FROM kv WHERE keyspace = ? AND key = ?`,
			ks.Name,
			k,
		)
		return err
	}

	_, err := ks.DB.ExecContext(
		ctx,
		`INSERT INTO kv (keyspace, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT (keyspace, key) DO UPDATE SET
			value = excluded.value`,
		ks.Name,
		k,
		v,
	)

	return err
}

func (ks *keyspace) Range(
	ctx context.Context,
	fn kv.RangeFunc,
) error {
	pairs, err := ks.load(ctx)
	if err != nil {
		return err
	}

	for _, p := range pairs {
		ok, err := fn(ctx, p[0], p[1])
		if !ok || err != nil {
			return err
		}
	}

	return nil
}

// load reads every key/value pair in the keyspace. The rows are read in full
// before any of them are returned so that the connection is released before
// control returns to the caller.
func (ks *keyspace) load(ctx context.Context) ([][2][]byte, error) {
	rows, err := ks.DB.QueryContext(
		ctx,
		`SELECT key, value FROM kv WHERE keyspace = ?`,
		ks.Name,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs [][2][]byte

	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		pairs = append(pairs, [2][]byte{k, v})
	}

	return pairs, rows.Err()
}

// Truncate deletes every key in the keyspace with a single statement.
func (ks *keyspace) Truncate(ctx context.Context) error {
	_, err := ks.DB.ExecContext(
		ctx,
		`DELETE FROM kv WHERE keyspace = ?`,
		ks.Name,
	)
	return err
}

func (ks *keyspace) Close() error {
	return nil
}
