package sqlite

import (
	"context"
	"database/sql"
)

// CreateSchema creates the SQLite tables required by [EventStore] and
// [KeyValueStore].
func CreateSchema(
	ctx context.Context,
	db *sql.DB,
) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		global_sequence INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id        TEXT    NOT NULL UNIQUE,
		stream_id       TEXT    NOT NULL,
		version         INTEGER NOT NULL,
		event_type      TEXT    NOT NULL,
		data            BLOB,
		occurred_on     INTEGER NOT NULL,
		metadata        TEXT    NOT NULL,

		UNIQUE (stream_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS kv (
		keyspace TEXT NOT NULL,
		key      BLOB NOT NULL,
		value    BLOB NOT NULL,

		PRIMARY KEY (keyspace, key)
	)`,
}
