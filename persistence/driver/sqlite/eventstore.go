package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/dogmatiq/ledger/persistence/eventstore"
	"golang.org/x/exp/maps"
)

// EventStore is an implementation of [eventstore.AtomicEventStore] and
// [eventstore.GlobalReader] that stores events in an SQLite database.
//
// The schema must be created with [CreateSchema] before the store is used.
type EventStore struct {
	DB *sql.DB
}

var (
	_ eventstore.AtomicEventStore = (*EventStore)(nil)
	_ eventstore.GlobalReader     = (*EventStore)(nil)
)

const selectEvents = `SELECT
	global_sequence,
	event_id,
	stream_id,
	version,
	event_type,
	data,
	occurred_on,
	metadata
FROM events`

// LoadStream returns all events in the given stream, ordered by version.
func (s *EventStore) LoadStream(
	ctx context.Context,
	id eventstore.StreamID,
) ([]eventstore.StoredEvent, error) {
	rows, err := s.DB.QueryContext(
		ctx,
		selectEvents+`
		WHERE stream_id = ?
		ORDER BY version`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load stream %q: %w", id, err)
	}

	return scanEvents(rows)
}

// AppendEvents appends events to a stream.
func (s *EventStore) AppendEvents(
	ctx context.Context,
	id eventstore.StreamID,
	expected eventstore.ExpectedVersion,
	events []eventstore.StoredEvent,
) ([]eventstore.StoredEvent, error) {
	stored, err := s.AppendToStreams(
		ctx,
		map[eventstore.StreamID]eventstore.Batch{
			id: {Expected: expected, Events: events},
		},
	)
	return stored[id], err
}

// AppendToStreams appends events to several streams within a single
// transaction.
func (s *EventStore) AppendToStreams(
	ctx context.Context,
	batches map[eventstore.StreamID]eventstore.Batch,
) (map[eventstore.StreamID][]eventstore.StoredEvent, error) {
	ids := maps.Keys(batches)
	slices.Sort(ids)

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	current := make(map[eventstore.StreamID]int64, len(ids))

	for _, id := range ids {
		v, err := streamVersion(ctx, tx, id)
		if err != nil {
			return nil, err
		}

		b := batches[id]
		if err := eventstore.CheckAppend(id, b.Expected, v, b.Events); err != nil {
			return nil, err
		}

		current[id] = v
	}

	result := make(map[eventstore.StreamID][]eventstore.StoredEvent, len(ids))

	for _, id := range ids {
		stored := eventstore.Stamp(id, current[id], 0, batches[id].Events)

		for i, ev := range stored {
			seq, err := insertEvent(ctx, tx, ev)
			if err != nil {
				if isConstraintError(err) {
					// The pool has a single connection, which the transaction
					// must release before the conflict can be inspected.
					tx.Rollback() // nolint:errcheck
					return nil, s.conflict(ctx, []eventstore.StreamID{id}, batches)
				}
				return nil, err
			}

			stored[i].GlobalSequence = seq
		}

		result[id] = stored
	}

	if err := tx.Commit(); err != nil {
		if isConstraintError(err) {
			return nil, s.conflict(ctx, ids, batches)
		}
		return nil, fmt.Errorf("unable to commit transaction: %w", err)
	}

	return result, nil
}

// conflict builds a concurrency error after a unique constraint violation,
// which occurs when another writer appended to one of the streams identified
// by ids first.
//
// The error describes the first of those streams whose current version does
// not match its batch's expected version.
func (s *EventStore) conflict(
	ctx context.Context,
	ids []eventstore.StreamID,
	batches map[eventstore.StreamID]eventstore.Batch,
) error {
	var first *eventstore.ConcurrencyError

	for _, id := range ids {
		actual, err := streamVersion(ctx, s.DB, id)
		if err != nil {
			return err
		}

		expected := batches[id].Expected
		conflict := &eventstore.ConcurrencyError{
			StreamID: id,
			Expected: expected,
			Actual:   actual,
		}

		if !expected.Matches(actual) {
			return conflict
		}

		if first == nil {
			first = conflict
		}
	}

	return first
}

// LoadEventsFromPosition returns up to limit events with a global sequence
// greater than or equal to from.
func (s *EventStore) LoadEventsFromPosition(
	ctx context.Context,
	from uint64,
	limit int,
) ([]eventstore.StoredEvent, error) {
	rows, err := s.DB.QueryContext(
		ctx,
		selectEvents+`
		WHERE global_sequence >= ?
		ORDER BY global_sequence
		LIMIT ?`,
		int64(from),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load events from position %d: %w", from, err)
	}

	return scanEvents(rows)
}

// MaxGlobalSequence returns the global sequence of the most recently appended
// event.
func (s *EventStore) MaxGlobalSequence(ctx context.Context) (uint64, bool, error) {
	var seq sql.NullInt64

	if err := s.DB.QueryRowContext(
		ctx,
		`SELECT MAX(global_sequence) FROM events`,
	).Scan(&seq); err != nil {
		return 0, false, err
	}

	return uint64(seq.Int64), seq.Valid, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func streamVersion(
	ctx context.Context,
	q querier,
	id eventstore.StreamID,
) (int64, error) {
	var v sql.NullInt64

	if err := q.QueryRowContext(
		ctx,
		`SELECT MAX(version) FROM events WHERE stream_id = ?`,
		id,
	).Scan(&v); err != nil {
		return 0, fmt.Errorf("unable to load version of stream %q: %w", id, err)
	}

	if !v.Valid {
		return -1, nil
	}

	return v.Int64, nil
}

func insertEvent(
	ctx context.Context,
	tx *sql.Tx,
	ev eventstore.StoredEvent,
) (uint64, error) {
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return 0, fmt.Errorf("unable to marshal metadata of event %q: %w", ev.EventID, err)
	}

	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO events (
			event_id,
			stream_id,
			version,
			event_type,
			data,
			occurred_on,
			metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID,
		ev.StreamID,
		ev.Version,
		ev.EventType,
		ev.Data,
		ev.OccurredOn.UnixNano(),
		string(metadata),
	)
	if err != nil {
		return 0, err
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	return uint64(seq), nil
}

func scanEvents(rows *sql.Rows) ([]eventstore.StoredEvent, error) {
	defer rows.Close()

	var events []eventstore.StoredEvent

	for rows.Next() {
		var (
			ev         eventstore.StoredEvent
			seq        int64
			occurredOn int64
			metadata   string
		)

		if err := rows.Scan(
			&seq,
			&ev.EventID,
			&ev.StreamID,
			&ev.Version,
			&ev.EventType,
			&ev.Data,
			&occurredOn,
			&metadata,
		); err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(metadata), &ev.Metadata); err != nil {
			return nil, fmt.Errorf("unable to unmarshal metadata of event %q: %w", ev.EventID, err)
		}

		ev.GlobalSequence = uint64(seq)
		ev.OccurredOn = time.Unix(0, occurredOn).UTC()
		events = append(events, ev)
	}

	return events, rows.Err()
}
