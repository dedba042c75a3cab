package projection

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dogmatiq/ledger/persistence/eventstore"
	"github.com/dogmatiq/ledger/persistence/kv"
)

// DeadLetter is a record of an event that an async projection failed to
// apply.
type DeadLetter struct {
	Projection     string              `json:"projection"`
	EventID        eventstore.EventID  `json:"event_id"`
	StreamID       eventstore.StreamID `json:"stream_id"`
	EventType      string              `json:"event_type"`
	GlobalSequence uint64              `json:"global_sequence"`
	Error          string              `json:"error"`
	RecordedAt     time.Time           `json:"recorded_at"`
}

func newDeadLetter(projection string, ev eventstore.StoredEvent, err error) DeadLetter {
	return DeadLetter{
		Projection:     projection,
		EventID:        ev.EventID,
		StreamID:       ev.StreamID,
		EventType:      ev.EventType,
		GlobalSequence: ev.GlobalSequence,
		Error:          err.Error(),
		RecordedAt:     time.Now(),
	}
}

// DeadLetterStore records events that async projections failed to apply.
type DeadLetterStore interface {
	RecordDeadLetter(ctx context.Context, dl DeadLetter) error
}

// KeyspaceDeadLetters is an implementation of [DeadLetterStore] that persists
// JSON encoded dead letters in a [kv.Keyspace].
//
// A repeated failure of the same event and projection replaces the earlier
// record.
type KeyspaceDeadLetters struct {
	Keyspace kv.Keyspace
}

// RecordDeadLetter records a dead letter.
func (s *KeyspaceDeadLetters) RecordDeadLetter(ctx context.Context, dl DeadLetter) error {
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("unable to marshal dead letter: %w", err)
	}

	return s.Keyspace.Set(ctx, deadLetterKey(dl.Projection, dl.EventID), data)
}

// DeadLetters returns all recorded dead letters, ordered by global sequence.
func (s *KeyspaceDeadLetters) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	var result []DeadLetter

	if err := s.Keyspace.Range(
		ctx,
		func(_ context.Context, _, v []byte) (bool, error) {
			var dl DeadLetter
			if err := json.Unmarshal(v, &dl); err != nil {
				return false, fmt.Errorf("unable to unmarshal dead letter: %w", err)
			}
			result = append(result, dl)
			return true, nil
		},
	); err != nil {
		return nil, err
	}

	slices.SortFunc(
		result,
		func(a, b DeadLetter) int {
			return cmp.Or(
				cmp.Compare(a.GlobalSequence, b.GlobalSequence),
				strings.Compare(a.Projection, b.Projection),
			)
		},
	)

	return result, nil
}

// Remove removes the dead letter for the given projection and event, if any.
func (s *KeyspaceDeadLetters) Remove(
	ctx context.Context,
	projection string,
	id eventstore.EventID,
) error {
	return s.Keyspace.Set(ctx, deadLetterKey(projection, id), nil)
}

func deadLetterKey(projection string, id eventstore.EventID) []byte {
	return []byte(projection + "\x00" + string(id))
}
