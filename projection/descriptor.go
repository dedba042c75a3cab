package projection

import (
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Descriptor describes a projection.
type Descriptor struct {
	// Name uniquely identifies the projection within a [Registry].
	Name string

	// EventTypes is the set of event types that the projection handles.
	EventTypes []string

	// SchemaHash is a fingerprint of the projection's schema. A change in the
	// hash causes an async projection to be rebuilt. An empty hash disables
	// schema tracking.
	SchemaHash string
}

// NewDescriptor returns a descriptor for a projection that handles the given
// event types.
//
// The schema hash is computed from the sorted set of event type names.
func NewDescriptor(name string, eventTypes ...string) Descriptor {
	types := slices.Clone(eventTypes)
	slices.Sort(types)
	types = slices.Compact(types)

	return Descriptor{
		Name:       name,
		EventTypes: types,
		SchemaHash: SchemaHash(types...),
	}
}

// SchemaHash returns a hash of the given event type names, irrespective of
// their order or duplication.
func SchemaHash(eventTypes ...string) string {
	types := slices.Clone(eventTypes)
	slices.Sort(types)
	types = slices.Compact(types)

	h := xxhash.Sum64String(strings.Join(types, "\n"))
	return strconv.FormatUint(h, 16)
}

// WithSchemaVersion returns a copy of d with the given version mixed into its
// schema hash.
//
// It is used to force a rebuild when the projection's logic changes without
// any change to the event types it handles.
func (d Descriptor) WithSchemaVersion(v string) Descriptor {
	d.SchemaHash = strconv.FormatUint(
		xxhash.Sum64String(d.SchemaHash+"\n"+v),
		16,
	)
	return d
}

func (d Descriptor) handles(eventType string) bool {
	_, ok := slices.BinarySearch(d.EventTypes, eventType)
	return ok
}
