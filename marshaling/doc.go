// Package marshaling converts domain events to and from the binary payloads
// stored by an event store.
package marshaling
