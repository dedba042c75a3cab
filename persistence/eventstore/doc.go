// Package eventstore defines the interfaces and types used to persist
// append-only event streams under optimistic concurrency control.
//
// Concrete implementations live in the persistence/driver packages. All of
// them are verified against the same behavior via [RunTests].
package eventstore
