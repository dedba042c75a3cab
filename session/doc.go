// Package session provides a unit of work for loading, mutating and saving
// event-sourced entities (aggregates) under optimistic concurrency control.
//
// A [Session] is single-owner and must not be used by multiple goroutines at
// once. Sessions are cheap to create and are intended to be short-lived.
package session
