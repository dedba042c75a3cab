// Package ledger is an event-sourcing persistence and projection engine.
//
// Domain state is persisted as append-only streams of events. Aggregates are
// rebuilt by replaying their streams within a [session.Session], and read
// models are kept up to date by inline and asynchronous projections.
package ledger
