// Package projection folds committed events into read-optimized models.
//
// Projections are registered with a [Registry] under one of two lifecycles.
// Inline projections are applied by an [InlineExecutor] within the write path,
// before a session commit returns. Async projections are applied by an
// [AsyncExecutor], fed by a [Processor] that polls the event log in global
// sequence order.
//
// Each async projection's progress is tracked in a [PositionStore] along with
// the schema hash of the descriptor it was built from. The [Rebuilder]
// compares these hashes on startup and rebuilds any projection whose schema
// has changed.
package projection
