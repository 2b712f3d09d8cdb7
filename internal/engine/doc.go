// Package engine implements the rxstore reactive runtime.
//
// A Runtime owns a typed store of values addressed by identity keys, the
// dependency graph between them, and a linear undo history. Atoms hold
// directly settable state; reactions hold values computed from other keys
// and are recomputed when those keys change.
//
// ARCHITECTURE:
//
// Single Owner:
// A Runtime is used from one goroutine. There are no locks. Reads follow a
// remove → operate → reinsert discipline on the store, so a callback that
// reads the key currently checked out fails loudly with ABSENT_KEY instead
// of seeing a stale copy.
//
// Write Flow:
//  1. Set stores the value inertly
//  2. Propagate walks outgoing edges in insertion order, depth-first
//  3. Each dependent re-runs its RxFunc inside a fresh ReactiveContext
//  4. Every Observe in the body re-adds a producer → consumer edge
//  5. The result is stored; producers not observed this time are unlinked
//
// SetInert skips step 2. History steps write inertly and then propagate once
// from the affected key.
//
// CRITICAL PATTERNS:
//
// Loud Failure:
// Absent keys, type mismatches and Observe outside a reaction body panic
// with *RuntimeError. Callers that must survive one wrap the call in Catch.
// A failure aborts the propagation pass in progress; dependents that already
// recomputed keep their values.
//
// Bounded Propagation:
// A dependent already on the current propagation path is a cycle and fails
// with CYCLE_DETECTED. Independently, depth is capped at WithMaxDepth.
//
// Deterministic Traces:
// Trace events are stamped from a logical clock, never wall time.
package engine
