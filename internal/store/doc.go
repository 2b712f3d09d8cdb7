// Package store provides the in-memory typed value table behind the rxstore
// runtime.
//
// The store holds two tables:
//   - Values: at most one value per ir.Key, stored as an interface and
//     recovered with a checked type assertion
//   - Reactions: a dense slot table of recompute functions, indexed by key
//     through a side map so slots can be reused after removal
//
// # Access Discipline
//
// Every read is remove, operate, reinsert. While a value is checked out by
// ReadWith or Update it is absent from the table, so a nested access to the
// same key observes ErrAbsent instead of aliasing a value that is being
// mutated. The value is reinserted even if the callback panics.
//
// # Concurrency
//
// A Store is owned by exactly one goroutine. It performs no locking; callers
// that share a runtime across goroutines must serialize access themselves.
package store
